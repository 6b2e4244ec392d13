package ability

import "testing"

func TestParseTimerCommand(t *testing.T) {
	tests := []struct {
		in      string
		action  timerAction
		seconds int
		name    string
	}{
		{"set a timer for 5 minutes", timerSet, 300, ""},
		{"set a timer for 5 minutes for pasta", timerSet, 300, "pasta"},
		{"5 minute timer", timerSet, 300, ""},
		{"timer 1h30m", timerSet, 5400, ""},
		{"set a 30-second timer", timerSet, 30, ""},
		{"set a timer for half an hour", timerSet, 1800, ""},
		{"set a timer for an hour", timerSet, 3600, ""},
		{"start a timer called eggs for 7 minutes", timerSet, 420, "eggs"},
		{"remind me in 10 minutes to check the oven", timerSet, 600, "check the oven"},
		{"pause the pasta timer", timerPause, 0, "pasta"},
		{"resume my timer", timerResume, 0, ""},
		{"unpause pasta timer", timerResume, 0, "pasta"},
		{"cancel the timer", timerCancel, 0, ""},
		{"how much time is left on my timers", timerList, 0, ""},
		{"list timers", timerList, 0, ""},
		{"what's a timer", timerNone, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := parseTimerCommand(tt.in)
			if got.Action != tt.action {
				t.Errorf("Action = %q, want %q", got.Action, tt.action)
			}
			if got.Seconds != tt.seconds {
				t.Errorf("Seconds = %d, want %d", got.Seconds, tt.seconds)
			}
			if tt.name != "" && got.Name != tt.name {
				t.Errorf("Name = %q, want %q", got.Name, tt.name)
			}
			if tt.name == "" && tt.action != timerSet && got.Name != "" {
				t.Errorf("Name = %q, want empty", got.Name)
			}
		})
	}
}

func TestParseTimerCommand_UnnamedSet(t *testing.T) {
	for _, in := range []string{"set a timer for 5 minutes", "5 minute timer", "set a timer for an hour"} {
		if got := parseTimerCommand(in); got.Name != "" {
			t.Errorf("parseTimerCommand(%q).Name = %q, want empty", in, got.Name)
		}
	}
}

func TestMentionsTimer(t *testing.T) {
	yes := []string{"set a timer", "TIMERS please", "remind me later", "how much time left"}
	no := []string{"what is the capital of Brazil?", "timeline of events", "create note groceries"}
	for _, in := range yes {
		if !mentionsTimer(in) {
			t.Errorf("mentionsTimer(%q) = false", in)
		}
	}
	for _, in := range no {
		if mentionsTimer(in) {
			t.Errorf("mentionsTimer(%q) = true", in)
		}
	}
}

func TestParseDurationText(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"2 hours 15 minutes", 8100},
		{"90s", 90},
		{"1 hr", 3600},
		{"a minute", 60},
		{"nothing here", 0},
		{"2 steps", 0},
	}
	for _, tt := range tests {
		if got := parseDurationText(tt.in); got != tt.want {
			t.Errorf("parseDurationText(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseTimerJSON(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		action  timerAction
		seconds int
		label   string
		wantErr bool
	}{
		{"embedded object", `Sure! {"action":"set","seconds":120,"name":"tea timer"}`, timerSet, 120, "tea", false},
		{"set without duration", `{"action":"set","seconds":0}`, timerNone, 0, "", false},
		{"unknown action", `{"action":"explode"}`, timerNone, 0, "", false},
		{"list", `{"action":"list"}`, timerList, 0, "", false},
		{"no json", `I am not sure what you mean.`, timerNone, 0, "", true},
		{"broken json", `{"action":`, timerNone, 0, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTimerJSON(tt.reply)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got.Action != tt.action || got.Seconds != tt.seconds || got.Name != tt.label {
				t.Errorf("got %+v, want %s/%d/%q", got, tt.action, tt.seconds, tt.label)
			}
		})
	}
}

func TestHumanDuration(t *testing.T) {
	tests := []struct {
		in   int
		want string
	}{
		{0, "0 seconds"},
		{1, "1 second"},
		{90, "1 minute 30 seconds"},
		{3600, "1 hour"},
		{5400, "1 hour 30 minutes"},
	}
	for _, tt := range tests {
		if got := humanDuration(tt.in); got != tt.want {
			t.Errorf("humanDuration(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
