package ability

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

type timerAction string

const (
	timerNone   timerAction = "none"
	timerSet    timerAction = "set"
	timerPause  timerAction = "pause"
	timerResume timerAction = "resume"
	timerCancel timerAction = "cancel"
	timerList   timerAction = "list"
)

// timerCommand is a parsed timer request.
type timerCommand struct {
	Action  timerAction `json:"action"`
	Seconds int         `json:"seconds"`
	Name    string      `json:"name"`
}

var (
	timerTopicRe  = regexp.MustCompile(`(?i)\b(timers?|countdown|remind(?:ers?)?|time left|time remaining)\b`)
	unitSplitRe   = regexp.MustCompile(`([a-zA-Z])(\d)`)
	durationRe    = regexp.MustCompile(`(?i)\b(\d+)\s*-?\s*(hours|hour|hrs|hr|h|minutes|minute|mins|min|m|seconds|second|secs|sec|s)\b`)
	halfHourRe    = regexp.MustCompile(`(?i)\bhalf\s+an?\s+hour\b`)
	singleUnitRe  = regexp.MustCompile(`(?i)\b(?:an?|one)\s+(hour|minute|second)\b`)
	cancelVerbRe  = regexp.MustCompile(`(?i)\b(cancel|stop|delete|remove|clear|kill)\b`)
	resumeVerbRe  = regexp.MustCompile(`(?i)\b(resume|unpause|continue|restart)\b`)
	pauseVerbRe   = regexp.MustCompile(`(?i)\bpause\b`)
	listVerbRe    = regexp.MustCompile(`(?i)\b(list|show|status|check)\b|\bhow (much|long)\b|\btime (left|remaining)\b|\bwhat timers\b`)
	calledNameRe  = regexp.MustCompile(`(?i)\b(?:called|named)\s+["']?([\w' -]+?)["']?\s*$`)
	forNameRe     = regexp.MustCompile(`(?i)\bfor\s+(?:the\s+|my\s+)?([a-z][\w' -]*?)\s*$`)
	nameTailRe    = regexp.MustCompile(`(?i)\s+(?:for|in)\s+(.*)$`)
	toNameRe      = regexp.MustCompile(`(?i)\bto\s+([a-z][\w' -]*?)\s*$`)
	adjNameRe     = regexp.MustCompile(`(?i)\b([a-z][\w'-]*)\s+timer\b`)
	jsonObjectRe  = regexp.MustCompile(`(?s)\{.*\}`)
	digitsRe      = regexp.MustCompile(`\d`)
	timerStopword = map[string]bool{
		"a": true, "an": true, "the": true, "my": true, "this": true, "that": true,
		"your": true, "another": true, "new": true, "up": true, "all": true,
		"hour": true, "hours": true, "minute": true, "minutes": true,
		"second": true, "seconds": true, "min": true, "sec": true, "hr": true,
		"set": true, "start": true, "create": true, "make": true,
		"cancel": true, "stop": true, "delete": true, "remove": true, "clear": true,
		"pause": true, "resume": true, "unpause": true, "continue": true,
		"kill": true, "restart": true, "check": true, "show": true, "list": true,
	}
)

const maxTimerSeconds = 24 * 60 * 60

// mentionsTimer reports whether a command is about timers at all.
func mentionsTimer(command string) bool {
	return timerTopicRe.MatchString(command)
}

// parseTimerCommand applies the regex grammar. It returns timerNone when
// the command is about timers but could not be understood.
func parseTimerCommand(command string) timerCommand {
	text := strings.TrimSpace(command)
	cmd := timerCommand{Action: timerNone, Seconds: parseDurationText(text)}

	switch {
	case cancelVerbRe.MatchString(text):
		cmd.Action = timerCancel
	case resumeVerbRe.MatchString(text):
		cmd.Action = timerResume
	case pauseVerbRe.MatchString(text):
		cmd.Action = timerPause
	case cmd.Seconds > 0:
		cmd.Action = timerSet
	case listVerbRe.MatchString(text):
		cmd.Action = timerList
	}
	if cmd.Action != timerNone && cmd.Action != timerList {
		cmd.Name = parseTimerName(text)
	}
	return cmd
}

// parseDurationText sums every duration mentioned in text, in seconds.
func parseDurationText(text string) int {
	text = unitSplitRe.ReplaceAllString(text, "$1 $2")
	total := 0
	if halfHourRe.MatchString(text) {
		total += 30 * 60
		text = halfHourRe.ReplaceAllString(text, " ")
	}
	for _, m := range durationRe.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		total += n * unitSeconds(m[2])
	}
	if total > 0 {
		return total
	}
	for _, m := range singleUnitRe.FindAllStringSubmatch(text, -1) {
		total += unitSeconds(m[1])
	}
	return total
}

func unitSeconds(unit string) int {
	switch u := strings.ToLower(unit); {
	case strings.HasPrefix(u, "h"):
		return 3600
	case strings.HasPrefix(u, "m"):
		return 60
	default:
		return 1
	}
}

// parseTimerName extracts a timer label: "called X", a trailing "for X",
// a trailing "to X" (reminders) or "X timer".
func parseTimerName(text string) string {
	if m := calledNameRe.FindStringSubmatch(text); m != nil {
		name := m[1]
		if loc := nameTailRe.FindStringSubmatchIndex(name); loc != nil && parseDurationText(name[loc[2]:loc[3]]) > 0 {
			name = name[:loc[0]]
		}
		return cleanName(name)
	}
	if m := forNameRe.FindStringSubmatch(text); m != nil && isLabel(m[1]) {
		return cleanName(m[1])
	}
	if m := toNameRe.FindStringSubmatch(text); m != nil && isLabel(m[1]) {
		return cleanName(m[1])
	}
	for _, m := range adjNameRe.FindAllStringSubmatch(text, -1) {
		if !timerStopword[strings.ToLower(m[1])] {
			return cleanName(m[1])
		}
	}
	return ""
}

// isLabel rejects candidates that are really durations ("for an hour").
func isLabel(s string) bool {
	return !digitsRe.MatchString(s) && parseDurationText(s) == 0
}

func cleanName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, " timer")
	return strings.TrimSpace(s)
}

// timerExtractionPrompt asks the model to turn an ambiguous request into
// the same structure the regex grammar produces.
const timerExtractionPrompt = `You extract timer commands. Reply with a single JSON object and nothing else:
{"action": "set|pause|resume|cancel|list|none", "seconds": <integer duration for set, else 0>, "name": "<timer label or empty>"}`

// parseTimerJSON decodes the model's extraction reply.
func parseTimerJSON(reply string) (timerCommand, error) {
	raw := jsonObjectRe.FindString(reply)
	if raw == "" {
		return timerCommand{Action: timerNone}, fmt.Errorf("no JSON object in reply")
	}
	var cmd timerCommand
	if err := json.Unmarshal([]byte(raw), &cmd); err != nil {
		return timerCommand{Action: timerNone}, fmt.Errorf("decode reply: %w", err)
	}
	switch cmd.Action {
	case timerSet:
		if cmd.Seconds <= 0 {
			return timerCommand{Action: timerNone}, nil
		}
	case timerPause, timerResume, timerCancel, timerList:
	default:
		cmd.Action = timerNone
	}
	cmd.Name = cleanName(cmd.Name)
	return cmd, nil
}

// humanDuration renders seconds as "1 hour 5 minutes" style text.
func humanDuration(seconds int) string {
	if seconds <= 0 {
		return "0 seconds"
	}
	h, m, s := seconds/3600, seconds%3600/60, seconds%60
	var parts []string
	add := func(n int, unit string) {
		if n == 0 {
			return
		}
		if n != 1 {
			unit += "s"
		}
		parts = append(parts, fmt.Sprintf("%d %s", n, unit))
	}
	add(h, "hour")
	add(m, "minute")
	add(s, "second")
	return strings.Join(parts, " ")
}
