package core

import (
	"testing"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in   string
		want Role
	}{
		{"system", RoleSystem},
		{"user", RoleUser},
		{"assistant", RoleAssistant},
		{"tool", RoleUser},
		{"", RoleUser},
	}
	for _, tt := range tests {
		if got := ParseRole(tt.in); got != tt.want {
			t.Errorf("ParseRole(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMessage_IsTaskCommand(t *testing.T) {
	m := NewMessage(RoleUser, "set a timer")
	if m.IsTaskCommand() {
		t.Error("message without metadata should not be a task command")
	}
	m.Metadata = map[string]any{MetaTaskCommand: "yes"}
	if m.IsTaskCommand() {
		t.Error("non-bool flag should not count")
	}
	m.Metadata[MetaTaskCommand] = true
	if !m.IsTaskCommand() {
		t.Error("expected task command")
	}
}

func TestNewMessage_UTC(t *testing.T) {
	m := NewMessage(RoleAssistant, "hi")
	if m.Timestamp.Location().String() != "UTC" {
		t.Errorf("Timestamp location = %s, want UTC", m.Timestamp.Location())
	}
}

func TestTail(t *testing.T) {
	msgs := []Message{{Content: "1"}, {Content: "2"}, {Content: "3"}}

	if got := Tail(msgs, 2); len(got) != 2 || got[0].Content != "2" || got[1].Content != "3" {
		t.Errorf("Tail(2) = %+v, want [2 3]", got)
	}
	if got := Tail(msgs, 0); len(got) != 3 {
		t.Errorf("Tail(0) len = %d, want 3", len(got))
	}
	if got := Tail(msgs, 10); len(got) != 3 {
		t.Errorf("Tail(10) len = %d, want 3", len(got))
	}
}

func TestConversationContext_NilSafe(t *testing.T) {
	var c *ConversationContext
	if c.UserID() != "" {
		t.Error("nil context should have empty user id")
	}
	if c.Recent() != nil {
		t.Error("nil context should have no messages")
	}

	c = &ConversationContext{
		User:        &UserContext{UserID: "7"},
		Messages:    []Message{{Content: "a"}, {Content: "b"}},
		MaxMessages: 1,
	}
	if c.UserID() != "7" {
		t.Errorf("UserID = %q, want 7", c.UserID())
	}
	if r := c.Recent(); len(r) != 1 || r[0].Content != "b" {
		t.Errorf("Recent = %+v, want [b]", r)
	}
}
