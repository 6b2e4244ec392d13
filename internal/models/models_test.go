package models

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

// gormTag extracts the gorm tag from a struct field.
func gormTag(t *testing.T, typ reflect.Type, fieldName string) string {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	return f.Tag.Get("gorm")
}

// assertGormTag checks that a struct field's gorm tag contains the expected value.
func assertGormTag(t *testing.T, typ reflect.Type, fieldName, expected string) {
	t.Helper()
	tag := gormTag(t, typ, fieldName)
	if !strings.Contains(tag, expected) {
		t.Errorf("%s.%s gorm tag = %q, want to contain %q", typ.Name(), fieldName, tag, expected)
	}
}

// assertFieldType checks that a struct field has the expected Go type.
func assertFieldType(t *testing.T, typ reflect.Type, fieldName, expectedType string) {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	got := f.Type.String()
	if got != expectedType {
		t.Errorf("%s.%s type = %q, want %q", typ.Name(), fieldName, got, expectedType)
	}
}

func TestUser_Fields(t *testing.T) {
	typ := reflect.TypeOf(User{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "Name", "not null")
	assertGormTag(t, typ, "Username", "uniqueIndex")
	assertGormTag(t, typ, "Conversations", "foreignKey:UserID")
	assertGormTag(t, typ, "Timers", "foreignKey:UserID")
	assertGormTag(t, typ, "Notes", "foreignKey:UserID")
}

func TestConversation_Fields(t *testing.T) {
	typ := reflect.TypeOf(Conversation{})

	assertGormTag(t, typ, "UserID", "not null")
	assertGormTag(t, typ, "UserID", "index")
	assertGormTag(t, typ, "Title", "size:200")
	assertGormTag(t, typ, "ChannelID", "index")
	assertGormTag(t, typ, "Messages", "foreignKey:ConversationID")
}

func TestMessage_Fields(t *testing.T) {
	typ := reflect.TypeOf(Message{})

	assertGormTag(t, typ, "ConversationID", "uniqueIndex:idx_conversation_sequence")
	assertGormTag(t, typ, "SequenceNumber", "uniqueIndex:idx_conversation_sequence")
	assertGormTag(t, typ, "Role", "not null")
	assertGormTag(t, typ, "Content", "type:text")
	assertFieldType(t, typ, "SequenceNumber", "int64")
	assertFieldType(t, typ, "Timestamp", "time.Time")
	assertFieldType(t, typ, "Intent", "*string")
	assertFieldType(t, typ, "Entities", "*string")
}

func TestTimer_Fields(t *testing.T) {
	typ := reflect.TypeOf(Timer{})

	assertGormTag(t, typ, "UserID", "index")
	assertGormTag(t, typ, "Name", "not null")
	assertGormTag(t, typ, "DurationSeconds", "not null")
	assertGormTag(t, typ, "Status", "default:active")
	assertGormTag(t, typ, "WarningSent", "column:three_minute_warning_sent")
	assertFieldType(t, typ, "EndTime", "time.Time")
	assertFieldType(t, typ, "PausedAt", "*time.Time")
	assertFieldType(t, typ, "RemainingSeconds", "*int")
}

func TestNote_Fields(t *testing.T) {
	typ := reflect.TypeOf(Note{})

	assertGormTag(t, typ, "Name", "default:Untitled")
	assertGormTag(t, typ, "Entries", "OnDelete:CASCADE")

	entry := reflect.TypeOf(NoteEntry{})
	assertGormTag(t, entry, "NoteID", "not null")
	assertGormTag(t, entry, "Position", "not null")
}

func TestTimerStatusConstants(t *testing.T) {
	statuses := []string{TimerActive, TimerPaused, TimerCompleted, TimerCancelled}
	seen := make(map[string]bool)
	for _, s := range statuses {
		if s == "" {
			t.Error("empty timer status constant")
		}
		if seen[s] {
			t.Errorf("duplicate timer status %q", s)
		}
		seen[s] = true
	}
}

func TestTimer_ZeroValue(t *testing.T) {
	var timer Timer
	if timer.PausedAt != nil || timer.RemainingSeconds != nil {
		t.Error("zero Timer should have nil pause fields")
	}
	if !timer.EndTime.Equal(time.Time{}) {
		t.Error("zero Timer should have zero EndTime")
	}
}
