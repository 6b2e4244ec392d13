package ability

import "sync"

// NotesView is what the user last looked at in notes mode.
type NotesView string

// Notes views.
const (
	ViewNone   NotesView = "none"
	ViewList   NotesView = "list"
	ViewDetail NotesView = "detail"
)

// NotesSession is the notes interface state of one conversation.
type NotesSession struct {
	InNotesMode   bool
	CurrentNoteID uint
	View          NotesView
}

// NotesState tracks NotesSession per conversation id. It is owned by the
// Notes ability it is injected into.
type NotesState struct {
	mu     sync.Mutex
	states map[string]NotesSession
}

// NewNotesState creates an empty NotesState.
func NewNotesState() *NotesState {
	return &NotesState{states: make(map[string]NotesSession)}
}

// Get returns the state of a conversation, the zero state when unknown.
func (s *NotesState) Get(conversationID string) NotesSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[conversationID]
	if !ok {
		return NotesSession{View: ViewNone}
	}
	return st
}

// Set replaces the state of a conversation.
func (s *NotesState) Set(conversationID string, st NotesSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[conversationID] = st
}

// Exit leaves notes mode for a conversation.
func (s *NotesState) Exit(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, conversationID)
}
