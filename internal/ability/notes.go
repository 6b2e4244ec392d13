package ability

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/zulandar/bruno/internal/logging"
	"github.com/zulandar/bruno/internal/models"
	"go.uber.org/zap"
)

var (
	notesTopicRe   = regexp.MustCompile(`(?i)\bnotes?\b`)
	noteCreateRe   = regexp.MustCompile(`(?i)^(?:create|make|start|new)\s+(?:a\s+)?(?:new\s+)?note(?:\s+(?:called|named|titled))?(?:\s+["']?(.+?)["']?)?$`)
	noteAddToRe    = regexp.MustCompile(`(?i)^add\s+to\s+(?:note\s+|my\s+)?["']?(.+?)["']?\s*:\s*(.+)$`)
	noteAddRe      = regexp.MustCompile(`(?i)^add(?:\s+entry)?\s*:\s*(.+)$`)
	noteAddBareRe  = regexp.MustCompile(`(?i)^add\s+(.+)$`)
	noteListRe     = regexp.MustCompile(`(?i)^(?:(?:list|show|view)\s+(?:my\s+|all\s+)?notes|my notes)$`)
	noteShowRe     = regexp.MustCompile(`(?i)^(?:show|open|view|read)\s+(?:the\s+|my\s+)?note\s+["']?(.+?)["']?$`)
	noteDeleteRe   = regexp.MustCompile(`(?i)^(?:delete|remove)\s+(?:the\s+|my\s+)?note\s+["']?(.+?)["']?$`)
	noteRemoveRe   = regexp.MustCompile(`(?i)^(?:remove|delete)\s+entry\s+#?(\d+)(?:\s+from\s+["']?(.+?)["']?)?$`)
	noteExitRe     = regexp.MustCompile(`(?i)^(?:(?:exit|close|leave|quit)\s+notes?|done)$`)
	defaultNoteTag = "Untitled"
)

// NotesOpts holds parameters for creating a Notes ability.
type NotesOpts struct {
	Store  *NoteStore
	State  *NotesState // optional; a fresh one is created when nil
	Logger *zap.Logger
}

// Notes manages named notes with ordered entries. Per-conversation notes
// mode lives in the injected NotesState.
type Notes struct {
	store  *NoteStore
	state  *NotesState
	logger *zap.Logger
}

// NewNotes creates a Notes ability.
func NewNotes(opts NotesOpts) (*Notes, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("ability: note store is required")
	}
	if opts.State == nil {
		opts.State = NewNotesState()
	}
	return &Notes{
		store:  opts.Store,
		state:  opts.State,
		logger: logging.OrNop(opts.Logger),
	}, nil
}

// Name implements Ability.
func (a *Notes) Name() string { return NameNotes }

// State exposes the per-conversation notes state.
func (a *Notes) State() *NotesState { return a.state }

// Handle implements Ability.
func (a *Notes) Handle(ctx context.Context, req Request) (Result, error) {
	text := strings.Trim(strings.TrimSpace(req.Command), " ,.!?")
	st := a.state.Get(req.ConversationID)
	if !st.InNotesMode && !notesTopicRe.MatchString(text) &&
		!noteAddToRe.MatchString(text) && !noteRemoveRe.MatchString(text) {
		return Declined, nil
	}

	userID, err := parseUserID(req.UserID)
	if err != nil {
		if !a.recognizes(text, st) {
			return Declined, nil
		}
		return Declined, wrap(NameNotes, err)
	}

	var res Result
	switch {
	case noteExitRe.MatchString(text):
		a.state.Exit(req.ConversationID)
		res = Result{Success: true, Message: "Closed notes."}
	case noteRemoveRe.MatchString(text):
		m := noteRemoveRe.FindStringSubmatch(text)
		pos, _ := strconv.Atoi(m[1])
		res, err = a.removeEntry(ctx, userID, req.ConversationID, st, pos, m[2])
	case noteDeleteRe.MatchString(text):
		res, err = a.deleteNote(ctx, userID, req.ConversationID, st, noteDeleteRe.FindStringSubmatch(text)[1])
	case noteCreateRe.MatchString(text):
		res, err = a.create(ctx, userID, req.ConversationID, noteCreateRe.FindStringSubmatch(text)[1])
	case noteAddToRe.MatchString(text):
		m := noteAddToRe.FindStringSubmatch(text)
		res, err = a.addTo(ctx, userID, req.ConversationID, m[1], m[2])
	case noteAddRe.MatchString(text):
		res, err = a.addCurrent(ctx, userID, req.ConversationID, st, noteAddRe.FindStringSubmatch(text)[1])
	case st.InNotesMode && st.CurrentNoteID != 0 && noteAddBareRe.MatchString(text):
		res, err = a.addCurrent(ctx, userID, req.ConversationID, st, noteAddBareRe.FindStringSubmatch(text)[1])
	case noteListRe.MatchString(text):
		res, err = a.list(ctx, userID, req.ConversationID)
	case noteShowRe.MatchString(text):
		res, err = a.show(ctx, userID, req.ConversationID, noteShowRe.FindStringSubmatch(text)[1])
	default:
		return Declined, nil
	}
	if err != nil {
		return Declined, wrap(NameNotes, err)
	}
	return res, nil
}

// recognizes reports whether text matches any notes command.
func (a *Notes) recognizes(text string, st NotesSession) bool {
	for _, re := range []*regexp.Regexp{noteRemoveRe, noteDeleteRe, noteCreateRe, noteAddToRe, noteAddRe, noteListRe, noteShowRe} {
		if re.MatchString(text) {
			return true
		}
	}
	return st.InNotesMode && noteExitRe.MatchString(text)
}

func (a *Notes) create(ctx context.Context, userID uint, convID, name string) (Result, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultNoteTag
	}
	if existing, err := a.store.FindByName(ctx, userID, name); err != nil {
		return Result{}, err
	} else if existing != nil && name != defaultNoteTag {
		a.open(convID, existing.ID, ViewDetail)
		return Result{Message: fmt.Sprintf("You already have a note called %q.", existing.Name)}, nil
	}
	note, err := a.store.Create(ctx, userID, name)
	if err != nil {
		return Result{}, err
	}
	a.open(convID, note.ID, ViewDetail)
	return Result{
		Success: true,
		Message: fmt.Sprintf("Created note %q.", note.Name),
		Data:    map[string]any{"note_id": note.ID},
	}, nil
}

func (a *Notes) addTo(ctx context.Context, userID uint, convID, name, content string) (Result, error) {
	note, err := a.store.FindByName(ctx, userID, strings.TrimSpace(name))
	if err != nil {
		return Result{}, err
	}
	if note == nil {
		return Result{Message: fmt.Sprintf("You have no note called %q.", name)}, nil
	}
	return a.add(ctx, convID, note, content)
}

func (a *Notes) addCurrent(ctx context.Context, userID uint, convID string, st NotesSession, content string) (Result, error) {
	note, err := a.current(ctx, userID, st)
	if err != nil {
		return Result{}, err
	}
	if note == nil {
		return Result{Message: `Open a note first, e.g. "show note groceries".`}, nil
	}
	return a.add(ctx, convID, note, content)
}

func (a *Notes) add(ctx context.Context, convID string, note *models.Note, content string) (Result, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Result{Message: "There is nothing to add."}, nil
	}
	entry, err := a.store.AddEntry(ctx, note.ID, content)
	if err != nil {
		return Result{}, err
	}
	a.open(convID, note.ID, ViewDetail)
	return Result{
		Success: true,
		Message: fmt.Sprintf("Added to %q (entry %d).", note.Name, entry.Position),
		Data:    map[string]any{"note_id": note.ID, "position": entry.Position},
	}, nil
}

func (a *Notes) list(ctx context.Context, userID uint, convID string) (Result, error) {
	notes, err := a.store.List(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	a.state.Set(convID, NotesSession{InNotesMode: true, View: ViewList})
	if len(notes) == 0 {
		return Result{Success: true, Message: "You have no notes yet."}, nil
	}
	lines := []string{"Your notes:"}
	for i, n := range notes {
		lines = append(lines, fmt.Sprintf("%d. %s (%s)", i+1, n.Name, plural(len(n.Entries), "entry", "entries")))
	}
	return Result{
		Success: true,
		Message: strings.Join(lines, "\n"),
		Data:    map[string]any{"count": len(notes)},
	}, nil
}

func (a *Notes) show(ctx context.Context, userID uint, convID, name string) (Result, error) {
	found, err := a.store.FindByName(ctx, userID, strings.TrimSpace(name))
	if err != nil {
		return Result{}, err
	}
	if found == nil {
		return Result{Message: fmt.Sprintf("You have no note called %q.", name)}, nil
	}
	note, err := a.store.Get(ctx, userID, found.ID)
	if err != nil {
		return Result{}, err
	}
	a.open(convID, note.ID, ViewDetail)
	return Result{Success: true, Message: renderNote(note), Data: map[string]any{"note_id": note.ID}}, nil
}

func (a *Notes) deleteNote(ctx context.Context, userID uint, convID string, st NotesSession, name string) (Result, error) {
	note, err := a.store.FindByName(ctx, userID, strings.TrimSpace(name))
	if err != nil {
		return Result{}, err
	}
	if note == nil {
		return Result{Message: fmt.Sprintf("You have no note called %q.", name)}, nil
	}
	if err := a.store.Delete(ctx, note.ID); err != nil {
		return Result{}, err
	}
	if st.CurrentNoteID == note.ID {
		a.state.Set(convID, NotesSession{InNotesMode: st.InNotesMode, View: ViewNone})
	}
	return Result{
		Success: true,
		Message: fmt.Sprintf("Deleted note %q.", note.Name),
		Data:    map[string]any{"note_id": note.ID},
	}, nil
}

func (a *Notes) removeEntry(ctx context.Context, userID uint, convID string, st NotesSession, pos int, name string) (Result, error) {
	var note *models.Note
	var err error
	if name != "" {
		note, err = a.store.FindByName(ctx, userID, strings.TrimSpace(name))
	} else {
		note, err = a.current(ctx, userID, st)
	}
	if err != nil {
		return Result{}, err
	}
	if note == nil {
		return Result{Message: `Open a note first, e.g. "show note groceries".`}, nil
	}
	ok, err := a.store.RemoveEntry(ctx, note.ID, pos)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{Message: fmt.Sprintf("%q has no entry %d.", note.Name, pos)}, nil
	}
	a.open(convID, note.ID, ViewDetail)
	return Result{
		Success: true,
		Message: fmt.Sprintf("Removed entry %d from %q.", pos, note.Name),
		Data:    map[string]any{"note_id": note.ID, "position": pos},
	}, nil
}

// current loads the note the conversation has open, or nil.
func (a *Notes) current(ctx context.Context, userID uint, st NotesSession) (*models.Note, error) {
	if st.CurrentNoteID == 0 {
		return nil, nil
	}
	return a.store.Get(ctx, userID, st.CurrentNoteID)
}

func (a *Notes) open(convID string, noteID uint, view NotesView) {
	a.state.Set(convID, NotesSession{InNotesMode: true, CurrentNoteID: noteID, View: view})
}

func renderNote(note *models.Note) string {
	if len(note.Entries) == 0 {
		return fmt.Sprintf("%q is empty.", note.Name)
	}
	lines := []string{fmt.Sprintf("%q:", note.Name)}
	for _, e := range note.Entries {
		lines = append(lines, fmt.Sprintf("%d. %s", e.Position, e.Content))
	}
	return strings.Join(lines, "\n")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", one)
	}
	return fmt.Sprintf("%d %s", n, many)
}
