package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/zulandar/bruno/internal/core"
	"github.com/zulandar/bruno/internal/models"
)

// toRow maps a core message onto a database row. Intent and entities are
// lifted out of the metadata into their own columns.
func toRow(conversationID uint, msg core.Message) (*models.Message, error) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	row := &models.Message{
		ConversationID: conversationID,
		Role:           string(msg.Role),
		Content:        msg.Content,
		Timestamp:      msg.Timestamp.UTC(),
	}
	if row.Role == "" {
		row.Role = string(core.RoleUser)
	}
	if intent, ok := msg.Metadata[core.MetaIntent].(string); ok && intent != "" {
		row.Intent = &intent
	}
	if entities, ok := msg.Metadata[core.MetaEntities]; ok && entities != nil {
		b, err := json.Marshal(entities)
		if err != nil {
			return nil, fmt.Errorf("store: encode entities: %w", err)
		}
		s := string(b)
		row.Entities = &s
	}
	if len(msg.Metadata) > 0 {
		b, err := json.Marshal(msg.Metadata)
		if err != nil {
			return nil, fmt.Errorf("store: encode metadata: %w", err)
		}
		row.Metadata = string(b)
	}
	return row, nil
}

// toCore maps a database row back onto a core message. Malformed metadata
// JSON is dropped rather than failing the read.
func toCore(row models.Message) core.Message {
	msg := core.Message{
		Role:           core.ParseRole(row.Role),
		Content:        row.Content,
		Timestamp:      row.Timestamp.UTC(),
		ConversationID: FormatID(row.ConversationID),
		Sequence:       row.SequenceNumber,
	}
	if row.Metadata != "" {
		var meta map[string]any
		if err := json.Unmarshal([]byte(row.Metadata), &meta); err == nil {
			msg.Metadata = meta
		}
	}
	if row.Intent != nil {
		if msg.Metadata == nil {
			msg.Metadata = map[string]any{}
		}
		if _, ok := msg.Metadata[core.MetaIntent]; !ok {
			msg.Metadata[core.MetaIntent] = *row.Intent
		}
	}
	return msg
}

// FormatID renders a numeric row id as the string identifier used outside
// the store.
func FormatID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

// ErrInvalidID is returned by ParseID for malformed identifiers.
var ErrInvalidID = errors.New("store: invalid id")

// ParseID parses a string identifier produced by FormatID.
func ParseID(s string) (uint, error) {
	n, err := strconv.ParseUint(s, 10, 0)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("%w %q", ErrInvalidID, s)
	}
	return uint(n), nil
}
