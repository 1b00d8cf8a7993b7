package ops

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/hpungsan/quire/internal/db"
	"github.com/hpungsan/quire/internal/errors"
	"github.com/hpungsan/quire/internal/ids"
)

// MaxPreferenceChars bounds a stored preference value.
const MaxPreferenceChars = 2000

// StartSessionInput contains parameters for the StartSession operation.
type StartSessionInput struct {
	UserID    string // required
	SessionID string // optional; a UUID is generated when empty
}

// StartSessionOutput contains the result of the StartSession operation.
type StartSessionOutput struct {
	db.Session
	Template string `json:"template"`
}

// StartSession creates a new conversation session for a user.
func (s *Service) StartSession(ctx context.Context, input StartSessionInput) (*StartSessionOutput, error) {
	userID, err := requireUser(input.UserID)
	if err != nil {
		return nil, err
	}

	id := strings.TrimSpace(input.SessionID)
	if id == "" {
		id = ids.NewSessionID()
	} else if !ids.ValidSessionID(id) {
		return nil, errors.NewInvalidRequest("session_id must be a UUID")
	}

	sess := db.Session{ID: id, UserID: userID, CreatedAt: s.now().UTC()}
	if err := db.InsertSession(ctx, s.db, sess); err != nil {
		if err == db.ErrUniqueConstraint {
			return nil, errors.NewInvalidRequest("session already exists: " + id)
		}
		return nil, err
	}

	// Pin the template snapshot the session starts with.
	tmpl := s.assembler.TemplateFor(id)

	s.logger.Info("session started",
		zap.String("session_id", id),
		zap.String("user_id", userID),
		zap.String("template", tmpl.Name()))

	return &StartSessionOutput{Session: sess, Template: tmpl.Name()}, nil
}

// SetPreferenceInput contains parameters for the SetPreference operation.
type SetPreferenceInput struct {
	UserID string // required
	Key    string // required
	Value  string
}

// SetPreferenceOutput contains the result of the SetPreference operation.
type SetPreferenceOutput struct {
	UserID      string            `json:"user_id"`
	Preferences map[string]string `json:"preferences"`
}

// SetPreference stores one user preference and returns all of them.
func (s *Service) SetPreference(ctx context.Context, input SetPreferenceInput) (*SetPreferenceOutput, error) {
	userID, err := requireUser(input.UserID)
	if err != nil {
		return nil, err
	}
	key := strings.TrimSpace(input.Key)
	if key == "" {
		return nil, errors.NewInvalidRequest("key is required")
	}
	if len([]rune(input.Value)) > MaxPreferenceChars {
		return nil, errors.NewInvalidRequest("value is too long")
	}

	if err := db.SetPreference(ctx, s.db, userID, key, input.Value, s.now()); err != nil {
		return nil, err
	}
	prefs, err := db.GetPreferences(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	return &SetPreferenceOutput{UserID: userID, Preferences: prefs}, nil
}
