package ops

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/hpungsan/quire/internal/assembler"
	"github.com/hpungsan/quire/internal/db"
	"github.com/hpungsan/quire/internal/draft"
	"github.com/hpungsan/quire/internal/errors"
	"github.com/hpungsan/quire/internal/journal"
)

// MaxTurnInvocations bounds the invocations accepted in one turn.
const MaxTurnInvocations = 50

// SessionInput addresses one session of one user.
type SessionInput struct {
	UserID    string // required
	SessionID string // required
}

// Context builds the per-turn bundle: template, draft, pending tasks,
// preferences and the operation catalogue.
func (s *Service) Context(ctx context.Context, input SessionInput) (*assembler.Bundle, error) {
	return s.assembler.BuildContext(ctx, strings.TrimSpace(input.UserID), strings.TrimSpace(input.SessionID))
}

// StructureInput contains parameters for the Structure operation.
type StructureInput struct {
	UserID    string            // required
	SessionID string            // required
	RawText   string            // optional; the user's turn as spoken
	Sections  map[string]string // section -> fragment
	Hints     []draft.Hint      // ordered section/fragment pairs
}

// Structure merges classified fragments into the session's draft.
func (s *Service) Structure(ctx context.Context, input StructureInput) (*draft.Result, error) {
	userID, sessionID := strings.TrimSpace(input.UserID), strings.TrimSpace(input.SessionID)
	res, err := s.assembler.Structure(ctx, userID, sessionID, assembler.StructureArgs{
		RawText:  input.RawText,
		Sections: input.Sections,
		Hints:    input.Hints,
	})
	if err != nil {
		s.logOutcome(assembler.OpStructureText, userID, sessionID, err)
		return nil, err
	}
	s.logger.Info("draft updated",
		zap.String("session_id", sessionID),
		zap.String("user_id", userID),
		zap.Strings("sections", res.Updated))
	return res, nil
}

// DraftOutput contains the result of the Draft operation.
type DraftOutput struct {
	Draft *draft.Draft `json:"draft"`
	Chars int          `json:"chars"`
	Empty bool         `json:"empty"`
}

// Draft returns a copy of the session's current draft.
func (s *Service) Draft(ctx context.Context, input SessionInput) (*DraftOutput, error) {
	userID, sessionID, err := s.ownedSession(ctx, input)
	if err != nil {
		return nil, err
	}
	d, err := s.drafts.Snapshot(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	return &DraftOutput{Draft: d, Chars: d.Chars(), Empty: d.IsEmpty()}, nil
}

// FinalizeOutput contains the result of the Finalize operation.
type FinalizeOutput struct {
	Entry   journal.Entry   `json:"entry"`
	Summary journal.Summary `json:"summary"`
}

// Finalize persists the session's draft as an immutable entry and clears it.
func (s *Service) Finalize(ctx context.Context, input SessionInput) (*FinalizeOutput, error) {
	userID, sessionID := strings.TrimSpace(input.UserID), strings.TrimSpace(input.SessionID)
	entry, err := s.assembler.Finalize(ctx, userID, sessionID)
	if err != nil {
		s.logOutcome(assembler.OpFinalize, userID, sessionID, err)
		return nil, err
	}
	return &FinalizeOutput{Entry: entry, Summary: entry.Summarize()}, nil
}

// TurnInput contains parameters for the Turn operation.
type TurnInput struct {
	UserID      string                 // required
	SessionID   string                 // required
	Invocations []assembler.Invocation // required, at most MaxTurnInvocations
}

// Turn applies the model's invocations in order under the session lock.
// An interrupted turn returns the partial Turn together with TURN_INTERRUPTED.
func (s *Service) Turn(ctx context.Context, input TurnInput) (*assembler.Turn, error) {
	if len(input.Invocations) == 0 {
		return nil, errors.NewInvalidRequest("invocations must not be empty")
	}
	if len(input.Invocations) > MaxTurnInvocations {
		return nil, errors.NewInvalidRequest("too many invocations in one turn")
	}

	userID, sessionID := strings.TrimSpace(input.UserID), strings.TrimSpace(input.SessionID)
	turn, err := s.assembler.Apply(ctx, userID, sessionID, input.Invocations)
	if turn != nil {
		for _, o := range turn.Outcomes {
			fields := []zap.Field{
				zap.String("session_id", sessionID),
				zap.String("user_id", userID),
				zap.String("op", o.Op),
				zap.String("status", o.Status),
			}
			if o.Error != nil {
				fields = append(fields, zap.String("code", o.Error.Code))
			}
			s.logger.Info("operation applied", fields...)
		}
	}
	if err != nil {
		s.logOutcome("turn", userID, sessionID, err)
	}
	return turn, err
}

// ownedSession validates input and checks that the session belongs to the user.
func (s *Service) ownedSession(ctx context.Context, input SessionInput) (string, string, error) {
	userID, err := requireUser(input.UserID)
	if err != nil {
		return "", "", err
	}
	sessionID := strings.TrimSpace(input.SessionID)
	if sessionID == "" {
		return "", "", errors.NewInvalidRequest("session_id is required")
	}
	sess, err := db.GetSession(ctx, s.db, sessionID)
	if err != nil {
		return "", "", err
	}
	if sess.UserID != userID {
		return "", "", errors.NewNotFound("session", sessionID)
	}
	return userID, sessionID, nil
}

// logOutcome logs a failed operation: internal errors at error level,
// recoverable ones at info.
func (s *Service) logOutcome(op, userID, sessionID string, err error) {
	fields := []zap.Field{
		zap.String("op", op),
		zap.String("session_id", sessionID),
		zap.String("user_id", userID),
	}
	qErr, ok := errors.As(err)
	if !ok || !qErr.Recoverable() {
		if ok {
			fields = append(fields, zap.Any("details", qErr.Details))
		}
		s.logger.Error("operation failed", append(fields, zap.Error(err))...)
		return
	}
	s.logger.Info("operation rejected", append(fields, zap.String("code", string(qErr.Code)))...)
}
