package assembler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hpungsan/quire/internal/draft"
	"github.com/hpungsan/quire/internal/errors"
	"github.com/hpungsan/quire/internal/insights"
	"github.com/hpungsan/quire/internal/journal"
	"github.com/hpungsan/quire/internal/tasks"
)

// Operation names accepted by Apply.
const (
	OpStructureText = "structure_text"
	OpCreateTask    = "create_task"
	OpCompleteTask  = "complete_task"
	OpFinalize      = "finalize"
	OpSearch        = "search"
	OpInsights      = "insights"
)

// StructureArgs carries classifier output. Sections is the plain
// section -> fragment form; Hints allows one fragment per entry, so the same
// section may appear more than once. Hints are applied before Sections.
type StructureArgs struct {
	RawText  string            `json:"raw_text,omitempty"`
	Sections map[string]string `json:"sections,omitempty"`
	Hints    []draft.Hint      `json:"hints,omitempty"`
}

// Contribution converts the arguments into a draft contribution.
func (s StructureArgs) Contribution() draft.Contribution {
	hints := append([]draft.Hint(nil), s.Hints...)
	hints = append(hints, draft.HintsFromMap(s.Sections)...)
	return draft.Contribution{RawText: s.RawText, Hints: hints}
}

// CreateTaskArgs creates a task. When Title is empty it is inferred from
// Phrase ("I need to call mom" -> "Call mom").
type CreateTaskArgs struct {
	Title       string `json:"title,omitempty"`
	Phrase      string `json:"phrase,omitempty"`
	Description string `json:"description,omitempty"`
	Priority    int    `json:"priority,omitempty"`
	DueDate     string `json:"due_date,omitempty"`
}

// CompleteTaskArgs completes a task by exact id or by approximate title.
type CompleteTaskArgs struct {
	ID    string `json:"id,omitempty"`
	Title string `json:"title,omitempty"`
}

// SearchArgs runs a full-text search over finalized entries.
type SearchArgs struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// InsightsArgs requests a report over the last Days days.
type InsightsArgs struct {
	Days int `json:"days,omitempty"`
}

// Invocation is one operation requested by the model runtime.
type Invocation struct {
	Op   string          `json:"op"`
	Args json.RawMessage `json:"args,omitempty"`
}

// Outcome statuses.
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// Outcome is the result of one invocation.
type Outcome struct {
	Op     string        `json:"op"`
	Status string        `json:"status"`
	Result any           `json:"result,omitempty"`
	Error  *OutcomeError `json:"error,omitempty"`
}

// OutcomeError is a structured, user-recoverable failure.
type OutcomeError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Turn collects the outcomes of one Apply call, in invocation order.
type Turn struct {
	SessionID string    `json:"session_id"`
	Outcomes  []Outcome `json:"outcomes"`
	Applied   int       `json:"applied"`
	Failed    int       `json:"failed"`
	Skipped   int       `json:"skipped"`
}

// Apply runs invocations in order while holding the session lock.
//
// A failing invocation is recorded in its outcome and the next one still
// runs. If ctx ends part way, the remaining invocations are marked skipped,
// nothing already applied is rolled back, and TURN_INTERRUPTED is returned
// together with the partial turn.
func (a *Assembler) Apply(ctx context.Context, userID, sessionID string, invocations []Invocation) (*Turn, error) {
	if err := a.checkSession(ctx, userID, sessionID); err != nil {
		return nil, err
	}

	turn := &Turn{SessionID: sessionID, Outcomes: make([]Outcome, 0, len(invocations))}

	unlock, err := a.lock(ctx, sessionID)
	if err != nil {
		for _, inv := range invocations {
			turn.Outcomes = append(turn.Outcomes, Outcome{Op: inv.Op, Status: StatusSkipped})
		}
		turn.Skipped = len(invocations)
		return turn, errors.NewTurnInterrupted(0, len(invocations), err)
	}
	defer unlock()

	for i, inv := range invocations {
		if ctxErr := ctx.Err(); ctxErr != nil {
			for _, rest := range invocations[i:] {
				turn.Outcomes = append(turn.Outcomes, Outcome{Op: rest.Op, Status: StatusSkipped})
			}
			turn.Skipped = len(invocations) - i
			a.logger.Warn("turn interrupted",
				zap.String("session_id", sessionID),
				zap.Int("applied", turn.Applied),
				zap.Int("skipped", turn.Skipped),
				zap.Error(ctxErr))
			return turn, errors.NewTurnInterrupted(turn.Applied, turn.Skipped, ctxErr)
		}

		result, err := a.dispatch(ctx, userID, sessionID, inv)
		if err != nil {
			turn.Outcomes = append(turn.Outcomes, Outcome{Op: inv.Op, Status: StatusError, Error: outcomeError(err)})
			turn.Failed++
			a.logger.Info("invocation failed",
				zap.String("session_id", sessionID),
				zap.String("op", inv.Op),
				zap.Error(err))
			continue
		}
		turn.Outcomes = append(turn.Outcomes, Outcome{Op: inv.Op, Status: StatusOK, Result: result})
		turn.Applied++
	}

	a.logger.Info("turn applied",
		zap.String("session_id", sessionID),
		zap.String("user_id", userID),
		zap.Int("applied", turn.Applied),
		zap.Int("failed", turn.Failed))
	return turn, nil
}

func (a *Assembler) dispatch(ctx context.Context, userID, sessionID string, inv Invocation) (any, error) {
	switch strings.TrimSpace(inv.Op) {
	case OpStructureText:
		var args StructureArgs
		if err := decodeArgs(inv, &args); err != nil {
			return nil, err
		}
		return a.structure(ctx, userID, sessionID, args)

	case OpCreateTask:
		var args CreateTaskArgs
		if err := decodeArgs(inv, &args); err != nil {
			return nil, err
		}
		return a.CreateTask(ctx, userID, args)

	case OpCompleteTask:
		var args CompleteTaskArgs
		if err := decodeArgs(inv, &args); err != nil {
			return nil, err
		}
		return a.CompleteTask(ctx, userID, args)

	case OpFinalize:
		entry, err := a.finalize(ctx, userID, sessionID)
		if err != nil {
			return nil, err
		}
		return entry, nil

	case OpSearch:
		var args SearchArgs
		if err := decodeArgs(inv, &args); err != nil {
			return nil, err
		}
		return a.Search(ctx, userID, args)

	case OpInsights:
		var args InsightsArgs
		if err := decodeArgs(inv, &args); err != nil {
			return nil, err
		}
		return a.insights(ctx, userID, args)

	default:
		return nil, errors.NewInvalidRequest(fmt.Sprintf("unknown operation %q", inv.Op))
	}
}

func decodeArgs(inv Invocation, dst any) error {
	if len(inv.Args) == 0 || string(inv.Args) == "null" {
		return nil
	}
	if err := json.Unmarshal(inv.Args, dst); err != nil {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid args for %s: %v", inv.Op, err))
	}
	return nil
}

func outcomeError(err error) *OutcomeError {
	qErr, ok := errors.As(err)
	if !ok {
		qErr = errors.NewInternal(err)
	}
	out := &OutcomeError{Code: string(qErr.Code), Message: qErr.Message}
	if qErr.Code != errors.ErrInternal {
		out.Details = qErr.Details
	}
	return out
}

func (a *Assembler) structure(ctx context.Context, userID, sessionID string, args StructureArgs) (*draft.Result, error) {
	c := args.Contribution()
	if len(c.Hints) == 0 {
		return nil, errors.NewInvalidRequest("sections or hints are required")
	}
	return a.deps.Drafts.ApplyContribution(ctx, sessionID, userID, a.TemplateFor(sessionID), c)
}

// CreateTask creates a task for the user.
func (a *Assembler) CreateTask(ctx context.Context, userID string, args CreateTaskArgs) (tasks.Task, error) {
	title := strings.TrimSpace(args.Title)
	if title == "" && args.Phrase != "" {
		inferred, ok := tasks.InferTitle(args.Phrase)
		if !ok {
			return tasks.Task{}, errors.NewInvalidRequest(fmt.Sprintf("no task found in %q", args.Phrase))
		}
		title = inferred
	}
	due, err := tasks.ParseDueDate(args.DueDate)
	if err != nil {
		return tasks.Task{}, err
	}
	return a.deps.Tasks.Create(ctx, userID, tasks.NewTask{
		Title:       title,
		Description: args.Description,
		Priority:    args.Priority,
		DueDate:     due,
	})
}

// CompleteTask completes by id when given, otherwise by title match.
func (a *Assembler) CompleteTask(ctx context.Context, userID string, args CompleteTaskArgs) (tasks.Match, error) {
	id, title := strings.TrimSpace(args.ID), strings.TrimSpace(args.Title)
	switch {
	case id != "" && title != "":
		return tasks.Match{}, errors.NewInvalidRequest("cannot specify both id and title")
	case id != "":
		t, err := a.deps.Tasks.CompleteByID(ctx, userID, id)
		if err != nil {
			return tasks.Match{}, err
		}
		return tasks.Match{Task: t, MatchedOn: "id", Score: 0}, nil
	case title != "":
		return a.deps.Tasks.CompleteByTitle(ctx, userID, title)
	default:
		return tasks.Match{}, errors.NewInvalidRequest("id or title is required")
	}
}

// DefaultSearchLimit and MaxSearchLimit bound search results.
const (
	DefaultSearchLimit = 10
	MaxSearchLimit     = 50
)

// SearchResult wraps search hits.
type SearchResult struct {
	Query string              `json:"query"`
	Hits  []journal.SearchHit `json:"hits"`
}

// Search runs a full-text search over the user's entries.
func (a *Assembler) Search(ctx context.Context, userID string, args SearchArgs) (SearchResult, error) {
	query := strings.TrimSpace(args.Query)
	if query == "" {
		return SearchResult{}, errors.NewInvalidRequest("query is required")
	}
	limit := args.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}

	hits, err := a.deps.Entries.SearchEntries(ctx, userID, query, limit)
	if err != nil {
		if _, ok := errors.As(err); ok {
			return SearchResult{}, err
		}
		return SearchResult{}, errors.NewInternal(err)
	}

	if hits == nil {
		hits = []journal.SearchHit{}
	}
	return SearchResult{Query: query, Hits: hits}, nil
}

func (a *Assembler) insights(ctx context.Context, userID string, args InsightsArgs) (insights.Report, error) {
	if userID == "" {
		return insights.Report{}, errors.NewInvalidRequest("user_id is required")
	}
	days := args.Days
	if days < 0 {
		return insights.Report{}, errors.NewInvalidRequest("days must be positive")
	}
	if days == 0 {
		days = a.defaultDays
	}
	if days > a.maxDays {
		days = a.maxDays
	}

	w := insights.Window{End: a.now().UTC(), Days: days}
	entries, err := a.deps.Entries.ListEntries(ctx, userID, w.Start(), w.End)
	if err != nil {
		return insights.Report{}, errors.NewInternal(err)
	}
	return insights.Generate(userID, entries, w), nil
}
