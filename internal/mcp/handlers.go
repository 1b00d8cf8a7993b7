package mcp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/hpungsan/quire/internal/assembler"
	"github.com/hpungsan/quire/internal/draft"
	"github.com/hpungsan/quire/internal/errors"
	"github.com/hpungsan/quire/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	svc    *ops.Service
	logger *zap.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(svc *ops.Service, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{svc: svc, logger: logger}
}

// Request types for each tool

// SessionStartRequest represents the arguments for session_start.
type SessionStartRequest struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id,omitempty"`
}

// PreferenceRequest represents the arguments for session_preference.
type PreferenceRequest struct {
	UserID string `json:"user_id"`
	Key    string `json:"key"`
	Value  string `json:"value"`
}

// SessionRequest addresses one session; used by journal_context,
// journal_draft and journal_finalize.
type SessionRequest struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// StructureRequest represents the arguments for journal_structure.
type StructureRequest struct {
	UserID    string            `json:"user_id"`
	SessionID string            `json:"session_id"`
	RawText   string            `json:"raw_text,omitempty"`
	Sections  map[string]string `json:"sections,omitempty"`
	Hints     []draft.Hint      `json:"hints,omitempty"`
}

// TurnRequest represents the arguments for journal_turn.
type TurnRequest struct {
	UserID      string                 `json:"user_id"`
	SessionID   string                 `json:"session_id"`
	Invocations []assembler.Invocation `json:"invocations"`
}

// SearchRequest represents the arguments for journal_search.
type SearchRequest struct {
	UserID string `json:"user_id"`
	Query  string `json:"query"`
	Limit  int    `json:"limit,omitempty"`
}

// EntriesRequest represents the arguments for journal_entries.
type EntriesRequest struct {
	UserID string `json:"user_id"`
	ID     string `json:"id,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// ExportRequest represents the arguments for journal_export.
type ExportRequest struct {
	UserID string `json:"user_id"`
	Path   string `json:"path,omitempty"`
}

// TaskCreateRequest represents the arguments for task_create.
type TaskCreateRequest struct {
	UserID      string `json:"user_id"`
	Title       string `json:"title,omitempty"`
	Phrase      string `json:"phrase,omitempty"`
	Description string `json:"description,omitempty"`
	Priority    int    `json:"priority,omitempty"`
	DueDate     string `json:"due_date,omitempty"`
}

// TaskCompleteRequest represents the arguments for task_complete.
type TaskCompleteRequest struct {
	UserID string `json:"user_id"`
	ID     string `json:"id,omitempty"`
	Title  string `json:"title,omitempty"`
}

// TaskListRequest represents the arguments for task_list.
type TaskListRequest struct {
	UserID           string `json:"user_id"`
	IncludeCompleted bool   `json:"include_completed,omitempty"`
}

// InsightsRequest represents the arguments for insights_generate.
type InsightsRequest struct {
	UserID string `json:"user_id"`
	Days   int    `json:"days,omitempty"`
}

// Handler implementations

// HandleSessionStart handles the session_start tool call.
func (h *Handlers) HandleSessionStart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SessionStartRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.svc.StartSession(ctx, ops.StartSessionInput{
		UserID:    input.UserID,
		SessionID: input.SessionID,
	})
	if err != nil {
		return h.fail("session_start", err), nil
	}
	return successResult(result)
}

// HandleSessionPreference handles the session_preference tool call.
func (h *Handlers) HandleSessionPreference(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PreferenceRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.svc.SetPreference(ctx, ops.SetPreferenceInput{
		UserID: input.UserID,
		Key:    input.Key,
		Value:  input.Value,
	})
	if err != nil {
		return h.fail("session_preference", err), nil
	}
	return successResult(result)
}

// HandleContext handles the journal_context tool call.
func (h *Handlers) HandleContext(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SessionRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.svc.Context(ctx, ops.SessionInput(input))
	if err != nil {
		return h.fail("journal_context", err), nil
	}
	return successResult(result)
}

// HandleStructure handles the journal_structure tool call.
func (h *Handlers) HandleStructure(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[StructureRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.svc.Structure(ctx, ops.StructureInput{
		UserID:    input.UserID,
		SessionID: input.SessionID,
		RawText:   input.RawText,
		Sections:  input.Sections,
		Hints:     input.Hints,
	})
	if err != nil {
		return h.fail("journal_structure", err), nil
	}
	return successResult(result)
}

// HandleDraft handles the journal_draft tool call.
func (h *Handlers) HandleDraft(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SessionRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.svc.Draft(ctx, ops.SessionInput(input))
	if err != nil {
		return h.fail("journal_draft", err), nil
	}
	return successResult(result)
}

// HandleFinalize handles the journal_finalize tool call.
func (h *Handlers) HandleFinalize(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SessionRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.svc.Finalize(ctx, ops.SessionInput(input))
	if err != nil {
		return h.fail("journal_finalize", err), nil
	}
	return successResult(result)
}

// HandleTurn handles the journal_turn tool call. An interrupted turn is an
// error result that still carries the outcomes applied so far.
func (h *Handlers) HandleTurn(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[TurnRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	turn, err := h.svc.Turn(ctx, ops.TurnInput{
		UserID:      input.UserID,
		SessionID:   input.SessionID,
		Invocations: input.Invocations,
	})
	if err != nil {
		h.log("journal_turn", err)
		if turn != nil {
			return errorResultWith(err, map[string]any{"turn": turn}), nil
		}
		return errorResult(err), nil
	}
	return successResult(turn)
}

// HandleSearch handles the journal_search tool call.
func (h *Handlers) HandleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SearchRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.svc.Search(ctx, ops.SearchInput{
		UserID: input.UserID,
		Query:  input.Query,
		Limit:  input.Limit,
	})
	if err != nil {
		return h.fail("journal_search", err), nil
	}
	return successResult(result)
}

// HandleEntries handles the journal_entries tool call. With an id it fetches
// one entry, otherwise it lists.
func (h *Handlers) HandleEntries(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[EntriesRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	if strings.TrimSpace(input.ID) != "" {
		entry, err := h.svc.FetchEntry(ctx, ops.FetchEntryInput{UserID: input.UserID, ID: input.ID})
		if err != nil {
			return h.fail("journal_entries", err), nil
		}
		return successResult(entry)
	}

	result, err := h.svc.ListEntries(ctx, ops.ListEntriesInput{
		UserID: input.UserID,
		Limit:  input.Limit,
		Offset: input.Offset,
	})
	if err != nil {
		return h.fail("journal_entries", err), nil
	}
	return successResult(result)
}

// HandleExport handles the journal_export tool call.
func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.svc.Export(ctx, ops.ExportInput{UserID: input.UserID, Path: input.Path})
	if err != nil {
		return h.fail("journal_export", err), nil
	}
	return successResult(result)
}

// HandleTaskCreate handles the task_create tool call.
func (h *Handlers) HandleTaskCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[TaskCreateRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.svc.CreateTask(ctx, ops.CreateTaskInput{
		UserID:      input.UserID,
		Title:       input.Title,
		Phrase:      input.Phrase,
		Description: input.Description,
		Priority:    input.Priority,
		DueDate:     input.DueDate,
	})
	if err != nil {
		return h.fail("task_create", err), nil
	}
	return successResult(result)
}

// HandleTaskComplete handles the task_complete tool call.
func (h *Handlers) HandleTaskComplete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[TaskCompleteRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.svc.CompleteTask(ctx, ops.CompleteTaskInput{
		UserID: input.UserID,
		ID:     input.ID,
		Title:  input.Title,
	})
	if err != nil {
		return h.fail("task_complete", err), nil
	}
	return successResult(result)
}

// HandleTaskList handles the task_list tool call.
func (h *Handlers) HandleTaskList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[TaskListRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.svc.ListTasks(ctx, ops.ListTasksInput{
		UserID:           input.UserID,
		IncludeCompleted: input.IncludeCompleted,
	})
	if err != nil {
		return h.fail("task_list", err), nil
	}
	return successResult(result)
}

// HandleInsights handles the insights_generate tool call.
func (h *Handlers) HandleInsights(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[InsightsRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.svc.Insights(ctx, ops.InsightsInput{UserID: input.UserID, Days: input.Days})
	if err != nil {
		return h.fail("insights_generate", err), nil
	}
	return successResult(result)
}

// HandleTemplateShow handles the template_show tool call.
func (h *Handlers) HandleTemplateShow(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return successResult(h.svc.TemplateShow())
}

// HandleTemplateReload handles the template_reload tool call.
func (h *Handlers) HandleTemplateReload(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := h.svc.TemplateReload(ctx)
	if err != nil {
		return h.fail("template_reload", err), nil
	}
	h.logger.Info("template reloaded via mcp", zap.String("template", result.Template.Name()), zap.Int("version", result.Version))
	return successResult(result)
}

// fail logs err and converts it to an error result.
func (h *Handlers) fail(tool string, err error) *mcp.CallToolResult {
	h.log(tool, err)
	return errorResult(err)
}

func (h *Handlers) log(tool string, err error) {
	if qErr, ok := errors.As(err); ok && qErr.Code != errors.ErrInternal {
		h.logger.Debug("tool failed", zap.String("tool", tool), zap.String("code", string(qErr.Code)))
		return
	}
	h.logger.Error("tool failed", zap.String("tool", tool), zap.Error(err))
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are never exposed.
func errorResult(err error) *mcp.CallToolResult {
	return errorResultWith(err, nil)
}

// errorResultWith is errorResult with extra top-level payload fields.
func errorResultWith(err error, extra map[string]any) *mcp.CallToolResult {
	var errorObj map[string]any

	if qErr, ok := errors.As(err); ok {
		msg := qErr.Message
		// Keep wrapper context such as "invocations[2]: "
		if prefix := strings.TrimSuffix(err.Error(), qErr.Error()); prefix != err.Error() && prefix != "" {
			msg = prefix + msg
		}
		errorObj = map[string]any{
			"code":    qErr.Code,
			"message": msg,
			"status":  qErr.Status,
		}
		if qErr.Code != errors.ErrInternal && qErr.Details != nil {
			errorObj["details"] = qErr.Details
		}
	} else {
		errorObj = map[string]any{
			"code":    errors.ErrInternal,
			"message": "an internal error occurred",
			"status":  500,
		}
	}

	payload := map[string]any{"error": errorObj}
	for k, v := range extra {
		payload[k] = v
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
