// Package mcp exposes the journaling operations to a model runtime as MCP
// tools over stdio.
package mcp

import (
	"context"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/hpungsan/quire/internal/config"
	"github.com/hpungsan/quire/internal/ops"
)

// KnownTypes lists all valid type names.
var KnownTypes = []string{"session", "journal", "task", "insights", "template"}

const instructions = `Quire keeps a voice journal. Call session_start once per conversation,
then journal_context before each model turn. Route the user's words into template
sections with journal_structure (or batch several operations with journal_turn) and
call journal_finalize when the user is done.`

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"session_start": {
		def:     sessionStartToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionStart },
	},
	"session_preference": {
		def:     sessionPreferenceToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionPreference },
	},
	"journal_context": {
		def:     contextToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleContext },
	},
	"journal_structure": {
		def:     structureToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleStructure },
	},
	"journal_draft": {
		def:     draftToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDraft },
	},
	"journal_finalize": {
		def:     finalizeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleFinalize },
	},
	"journal_turn": {
		def:     turnToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTurn },
	},
	"journal_search": {
		def:     searchToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSearch },
	},
	"journal_entries": {
		def:     entriesToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleEntries },
	},
	"journal_export": {
		def:     exportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleExport },
	},
	"task_create": {
		def:     taskCreateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTaskCreate },
	},
	"task_complete": {
		def:     taskCompleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTaskComplete },
	},
	"task_list": {
		def:     taskListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTaskList },
	},
	"insights_generate": {
		def:     insightsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleInsights },
	},
	"template_show": {
		def:     templateShowToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTemplateShow },
	},
	"template_reload": {
		def:     templateReloadToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTemplateReload },
	},
}

// AllToolNames returns all valid tool names, sorted.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// ValidateDisabledTypes returns a list of unknown type names from the given list.
func ValidateDisabledTypes(names []string) []string {
	known := make(map[string]bool, len(KnownTypes))
	for _, t := range KnownTypes {
		known[t] = true
	}

	unknown := make([]string, 0)
	for _, name := range names {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// GetTypeForTool extracts the type name from a tool name.
// Tool names follow the pattern "type_action" (e.g., "task_create" → "task").
func GetTypeForTool(toolName string) string {
	if idx := strings.Index(toolName, "_"); idx > 0 {
		return toolName[:idx]
	}
	return ""
}

// ExpandTypesToTools returns all tool names belonging to the given types.
func ExpandTypesToTools(types []string) []string {
	if len(types) == 0 {
		return nil
	}

	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	tools := make([]string, 0)
	for name := range toolRegistry {
		if typeSet[GetTypeForTool(name)] {
			tools = append(tools, name)
		}
	}
	sort.Strings(tools)
	return tools
}

// NewServer creates a new MCP server with the journaling tools registered.
// Tools listed in cfg.DisabledTools or belonging to cfg.DisabledTypes
// are excluded from registration.
func NewServer(svc *ops.Service, cfg *config.Config, version string, logger *zap.Logger) *server.MCPServer {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := server.NewMCPServer(
		"quire",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	h := NewHandlers(svc, logger)

	// Disabled types expand first, then individual tools are added
	disabled := make(map[string]bool)
	for _, tool := range ExpandTypesToTools(cfg.DisabledTypes) {
		disabled[tool] = true
	}
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	registered := 0
	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
		registered++
	}
	logger.Debug("mcp tools registered", zap.Int("count", registered), zap.Int("disabled", len(toolRegistry)-registered))

	return s
}

// Run starts the MCP server using stdio transport. Transport errors are
// written through logger.
func Run(svc *ops.Service, cfg *config.Config, version string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := NewServer(svc, cfg, version, logger)
	return server.ServeStdio(s, server.WithErrorLogger(zap.NewStdLog(logger.Named("stdio"))))
}

// ToolHandlerFunc is the signature for tool handlers.
type ToolHandlerFunc func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
