package mcp

import "github.com/mark3labs/mcp-go/mcp"

var userIDParam = mcp.WithString("user_id",
	mcp.Required(),
	mcp.Description("Owner of the session, entries and tasks"),
)

var sessionIDParam = mcp.WithString("session_id",
	mcp.Required(),
	mcp.Description("Session returned by session_start"),
)

var sessionStartToolDef = mcp.NewTool("session_start",
	mcp.WithDescription("Start a journaling session for a user. The session pins the current template until the next journal_context call."),
	userIDParam,
	mcp.WithString("session_id", mcp.Description("Optional client-chosen UUID; generated when omitted")),
)

var sessionPreferenceToolDef = mcp.NewTool("session_preference",
	mcp.WithDescription("Store a user preference (tone, language, reminders). Preferences are returned by journal_context."),
	userIDParam,
	mcp.WithString("key", mcp.Required(), mcp.Description("Preference name")),
	mcp.WithString("value", mcp.Required(), mcp.Description("Preference value; empty string stores an empty value")),
)

var contextToolDef = mcp.NewTool("journal_context",
	mcp.WithDescription("Build the context for one model turn: active template, current draft, pending tasks, preferences and the operations the model may request. Picks up a reloaded template."),
	userIDParam,
	sessionIDParam,
)

var structureToolDef = mcp.NewTool("journal_structure",
	mcp.WithDescription("Merge classified fragments of the user's turn into the session draft. Section names are matched against template names and aliases, case-insensitively. Unknown names reject the whole contribution."),
	userIDParam,
	sessionIDParam,
	mcp.WithString("raw_text", mcp.Description("The user's turn as spoken; appended to the entry's raw text")),
	mcp.WithObject("sections", mcp.Description("Map of section name to fragment, e.g. {\"Mood\": \"tired but calm\"}")),
	mcp.WithArray("hints",
		mcp.Description("Ordered list of {section, fragment} pairs; applied before sections"),
		mcp.Items(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"section":  map[string]any{"type": "string"},
				"fragment": map[string]any{"type": "string"},
			},
			"required": []string{"section", "fragment"},
		}),
	),
)

var draftToolDef = mcp.NewTool("journal_draft",
	mcp.WithDescription("Show the session's current draft without modifying it."),
	userIDParam,
	sessionIDParam,
)

var finalizeToolDef = mcp.NewTool("journal_finalize",
	mcp.WithDescription("Persist the draft as an immutable journal entry and clear it. Fails with EMPTY_DRAFT when nothing was captured."),
	userIDParam,
	sessionIDParam,
)

var turnToolDef = mcp.NewTool("journal_turn",
	mcp.WithDescription("Apply a batch of operations in order under the session lock. Each invocation is {op, args}; ops are structure_text, create_task, complete_task, finalize, search and insights. A failed invocation does not stop the batch."),
	userIDParam,
	sessionIDParam,
	mcp.WithArray("invocations",
		mcp.Required(),
		mcp.Description("Ordered list of {op, args} objects"),
		mcp.Items(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"op":   map[string]any{"type": "string"},
				"args": map[string]any{"type": "object"},
			},
			"required": []string{"op"},
		}),
	),
)

var searchToolDef = mcp.NewTool("journal_search",
	mcp.WithDescription("Full-text search across the user's finalized entries. Snippets are HTML-escaped with <b> highlights."),
	userIDParam,
	mcp.WithString("query", mcp.Required(), mcp.Description("Search terms; every term must match")),
	mcp.WithNumber("limit", mcp.Description("Max results (default 10, max 50)")),
)

var entriesToolDef = mcp.NewTool("journal_entries",
	mcp.WithDescription("List the user's entries newest first, or fetch one entry with its Markdown rendering when id is given."),
	userIDParam,
	mcp.WithString("id", mcp.Description("Entry id to fetch")),
	mcp.WithNumber("limit", mcp.Description("Max results (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Pagination offset")),
)

var exportToolDef = mcp.NewTool("journal_export",
	mcp.WithDescription("Export the user's entries to a JSONL file in the exports directory."),
	userIDParam,
	mcp.WithString("path", mcp.Description("Output path inside the exports directory; generated when omitted")),
)

var taskCreateToolDef = mcp.NewTool("task_create",
	mcp.WithDescription("Create a todo item. Give a title, or a phrase like \"I need to call mom\" to infer one."),
	userIDParam,
	mcp.WithString("title", mcp.Description("Task title")),
	mcp.WithString("phrase", mcp.Description("Natural phrasing to infer the title from")),
	mcp.WithString("description", mcp.Description("Optional details")),
	mcp.WithNumber("priority", mcp.Description("Lower ranks first; 0 ranks after every pending task")),
	mcp.WithString("due_date", mcp.Description("YYYY-MM-DD or RFC 3339")),
)

var taskCompleteToolDef = mcp.NewTool("task_complete",
	mcp.WithDescription("Complete a pending task by id, or by an approximate title such as \"I bought milk\". Returns NO_MATCH or AMBIGUOUS_MATCH when the title is unclear."),
	userIDParam,
	mcp.WithString("id", mcp.Description("Task id")),
	mcp.WithString("title", mcp.Description("Approximate title or phrase")),
)

var taskListToolDef = mcp.NewTool("task_list",
	mcp.WithDescription("List pending tasks by priority, due date and creation time."),
	userIDParam,
	mcp.WithBoolean("include_completed", mcp.Description("Also list completed tasks, newest completion first")),
)

var insightsToolDef = mcp.NewTool("insights_generate",
	mcp.WithDescription("Summarize the user's recent entries: mood distribution, activities and suggestions."),
	userIDParam,
	mcp.WithNumber("days", mcp.Description("Window size in days (default from config, capped)")),
)

var templateShowToolDef = mcp.NewTool("template_show",
	mcp.WithDescription("Show the active journal template and its version."),
)

var templateReloadToolDef = mcp.NewTool("template_reload",
	mcp.WithDescription("Reload the journal template from its configured source. Sessions switch on their next journal_context."),
)
