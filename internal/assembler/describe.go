package assembler

// Field describes one input of an operation.
type Field struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required,omitempty"`
	Description string `json:"description"`
}

// OperationSpec describes an operation the model runtime may invoke.
type OperationSpec struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Inputs      []Field `json:"inputs"`
}

// DescribeOperations lists the invocable operations in a fixed order.
func DescribeOperations() []OperationSpec {
	return []OperationSpec{
		{
			Name:        OpStructureText,
			Description: "Classify fragments of the user's message into template sections. Section names may be canonical names or aliases.",
			Inputs: []Field{
				{Name: "raw_text", Type: "string", Description: "The user's message as written."},
				{Name: "sections", Type: "object<string,string>", Description: "Section name to fragment."},
				{Name: "hints", Type: "array<{section,fragment}>", Description: "Use instead of sections to send several fragments to one section."},
			},
		},
		{
			Name:        OpCreateTask,
			Description: "Create a todo item. New tasks rank last unless a priority is given (1 is highest).",
			Inputs: []Field{
				{Name: "title", Type: "string", Description: "Task title. Optional when phrase is given."},
				{Name: "phrase", Type: "string", Description: "Free text such as \"I need to call mom\"; the title is inferred."},
				{Name: "description", Type: "string", Description: "Longer notes."},
				{Name: "priority", Type: "integer", Description: "Rank, 1 is highest."},
				{Name: "due_date", Type: "string", Description: "YYYY-MM-DD."},
			},
		},
		{
			Name:        OpCompleteTask,
			Description: "Complete a pending task by id or by what the user called it. Ambiguous or weak matches fail so the user can be asked.",
			Inputs: []Field{
				{Name: "id", Type: "string", Description: "Exact task id."},
				{Name: "title", Type: "string", Description: "The user's phrase, e.g. \"I bought milk\"."},
			},
		},
		{
			Name:        OpFinalize,
			Description: "Save the current draft as a journal entry and start a new empty draft.",
			Inputs:      []Field{},
		},
		{
			Name:        OpSearch,
			Description: "Full-text search over the user's past journal entries.",
			Inputs: []Field{
				{Name: "query", Type: "string", Required: true, Description: "Search terms."},
				{Name: "limit", Type: "integer", Description: "Maximum hits, default 10."},
			},
		},
		{
			Name:        OpInsights,
			Description: "Mood, activity and trend report over recent entries.",
			Inputs: []Field{
				{Name: "days", Type: "integer", Description: "Window length in days, default 30."},
			},
		},
	}
}
