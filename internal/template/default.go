package template

// DefaultName is the name of the built-in template.
const DefaultName = "Daily Journal"

// defaultSections is used when no template file is configured.
var defaultSections = []SectionDef{
	{Name: "Events", Description: "Things that happened or are scheduled: meetings, appointments, outings.", Aliases: []string{"happenings", "calendar", "schedule"}},
	{Name: "Things Done", Description: "Accomplishments and completed work.", Aliases: []string{"accomplishments", "done", "achievements", "activities"}},
	{Name: "Tasks", Description: "Things the user still needs to do.", Aliases: []string{"todo", "todos", "to do", "next steps"}},
	{Name: "Mood", Description: "How the user feels, in a word or short phrase.", Aliases: []string{"feelings", "emotions", "feeling"}},
	{Name: "Energy", Description: "Energy level, 1-10 or low/medium/high.", Aliases: []string{"energy level"}},
	{Name: "Themes", Description: "Recurring topics or tags for the day.", Aliases: []string{"tags", "topics"}},
	{Name: "Gratitude", Description: "Things the user is grateful for.", Aliases: []string{"grateful", "thankful"}},
	{Name: "Open Reflection", Description: "Free-form thoughts that fit nowhere else.", Aliases: []string{"reflection", "notes", "thoughts", "other"}},
}

// Default returns the built-in template.
func Default() *Template {
	t, err := New(DefaultName, defaultSections)
	if err != nil {
		panic("template: invalid built-in template: " + err.Error())
	}
	return t
}
