// Package insights aggregates finalized journal entries into mood, activity
// and trend reports. Everything here is a pure function of its input.
package insights

// NotEnoughData is the summary message for an empty window.
const NotEnoughData = "Not enough data to generate insights yet."

// Report is the derived view of a window of entries. Fields without data are
// omitted rather than zero-filled.
type Report struct {
	UserID          string    `json:"user_id,omitempty"`
	Period          Period    `json:"period"`
	Summary         Summary   `json:"summary"`
	Patterns        *Patterns `json:"patterns,omitempty"`
	Trends          *Trends   `json:"trends,omitempty"`
	Recommendations []string  `json:"recommendations,omitempty"`
}

// Period is the window the report covers, as calendar dates in UTC.
type Period struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Days  int    `json:"days"`
}

// Summary holds entry counts and lengths.
type Summary struct {
	Message          string        `json:"message,omitempty"`
	TotalEntries     *int          `json:"total_entries,omitempty"`
	AvgEntriesPerDay *float64      `json:"avg_entries_per_day,omitempty"`
	AvgEntryLength   *int          `json:"avg_entry_length,omitempty"`
	LongestEntry     *LongestEntry `json:"longest_entry,omitempty"`
}

// LongestEntry points at the entry with the most raw text.
type LongestEntry struct {
	ID     string `json:"id"`
	Length int    `json:"length"`
	Date   string `json:"date"`
}

// Patterns holds distributions over tagged fields.
type Patterns struct {
	MoodDistribution []MoodShare `json:"mood_distribution,omitempty"`
	DominantMood     string      `json:"dominant_mood,omitempty"`
	AverageEnergy    *float64    `json:"average_energy,omitempty"`
	TopActivities    []Count     `json:"top_activities,omitempty"`
	CommonThemes     []Count     `json:"common_themes,omitempty"`
}

// MoodShare is one row of the mood distribution. Percentage is relative to
// entries that carry a mood.
type MoodShare struct {
	Mood       string  `json:"mood"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// Count is a frequency of a normalized tag value.
type Count struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Trends holds time series.
type Trends struct {
	MoodTrend []TrendPoint `json:"mood_trend"`
}

// TrendPoint is the last scored mood of one day.
type TrendPoint struct {
	Date  string `json:"date"`
	Mood  string `json:"mood"`
	Score int    `json:"score"`
}
