package insights

import (
	"strconv"
	"strings"

	"github.com/hpungsan/quire/internal/journal"
	"github.com/hpungsan/quire/internal/template"
)

// Field names read from structured data, compared case-insensitively.
var (
	moodFields     = []string{"mood", "feelings"}
	energyFields   = []string{"energy", "energy level"}
	activityFields = []string{"activities", "things done"}
	themeFields    = []string{"themes", "tags"}
)

// moodScores maps mood words onto a 1 (worst) to 5 (best) scale.
var moodScores = map[string]int{
	"ecstatic": 5, "joyful": 5, "great": 5, "excellent": 5, "amazing": 5,
	"elated": 5, "thrilled": 5, "fantastic": 5, "wonderful": 5,

	"happy": 4, "good": 4, "content": 4, "grateful": 4, "excited": 4,
	"cheerful": 4, "optimistic": 4, "proud": 4, "relaxed": 4, "calm": 4,
	"peaceful": 4, "hopeful": 4, "relieved": 4,

	"okay": 3, "ok": 3, "fine": 3, "neutral": 3, "meh": 3, "alright": 3,
	"mixed": 3,

	"sad": 2, "anxious": 2, "stressed": 2, "worried": 2, "frustrated": 2,
	"lonely": 2, "down": 2, "irritated": 2, "overwhelmed": 2, "tired": 2,
	"bored": 2, "nervous": 2,

	"depressed": 1, "miserable": 1, "terrible": 1, "awful": 1, "angry": 1,
	"hopeless": 1, "devastated": 1,
}

// energyWords maps qualitative energy onto the 1-10 scale.
var energyWords = map[string]float64{
	"very low": 1, "low": 2, "medium": 5, "moderate": 5, "normal": 5,
	"high": 8, "very high": 10,
}

// fieldValues collects the values of every section matching one of names,
// split on commas and semicolons and normalized.
func fieldValues(d journal.StructuredData, names []string) []string {
	var out []string
	for _, section := range d.SectionOrder() {
		if !matchesAny(section, names) {
			continue
		}
		for _, v := range d.Sections[section].Values() {
			for _, part := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ';' }) {
				if part = template.Normalize(part); part != "" {
					out = append(out, part)
				}
			}
		}
	}
	return out
}

func matchesAny(section string, names []string) bool {
	key := template.Normalize(section)
	for _, n := range names {
		if key == n {
			return true
		}
	}
	return false
}

// lastValue returns the last non-blank value of the first matching field.
func lastValue(d journal.StructuredData, names []string) (string, bool) {
	vals := fieldValues(d, names)
	if len(vals) == 0 {
		return "", false
	}
	return vals[len(vals)-1], true
}

// moodScore scores a mood phrase by exact lookup, then by its first known word.
func moodScore(mood string) (int, bool) {
	if s, ok := moodScores[mood]; ok {
		return s, true
	}
	for _, word := range strings.FieldsFunc(mood, func(r rune) bool {
		return r == ' ' || r == '-' || r == '/' || r == '.' || r == '!'
	}) {
		if s, ok := moodScores[word]; ok {
			return s, true
		}
	}
	return 0, false
}

// parseEnergy accepts "7", "7/10", "6.5" or a qualitative word.
func parseEnergy(v string) (float64, bool) {
	if f, ok := energyWords[v]; ok {
		return f, true
	}
	v = strings.TrimSuffix(v, "/10")
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || f < 1 || f > 10 {
		return 0, false
	}
	return f, true
}
