package tasks

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hpungsan/quire/internal/errors"
)

// DefaultThreshold is the score a title match must exceed.
const DefaultThreshold = 0.5

// scoreEpsilon treats scores this close as equal.
const scoreEpsilon = 1e-9

// stopWords carry no meaning for matching.
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "i": true, "to": true, "my": true,
	"of": true, "for": true, "and": true, "at": true, "on": true, "in": true,
	"with": true, "some": true, "me": true, "it": true,
}

// Tokenize lowercases s, splits on anything that is not a letter or digit
// and drops stop words.
func Tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if !stopWords[f] {
			out = append(out, f)
		}
	}
	return out
}

// Score rates how well phrase refers to title, from 0 to 2.
//
// The first half is containment: 1 when the title's words appear as a run
// inside the phrase or the other way round, otherwise the larger share of
// one side's words found on the other. The second half is the overlap of
// distinct words (shared / union).
func Score(phrase, title string) float64 {
	p, t := Tokenize(phrase), Tokenize(title)
	if len(p) == 0 || len(t) == 0 {
		return 0
	}

	ps, ts := toSet(p), toSet(t)
	shared := 0
	for w := range ts {
		if ps[w] {
			shared++
		}
	}
	union := len(ps) + len(ts) - shared
	overlap := float64(shared) / float64(union)

	var containment float64
	pj, tj := " "+strings.Join(p, " ")+" ", " "+strings.Join(t, " ")+" "
	if strings.Contains(pj, tj) || strings.Contains(tj, pj) {
		containment = 1
	} else {
		containment = math.Max(
			float64(shared)/float64(len(ts)),
			float64(shared)/float64(len(ps)),
		)
	}

	return containment + overlap
}

func toSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// Match is a resolved title match.
type Match struct {
	Task      Task    `json:"task"`
	MatchedOn string  `json:"matched_on"`
	Score     float64 `json:"score"`
}

// MatchTitle picks the pending task phrase most likely refers to.
//
// The best score wins. Ties go to the earlier due date (undated last), then to
// the lower priority number. Anything still tied is AMBIGUOUS_MATCH; a best
// score that does not exceed threshold is NO_MATCH. The input slice is not modified.
func MatchTitle(pending []Task, phrase string, threshold float64) (Match, error) {
	best := -1.0
	var top []Task
	for _, t := range pending {
		if !t.Pending() {
			continue
		}
		s := Score(phrase, t.Title)
		switch {
		case s > best+scoreEpsilon:
			best = s
			top = append(top[:0:0], t)
		case math.Abs(s-best) <= scoreEpsilon:
			top = append(top, t)
		}
	}

	if len(top) == 0 || best <= threshold {
		return Match{}, errors.NewNoMatch(phrase, math.Max(best, 0))
	}

	top = narrow(top, func(a, b Task) int { return compareDue(a.DueDate, b.DueDate) })
	top = narrow(top, func(a, b Task) int { return a.Priority - b.Priority })

	if len(top) > 1 {
		SortPending(top)
		candidates := make([]map[string]any, 0, len(top))
		for _, t := range top {
			c := map[string]any{
				"id":       t.ID,
				"title":    t.Title,
				"priority": t.Priority,
				"score":    best,
			}
			if t.DueDate != nil {
				c["due_date"] = t.DueDate.Format("2006-01-02")
			}
			candidates = append(candidates, c)
		}
		return Match{}, errors.NewAmbiguousMatch(phrase, candidates)
	}

	return Match{Task: top[0], MatchedOn: top[0].Title, Score: best}, nil
}

// narrow keeps the tasks that compare lowest under cmp.
func narrow(list []Task, cmp func(a, b Task) int) []Task {
	if len(list) < 2 {
		return list
	}
	keep := []Task{list[0]}
	for _, t := range list[1:] {
		switch c := cmp(t, keep[0]); {
		case c < 0:
			keep = []Task{t}
		case c == 0:
			keep = append(keep, t)
		}
	}
	return keep
}

// inferPrefixes introduce a task in free text, longest first.
var inferPrefixes = []string{
	"don't forget to ",
	"dont forget to ",
	"remember to ",
	"remind me to ",
	"i need to ",
	"i have to ",
	"i've got to ",
	"i must ",
	"i should ",
	"todo: ",
	"todo ",
}

// InferTitle extracts a task title from phrasing like "I need to call mom".
func InferTitle(phrase string) (string, bool) {
	s := strings.TrimSpace(phrase)
	lower := strings.ToLower(s)
	if len(lower) != len(s) {
		s = lower
	}
	for _, prefix := range inferPrefixes {
		i := strings.Index(lower, prefix)
		if i < 0 || (i > 0 && !isBoundary(lower[i-1])) {
			continue
		}
		title := strings.TrimSpace(s[i+len(prefix):])
		title = strings.TrimRight(title, ".!?;, ")
		if title == "" {
			return "", false
		}
		r, size := utf8.DecodeRuneInString(title)
		return string(unicode.ToUpper(r)) + title[size:], true
	}
	return "", false
}

func isBoundary(b byte) bool {
	return b == ' ' || b == ',' || b == '.' || b == ';' || b == '\n'
}
