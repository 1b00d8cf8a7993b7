package insights

import (
	"math"
	"sort"
	"time"

	"github.com/hpungsan/quire/internal/journal"
)

// Window is the time range a report covers: the Days days ending at End.
type Window struct {
	End  time.Time
	Days int
}

// Start is the beginning of the window.
func (w Window) Start() time.Time {
	return w.End.AddDate(0, 0, -w.days())
}

func (w Window) days() int {
	if w.Days < 1 {
		return 1
	}
	return w.Days
}

// trendDays is how many days with data the mood trend keeps.
const trendDays = 7

// topN bounds activity and theme rankings.
const topN = 5

const dateLayout = "2006-01-02"

// Generate builds a report. entries must already be limited to the window
// and sorted by creation time; Generate does no filtering of its own.
// Identical input yields identical output.
func Generate(userID string, entries []journal.Entry, w Window) Report {
	r := Report{
		UserID: userID,
		Period: Period{
			Start: w.Start().UTC().Format(dateLayout),
			End:   w.End.UTC().Format(dateLayout),
			Days:  w.days(),
		},
	}
	if len(entries) == 0 {
		r.Summary.Message = NotEnoughData
		return r
	}

	r.Summary = summarize(entries, w.days())

	moods := moodDistribution(entries)
	p := &Patterns{
		MoodDistribution: moods,
		AverageEnergy:    averageEnergy(entries),
		TopActivities:    rank(entries, activityFields),
		CommonThemes:     rank(entries, themeFields),
	}
	if len(moods) > 0 {
		p.DominantMood = moods[0].Mood
	}
	if len(p.MoodDistribution) > 0 || p.AverageEnergy != nil || len(p.TopActivities) > 0 || len(p.CommonThemes) > 0 {
		r.Patterns = p
	}

	if trend := moodTrend(entries); len(trend) > 0 {
		r.Trends = &Trends{MoodTrend: trend}
	}

	r.Recommendations = recommend(r.Summary, p)
	return r
}

func summarize(entries []journal.Entry, days int) Summary {
	total := len(entries)
	perDay := round(float64(total)/float64(days), 2)

	sum := 0
	var longest *LongestEntry
	for _, e := range entries {
		n := len([]rune(e.RawText))
		sum += n
		if longest == nil || n > longest.Length {
			longest = &LongestEntry{ID: e.ID, Length: n, Date: e.CreatedAt.UTC().Format(dateLayout)}
		}
	}
	avgLen := int(math.Round(float64(sum) / float64(total)))

	return Summary{
		TotalEntries:     &total,
		AvgEntriesPerDay: &perDay,
		AvgEntryLength:   &avgLen,
		LongestEntry:     longest,
	}
}

// moodDistribution counts each entry's last mood, most frequent first,
// ties in first-seen order.
func moodDistribution(entries []journal.Entry) []MoodShare {
	counts := newCounter()
	tagged := 0
	for _, e := range entries {
		mood, ok := lastValue(e.Data, moodFields)
		if !ok {
			continue
		}
		tagged++
		counts.add(mood)
	}
	if tagged == 0 {
		return nil
	}

	ranked := counts.ranked()
	out := make([]MoodShare, len(ranked))
	for i, c := range ranked {
		out[i] = MoodShare{
			Mood:       c.Name,
			Count:      c.Count,
			Percentage: round(float64(c.Count)*100/float64(tagged), 1),
		}
	}
	return out
}

func averageEnergy(entries []journal.Entry) *float64 {
	sum, n := 0.0, 0
	for _, e := range entries {
		v, ok := lastValue(e.Data, energyFields)
		if !ok {
			continue
		}
		if f, ok := parseEnergy(v); ok {
			sum += f
			n++
		}
	}
	if n == 0 {
		return nil
	}
	avg := round(sum/float64(n), 1)
	return &avg
}

func rank(entries []journal.Entry, fields []string) []Count {
	counts := newCounter()
	for _, e := range entries {
		for _, v := range fieldValues(e.Data, fields) {
			counts.add(v)
		}
	}
	ranked := counts.ranked()
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	if len(ranked) == 0 {
		return nil
	}
	return ranked
}

// moodTrend keeps the last scored mood of each UTC day, for the most recent
// days that have one. Days without data are skipped, not interpolated.
func moodTrend(entries []journal.Entry) []TrendPoint {
	byDay := make(map[string]TrendPoint)
	for _, e := range entries {
		mood, ok := lastValue(e.Data, moodFields)
		if !ok {
			continue
		}
		score, ok := moodScore(mood)
		if !ok {
			continue
		}
		date := e.CreatedAt.UTC().Format(dateLayout)
		byDay[date] = TrendPoint{Date: date, Mood: mood, Score: score}
	}

	points := make([]TrendPoint, 0, len(byDay))
	for _, p := range byDay {
		points = append(points, p)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date < points[j].Date })
	if len(points) > trendDays {
		points = points[len(points)-trendDays:]
	}
	return points
}

// Recommendation texts, in firing order.
const (
	RecommendRest      = "Your energy has been low. Plan some rest and protect your sleep."
	RecommendGrounding = "Your mood has leaned negative. Try a grounding activity such as a short walk or a breathing exercise."
	RecommendFrequency = "Entries have been sparse. Journaling a little each day makes patterns easier to spot."
	RecommendKeepGoing = "Your mood has been mostly positive. Keep up the habits that are working."
	RecommendActivity  = "Note what you did each day so activity patterns can show up."
)

// recommend applies independent rules in fixed order.
func recommend(s Summary, p *Patterns) []string {
	var out []string

	if p.AverageEnergy != nil && *p.AverageEnergy < 4 {
		out = append(out, RecommendRest)
	}

	dominant, scored := 0, false
	if p.DominantMood != "" {
		dominant, scored = moodScore(p.DominantMood)
	}
	if scored && dominant <= 2 {
		out = append(out, RecommendGrounding)
	}
	if s.AvgEntriesPerDay != nil && *s.AvgEntriesPerDay < 0.5 {
		out = append(out, RecommendFrequency)
	}
	if scored && dominant >= 4 {
		out = append(out, RecommendKeepGoing)
	}
	if len(p.TopActivities) == 0 {
		out = append(out, RecommendActivity)
	}

	return out
}

type counter struct {
	counts map[string]int
	order  []string
}

func newCounter() *counter {
	return &counter{counts: make(map[string]int)}
}

func (c *counter) add(name string) {
	if _, ok := c.counts[name]; !ok {
		c.order = append(c.order, name)
	}
	c.counts[name]++
}

// ranked sorts by count descending; the stable sort keeps first-seen order on ties.
func (c *counter) ranked() []Count {
	out := make([]Count, len(c.order))
	for i, name := range c.order {
		out[i] = Count{Name: name, Count: c.counts[name]}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

func round(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}
