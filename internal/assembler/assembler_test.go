package assembler

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/quire/internal/draft"
	"github.com/hpungsan/quire/internal/errors"
	"github.com/hpungsan/quire/internal/journal"
	"github.com/hpungsan/quire/internal/tasks"
	"github.com/hpungsan/quire/internal/template"
)

type fakeBackend struct {
	sessions map[string]SessionInfo
	prefs    map[string]map[string]string
	entries  []journal.Entry
	onSearch func()
}

func (f *fakeBackend) GetSession(_ context.Context, id string) (SessionInfo, error) {
	s, ok := f.sessions[id]
	if !ok {
		return SessionInfo{}, errors.NewNotFound("session", id)
	}
	return s, nil
}

func (f *fakeBackend) GetPreferences(_ context.Context, userID string) (map[string]string, error) {
	return f.prefs[userID], nil
}

func (f *fakeBackend) ListEntries(_ context.Context, userID string, from, to time.Time) ([]journal.Entry, error) {
	var out []journal.Entry
	for _, e := range f.entries {
		if e.UserID == userID && !e.CreatedAt.Before(from) && !e.CreatedAt.After(to) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeBackend) SearchEntries(_ context.Context, userID, query string, limit int) ([]journal.SearchHit, error) {
	if f.onSearch != nil {
		f.onSearch()
	}
	return []journal.SearchHit{{ID: "e1", Snippet: "[" + query + "]"}}, nil
}

var now = time.Date(2026, 3, 10, 20, 0, 0, 0, time.UTC)

type fixture struct {
	asm      *Assembler
	backend  *fakeBackend
	registry *template.Registry
	tasks    *tasks.Engine
}

func newFixture(t *testing.T, load template.Loader) *fixture {
	t.Helper()
	if load == nil {
		load = template.FileLoader("")
	}
	reg, err := template.NewRegistry(load, nil)
	require.NoError(t, err)

	backend := &fakeBackend{
		sessions: map[string]SessionInfo{
			"s1": {ID: "s1", UserID: "alice"},
			"s2": {ID: "s2", UserID: "bob"},
		},
		prefs: map[string]map[string]string{"alice": {"tone": "warm"}},
	}
	clock := func() time.Time { return now }
	te := tasks.NewEngine(nil, tasks.Options{Now: clock})
	asm := New(Deps{
		Registry:    reg,
		Sessions:    backend,
		Preferences: backend,
		Entries:     backend,
		Drafts:      draft.NewEngine(nil, draft.Options{Now: clock}),
		Tasks:       te,
	}, Options{Now: clock})
	return &fixture{asm: asm, backend: backend, registry: reg, tasks: te}
}

func invocation(t *testing.T, op string, args any) Invocation {
	t.Helper()
	inv := Invocation{Op: op}
	if args != nil {
		raw, err := json.Marshal(args)
		require.NoError(t, err)
		inv.Args = raw
	}
	return inv
}

func TestBuildContext(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	_, err := f.tasks.Create(ctx, "alice", tasks.NewTask{Title: "later", Priority: 4})
	require.NoError(t, err)
	_, err = f.tasks.Create(ctx, "alice", tasks.NewTask{Title: "first", Priority: 1})
	require.NoError(t, err)
	_, err = f.asm.Structure(ctx, "alice", "s1", StructureArgs{Sections: map[string]string{"Mood": "calm"}})
	require.NoError(t, err)

	b, err := f.asm.BuildContext(ctx, "alice", "s1")
	require.NoError(t, err)
	require.Equal(t, template.DefaultName, b.Template.Name())
	require.Equal(t, "calm", b.Draft.Sections["Mood"].String())
	require.Len(t, b.PendingTasks, 2)
	require.Equal(t, "first", b.PendingTasks[0].Title)
	require.Equal(t, "warm", b.Preferences["tone"])
	require.Len(t, b.Operations, 6)
}

func TestBuildContext_NotFound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	_, err := f.asm.BuildContext(ctx, "alice", "missing")
	require.True(t, errors.Is(err, errors.ErrNotFound))

	// Bob's session is invisible to Alice.
	_, err = f.asm.BuildContext(ctx, "alice", "s2")
	require.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestBuildContext_PicksUpReloadedTemplate(t *testing.T) {
	ctx := context.Background()
	version := 0
	load := func() (*template.Template, error) {
		version++
		if version == 1 {
			return template.New("v1", []template.SectionDef{{Name: "Events"}})
		}
		return template.New("v2", []template.SectionDef{{Name: "Events"}, {Name: "Dreams"}})
	}
	f := newFixture(t, load)

	_, err := f.asm.BuildContext(ctx, "alice", "s1")
	require.NoError(t, err)

	_, err = f.registry.Reload(ctx)
	require.NoError(t, err)

	// The session still resolves against its snapshot.
	_, err = f.asm.Structure(ctx, "alice", "s1", StructureArgs{Sections: map[string]string{"Dreams": "flying"}})
	require.True(t, errors.Is(err, errors.ErrUnknownSection))

	b, err := f.asm.BuildContext(ctx, "alice", "s1")
	require.NoError(t, err)
	require.Equal(t, "v2", b.Template.Name())

	_, err = f.asm.Structure(ctx, "alice", "s1", StructureArgs{Sections: map[string]string{"Dreams": "flying"}})
	require.NoError(t, err)
}

func TestFinalize_UnpinsTemplate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	_, err := f.asm.BuildContext(ctx, "alice", "s1")
	require.NoError(t, err)
	_, err = f.asm.Structure(ctx, "alice", "s1", StructureArgs{Sections: map[string]string{"Mood": "calm"}})
	require.NoError(t, err)
	require.Equal(t, 1, f.asm.pinned())

	_, err = f.asm.Finalize(ctx, "alice", "s1")
	require.NoError(t, err)
	require.Equal(t, 0, f.asm.pinned())
	_, err = f.asm.Finalize(ctx, "alice", "s1")
	require.True(t, errors.Is(err, errors.ErrEmptyDraft))

	turn, err := f.asm.Apply(ctx, "alice", "s1", []Invocation{
		invocation(t, OpStructureText, StructureArgs{Sections: map[string]string{"Mood": "tired"}}),
		invocation(t, OpFinalize, nil),
	})
	require.NoError(t, err)
	require.Equal(t, StatusOK, turn.Outcomes[1].Status)
	require.Equal(t, 0, f.asm.pinned())
}

func TestTemplateFor_PinnedSetIsBounded(t *testing.T) {
	f := newFixture(t, nil)

	for i := 0; i < maxPinnedTemplates+10; i++ {
		require.NotNil(t, f.asm.TemplateFor(fmt.Sprintf("s-%d", i)))
	}
	require.Equal(t, maxPinnedTemplates, f.asm.pinned())
}

func TestApply_RunsInOrderAndContinuesAfterErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	turn, err := f.asm.Apply(ctx, "alice", "s1", []Invocation{
		invocation(t, OpStructureText, StructureArgs{RawText: "Board meeting Friday", Sections: map[string]string{"Events": "board meeting Friday"}}),
		invocation(t, OpCreateTask, CreateTaskArgs{Phrase: "I need to buy milk"}),
		invocation(t, OpCreateTask, CreateTaskArgs{Title: "Buy a cat"}),
		invocation(t, OpCompleteTask, CompleteTaskArgs{Title: "I bought milk"}),
		invocation(t, OpStructureText, StructureArgs{Sections: map[string]string{"Dreams": "x"}}),
		invocation(t, OpStructureText, StructureArgs{Sections: map[string]string{"Events": "dentist Tuesday"}}),
		{Op: "teleport"},
		invocation(t, OpFinalize, nil),
		invocation(t, OpFinalize, nil),
	})
	require.NoError(t, err)
	require.Len(t, turn.Outcomes, 9)
	require.Equal(t, 6, turn.Applied)
	require.Equal(t, 3, turn.Failed)

	statuses := make([]string, len(turn.Outcomes))
	for i, o := range turn.Outcomes {
		statuses[i] = o.Status
	}
	require.Equal(t, []string{
		StatusOK, StatusOK, StatusOK, StatusOK,
		StatusError, StatusOK, StatusError, StatusOK, StatusError,
	}, statuses)

	require.Equal(t, "UNKNOWN_SECTION", turn.Outcomes[4].Error.Code)
	require.Equal(t, "INVALID_REQUEST", turn.Outcomes[6].Error.Code)
	require.Equal(t, "EMPTY_DRAFT", turn.Outcomes[8].Error.Code)

	match := turn.Outcomes[3].Result.(tasks.Match)
	require.Equal(t, "Buy milk", match.Task.Title)

	entry := turn.Outcomes[7].Result.(journal.Entry)
	require.Equal(t, []string{"board meeting Friday", "dentist Tuesday"}, entry.Data.Sections["Events"].Values())

	pending, err := f.tasks.Pending(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "Buy a cat", pending[0].Title)
}

func TestApply_CancelledMidTurnKeepsAppliedWork(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.backend.onSearch = cancel

	turn, err := f.asm.Apply(ctx, "alice", "s1", []Invocation{
		invocation(t, OpStructureText, StructureArgs{Sections: map[string]string{"Events": "picnic"}}),
		invocation(t, OpSearch, SearchArgs{Query: "picnic"}),
		invocation(t, OpFinalize, nil),
		invocation(t, OpCreateTask, CreateTaskArgs{Title: "never"}),
	})
	require.True(t, errors.Is(err, errors.ErrTurnInterrupted))
	require.NotNil(t, turn)
	require.Equal(t, 2, turn.Applied)
	require.Equal(t, 2, turn.Skipped)
	require.Equal(t, StatusSkipped, turn.Outcomes[2].Status)
	require.Equal(t, StatusSkipped, turn.Outcomes[3].Status)

	// No rollback: the contribution stays in the draft.
	d, err := f.asm.deps.Drafts.Snapshot(context.Background(), "s1", "alice")
	require.NoError(t, err)
	require.Equal(t, "picnic", d.Sections["Events"].String())
}

func TestApply_WrongUser(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.asm.Apply(context.Background(), "alice", "s2", []Invocation{invocation(t, OpFinalize, nil)})
	require.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestCompleteTask_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	_, err := f.asm.CompleteTask(ctx, "alice", CompleteTaskArgs{})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = f.asm.CompleteTask(ctx, "alice", CompleteTaskArgs{ID: "x", Title: "y"})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = f.asm.CompleteTask(ctx, "alice", CompleteTaskArgs{ID: "nope"})
	require.True(t, errors.Is(err, errors.ErrTaskNotFound))
}

func TestInsights_WindowDefaultsAndCap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.backend.entries = []journal.Entry{
		{ID: "old", UserID: "alice", CreatedAt: now.AddDate(0, 0, -40), RawText: "old"},
		{ID: "new", UserID: "alice", CreatedAt: now.AddDate(0, 0, -1), RawText: "new",
			Data: journal.StructuredData{Sections: map[string]journal.Content{"Mood": journal.Scalar("happy")}}},
	}

	r, err := f.asm.Insights(ctx, "alice", 0)
	require.NoError(t, err)
	require.Equal(t, 30, r.Period.Days)
	require.Equal(t, 1, *r.Summary.TotalEntries)

	r, err = f.asm.Insights(ctx, "alice", 10000)
	require.NoError(t, err)
	require.Equal(t, 365, r.Period.Days)
	require.Equal(t, 2, *r.Summary.TotalEntries)

	r, err = f.asm.Insights(ctx, "bob", 0)
	require.NoError(t, err)
	require.Equal(t, "Not enough data to generate insights yet.", r.Summary.Message)
}

func TestSearch(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.asm.Search(context.Background(), "alice", SearchArgs{Query: "  "})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))

	res, err := f.asm.Search(context.Background(), "alice", SearchArgs{Query: "picnic"})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	require.Equal(t, "[picnic]", res.Hits[0].Snippet)
}
