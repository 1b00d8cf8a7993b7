package db

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/hpungsan/quire/internal/draft"
	"github.com/hpungsan/quire/internal/errors"
	"github.com/hpungsan/quire/internal/journal"
	"github.com/hpungsan/quire/internal/tasks"
)

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestEntry(id, userID, sessionID string, at time.Time, mood string, events ...string) journal.Entry {
	sections := map[string]journal.Content{"Mood": journal.Scalar(mood)}
	order := []string{"Mood"}
	if len(events) > 0 {
		sections["Events"] = journal.Sequence(events...)
		order = append([]string{"Events"}, order...)
	}
	return journal.Entry{
		ID:        id,
		UserID:    userID,
		SessionID: sessionID,
		CreatedAt: at,
		RawText:   strings.Join(append(events, "I feel "+mood), "\n\n"),
		Data: journal.StructuredData{
			Sections: sections,
			Order:    order,
			Metadata: journal.Metadata{GeneratedAt: at, SessionID: sessionID},
		},
	}
}

func TestSessionInsertAndGet(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	s := Session{ID: "s-1", UserID: "alice", CreatedAt: base}
	if err := InsertSession(ctx, db, s); err != nil {
		t.Fatalf("InsertSession failed: %v", err)
	}

	got, err := GetSession(ctx, db, "s-1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.UserID != "alice" || !got.CreatedAt.Equal(base) {
		t.Errorf("GetSession = %+v, want alice at %v", got, base)
	}

	if err := InsertSession(ctx, db, s); err != ErrUniqueConstraint {
		t.Errorf("duplicate InsertSession error = %v, want ErrUniqueConstraint", err)
	}

	_, err = GetSession(ctx, db, "missing")
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("GetSession(missing) error = %v, want NOT_FOUND", err)
	}
}

func TestListSessions_NewestFirst(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for i, id := range []string{"s-1", "s-2", "s-3"} {
		if err := InsertSession(ctx, db, Session{ID: id, UserID: "alice", CreatedAt: base.Add(time.Duration(i) * time.Hour)}); err != nil {
			t.Fatalf("InsertSession failed: %v", err)
		}
	}
	if err := InsertSession(ctx, db, Session{ID: "s-bob", UserID: "bob", CreatedAt: base}); err != nil {
		t.Fatalf("InsertSession failed: %v", err)
	}

	got, err := ListSessions(ctx, db, "alice", 2)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(got) != 2 || got[0].ID != "s-3" || got[1].ID != "s-2" {
		t.Errorf("ListSessions = %+v, want [s-3 s-2]", got)
	}
}

func TestPreferences_Upsert(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := SetPreference(ctx, db, "alice", "tone", "warm", base); err != nil {
		t.Fatalf("SetPreference failed: %v", err)
	}
	if err := SetPreference(ctx, db, "alice", "tone", "brief", base.Add(time.Minute)); err != nil {
		t.Fatalf("SetPreference failed: %v", err)
	}
	if err := SetPreference(ctx, db, "bob", "tone", "playful", base); err != nil {
		t.Fatalf("SetPreference failed: %v", err)
	}

	prefs, err := GetPreferences(ctx, db, "alice")
	if err != nil {
		t.Fatalf("GetPreferences failed: %v", err)
	}
	if len(prefs) != 1 || prefs["tone"] != "brief" {
		t.Errorf("prefs = %v, want tone=brief", prefs)
	}

	empty, err := GetPreferences(ctx, db, "nobody")
	if err != nil {
		t.Fatalf("GetPreferences failed: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("prefs for unknown user = %v, want empty non-nil map", empty)
	}
}

func TestDraft_SaveLoad(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	got, err := LoadDraft(ctx, db, "s-1")
	if err != nil {
		t.Fatalf("LoadDraft failed: %v", err)
	}
	if got != nil {
		t.Fatalf("LoadDraft(no checkpoint) = %+v, want nil", got)
	}

	d := &draft.Draft{
		SessionID: "s-1",
		UserID:    "alice",
		Sections: map[string]journal.Content{
			"Events": journal.Sequence("went to the park", "called mom"),
			"Mood":   journal.Scalar("calm"),
		},
		Order:     []string{"Events", "Mood"},
		Turns:     []string{"went to the park and called mom, feeling calm"},
		UpdatedAt: base,
		Revision:  1,
	}
	if err := SaveDraft(ctx, db, d, 0); err != nil {
		t.Fatalf("SaveDraft failed: %v", err)
	}

	d.Sections["Mood"] = journal.Sequence("calm", "tired")
	d.Revision = 2
	if err := SaveDraft(ctx, db, d, 1); err != nil {
		t.Fatalf("SaveDraft (replace) failed: %v", err)
	}

	got, err = LoadDraft(ctx, db, "s-1")
	if err != nil {
		t.Fatalf("LoadDraft failed: %v", err)
	}
	if got == nil {
		t.Fatal("LoadDraft = nil, want draft")
	}
	if got.UserID != "alice" {
		t.Errorf("UserID = %q, want alice", got.UserID)
	}
	if events := got.Sections["Events"]; !events.IsSequence() || events.Len() != 2 {
		t.Errorf("Events = %v, want 2-item sequence", events.Values())
	}
	if mood := got.Sections["Mood"]; mood.Len() != 2 {
		t.Errorf("Mood = %v, want [calm tired]", mood.Values())
	}
	if len(got.Order) != 2 || got.Order[0] != "Events" {
		t.Errorf("Order = %v, want [Events Mood]", got.Order)
	}
	if got.Revision != 2 {
		t.Errorf("Revision = %d, want 2", got.Revision)
	}
}

func TestSaveDraft_StaleRevisionConflicts(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	first := &draft.Draft{
		SessionID: "s-1",
		UserID:    "alice",
		Sections:  map[string]journal.Content{"Events": journal.Scalar("A")},
		Revision:  1,
	}
	if err := SaveDraft(ctx, db, first, 0); err != nil {
		t.Fatalf("SaveDraft failed: %v", err)
	}

	tests := []struct {
		name string
		prev int64
	}{
		{"second first write", 0},
		{"stale revision", 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stale := &draft.Draft{
				SessionID: "s-1",
				UserID:    "alice",
				Sections:  map[string]journal.Content{"Events": journal.Scalar("B")},
				Revision:  tt.prev + 1,
			}
			err := SaveDraft(ctx, db, stale, tt.prev)
			if !errors.Is(err, errors.ErrDraftConflict) {
				t.Fatalf("SaveDraft(prev=%d) error = %v, want DRAFT_CONFLICT", tt.prev, err)
			}
		})
	}

	got, err := LoadDraft(ctx, db, "s-1")
	if err != nil {
		t.Fatalf("LoadDraft failed: %v", err)
	}
	if got.Revision != 1 || got.Sections["Events"].String() != "A" {
		t.Errorf("draft = rev %d %v, want rev 1 [A]", got.Revision, got.Sections["Events"].Values())
	}
}

func TestSaveDraft_AfterCommitConflicts(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	d := &draft.Draft{
		SessionID: "s-1",
		UserID:    "alice",
		Sections:  map[string]journal.Content{"Mood": journal.Scalar("happy")},
		Revision:  1,
	}
	if err := SaveDraft(ctx, db, d, 0); err != nil {
		t.Fatalf("SaveDraft failed: %v", err)
	}
	if err := CommitDraft(ctx, db, newTestEntry("e-1", "alice", "s-1", base, "happy"), 1); err != nil {
		t.Fatalf("CommitDraft failed: %v", err)
	}

	// A writer still holding revision 1 must not bring the draft back.
	d.Revision = 2
	if err := SaveDraft(ctx, db, d, 1); !errors.Is(err, errors.ErrDraftConflict) {
		t.Fatalf("SaveDraft after commit error = %v, want DRAFT_CONFLICT", err)
	}
	got, err := LoadDraft(ctx, db, "s-1")
	if err != nil {
		t.Fatalf("LoadDraft failed: %v", err)
	}
	if got != nil {
		t.Errorf("draft after commit = %+v, want nil", got)
	}
}

func TestCommitDraft_StaleRevisionStoresNothing(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	d := &draft.Draft{
		SessionID: "s-1",
		UserID:    "alice",
		Sections:  map[string]journal.Content{"Mood": journal.Scalar("happy")},
		Revision:  2,
	}
	if err := SaveDraft(ctx, db, d, 0); err != nil {
		t.Fatalf("SaveDraft failed: %v", err)
	}

	err := CommitDraft(ctx, db, newTestEntry("e-1", "alice", "s-1", base, "happy"), 1)
	if !errors.Is(err, errors.ErrDraftConflict) {
		t.Fatalf("CommitDraft(stale) error = %v, want DRAFT_CONFLICT", err)
	}
	if _, err := GetEntry(ctx, db, "alice", "e-1"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("GetEntry after conflict error = %v, want NOT_FOUND", err)
	}
	got, err := LoadDraft(ctx, db, "s-1")
	if err != nil {
		t.Fatalf("LoadDraft failed: %v", err)
	}
	if got == nil || got.Revision != 2 {
		t.Errorf("draft after conflict = %+v, want revision 2 kept", got)
	}

	// Nothing to finalize once the draft is gone.
	if err := CommitDraft(ctx, db, newTestEntry("e-1", "alice", "s-1", base, "happy"), 2); err != nil {
		t.Fatalf("CommitDraft failed: %v", err)
	}
	err = CommitDraft(ctx, db, newTestEntry("e-2", "alice", "s-1", base, "happy"), 2)
	if !errors.Is(err, errors.ErrDraftConflict) {
		t.Errorf("second CommitDraft error = %v, want DRAFT_CONFLICT", err)
	}
}

func TestCommitEntry_RemovesDraft(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	d := &draft.Draft{
		SessionID: "s-1",
		UserID:    "alice",
		Sections:  map[string]journal.Content{"Mood": journal.Scalar("happy")},
		Revision:  1,
	}
	if err := SaveDraft(ctx, db, d, 0); err != nil {
		t.Fatalf("SaveDraft failed: %v", err)
	}

	e := newTestEntry("e-1", "alice", "s-1", base, "happy", "went to the park")
	if err := CommitEntry(ctx, db, e); err != nil {
		t.Fatalf("CommitEntry failed: %v", err)
	}

	got, err := LoadDraft(ctx, db, "s-1")
	if err != nil {
		t.Fatalf("LoadDraft failed: %v", err)
	}
	if got != nil {
		t.Errorf("draft after commit = %+v, want nil", got)
	}

	stored, err := GetEntry(ctx, db, "alice", "e-1")
	if err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}
	if !stored.CreatedAt.Equal(base) {
		t.Errorf("CreatedAt = %v, want %v", stored.CreatedAt, base)
	}
	if stored.RawText != e.RawText {
		t.Errorf("RawText = %q, want %q", stored.RawText, e.RawText)
	}
	if events := stored.Data.Sections["Events"]; !events.IsSequence() || events.Values()[0] != "went to the park" {
		t.Errorf("Events = %v, want [went to the park]", events.Values())
	}
	if mood := stored.Data.Sections["Mood"]; mood.IsSequence() || mood.String() != "happy" {
		t.Errorf("Mood = %v, want scalar happy", mood.Values())
	}

	if err := CommitEntry(ctx, db, e); err != ErrUniqueConstraint {
		t.Errorf("duplicate CommitEntry error = %v, want ErrUniqueConstraint", err)
	}
}

func TestGetEntry_OtherUserIsNotFound(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := CommitEntry(ctx, db, newTestEntry("e-1", "alice", "s-1", base, "happy")); err != nil {
		t.Fatalf("CommitEntry failed: %v", err)
	}

	_, err := GetEntry(ctx, db, "bob", "e-1")
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("GetEntry(bob) error = %v, want NOT_FOUND", err)
	}
}

func TestListEntries_Range(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		e := newTestEntry(string(rune('a'+i)), "alice", "s-1", base.AddDate(0, 0, i), "ok")
		if err := CommitEntry(ctx, db, e); err != nil {
			t.Fatalf("CommitEntry failed: %v", err)
		}
	}
	if err := CommitEntry(ctx, db, newTestEntry("z", "bob", "s-2", base.AddDate(0, 0, 2), "ok")); err != nil {
		t.Fatalf("CommitEntry failed: %v", err)
	}

	got, err := ListEntries(ctx, db, "alice", base.AddDate(0, 0, 1), base.AddDate(0, 0, 3))
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	var ids []string
	for _, e := range got {
		ids = append(ids, e.ID)
	}
	if strings.Join(ids, ",") != "b,c,d" {
		t.Errorf("ListEntries ids = %v, want [b c d]", ids)
	}

	page, total, err := RecentEntries(ctx, db, "alice", 2, 1)
	if err != nil {
		t.Fatalf("RecentEntries failed: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(page) != 2 || page[0].ID != "d" || page[1].ID != "c" {
		t.Errorf("RecentEntries page = %d entries, want [d c]", len(page))
	}
}

func TestSearchEntries(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	entries := []journal.Entry{
		newTestEntry("e-1", "alice", "s-1", base, "happy", "picnic by the lake"),
		newTestEntry("e-2", "alice", "s-2", base.Add(time.Hour), "tired", "long meeting at work"),
		newTestEntry("e-3", "bob", "s-3", base, "happy", "picnic with friends"),
	}
	for _, e := range entries {
		if err := CommitEntry(ctx, db, e); err != nil {
			t.Fatalf("CommitEntry failed: %v", err)
		}
	}

	hits, err := SearchEntries(ctx, db, "alice", "picnic", 10)
	if err != nil {
		t.Fatalf("SearchEntries failed: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "e-1" {
		t.Fatalf("hits = %+v, want only e-1", hits)
	}
	if !strings.Contains(hits[0].Snippet, SnippetOpen+"picnic"+SnippetClose) {
		t.Errorf("Snippet = %q, want marked term", hits[0].Snippet)
	}

	// Section text is indexed too.
	hits, err = SearchEntries(ctx, db, "alice", "tired", 10)
	if err != nil {
		t.Fatalf("SearchEntries failed: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "e-2" {
		t.Errorf("hits = %+v, want e-2", hits)
	}
}

func TestSearchEntries_QueryIsNotFTSSyntax(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := CommitEntry(ctx, db, newTestEntry("e-1", "alice", "s-1", base, "happy", "picnic")); err != nil {
		t.Fatalf("CommitEntry failed: %v", err)
	}

	for _, q := range []string{`picnic"`, `picnic AND`, `-picnic`, `events:picnic`, `"`, "   "} {
		if _, err := SearchEntries(ctx, db, "alice", q, 10); err != nil {
			t.Errorf("SearchEntries(%q) error = %v, want nil", q, err)
		}
	}
}

func TestFTSQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"picnic", `"picnic"`},
		{"  lake   picnic ", `"lake" "picnic"`},
		{`say "hi"`, `"say" "hi"`},
		{`"`, ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ftsQuery(tt.in); got != tt.want {
			t.Errorf("ftsQuery(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTasks_SaveAndLoad(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	due := base.AddDate(0, 0, 3)
	open := tasks.Task{ID: "t-1", UserID: "alice", Title: "Buy milk", Priority: 1, DueDate: &due, CreatedAt: base}
	done := tasks.Task{ID: "t-2", UserID: "alice", Title: "Call mom", Description: "about sunday", Priority: 2, CreatedAt: base.Add(time.Minute)}
	for _, task := range []tasks.Task{open, done} {
		if err := SaveTask(ctx, db, task); err != nil {
			t.Fatalf("SaveTask failed: %v", err)
		}
	}

	completed := base.Add(time.Hour)
	done.CompletedAt = &completed
	if err := SaveTask(ctx, db, done); err != nil {
		t.Fatalf("SaveTask (complete) failed: %v", err)
	}

	pending, err := LoadTasks(ctx, db, "alice", false)
	if err != nil {
		t.Fatalf("LoadTasks failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "t-1" {
		t.Fatalf("pending = %+v, want [t-1]", pending)
	}
	if pending[0].DueDate == nil || !pending[0].DueDate.Equal(due) {
		t.Errorf("DueDate = %v, want %v", pending[0].DueDate, due)
	}

	all, err := LoadTasks(ctx, db, "alice", true)
	if err != nil {
		t.Fatalf("LoadTasks failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("all = %d tasks, want 2", len(all))
	}
	if all[1].CompletedAt == nil || all[1].Description != "about sunday" {
		t.Errorf("completed task = %+v", all[1])
	}
}
