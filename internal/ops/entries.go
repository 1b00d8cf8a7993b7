package ops

import (
	"context"
	"strings"

	"github.com/hpungsan/quire/internal/db"
	"github.com/hpungsan/quire/internal/errors"
	"github.com/hpungsan/quire/internal/journal"
)

// ListEntriesInput contains parameters for the ListEntries operation.
type ListEntriesInput struct {
	UserID string // required
	Limit  int    // default: 20, max: 100
	Offset int    // default: 0
}

// ListEntriesOutput contains the result of the ListEntries operation.
type ListEntriesOutput struct {
	Items      []journal.Summary `json:"items"`
	Pagination Pagination        `json:"pagination"`
	Sort       string            `json:"sort"` // "created_at_desc"
}

// ListEntries lists a user's finalized entries, newest first.
func (s *Service) ListEntries(ctx context.Context, input ListEntriesInput) (*ListEntriesOutput, error) {
	userID, err := requireUser(input.UserID)
	if err != nil {
		return nil, err
	}

	limit := input.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	offset := max(input.Offset, 0)

	entries, total, err := db.RecentEntries(ctx, s.db, userID, limit, offset)
	if err != nil {
		return nil, err
	}

	items := make([]journal.Summary, len(entries))
	for i, e := range entries {
		items[i] = e.Summarize()
	}

	return &ListEntriesOutput{
		Items: items,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(items) < total,
			Total:   total,
		},
		Sort: "created_at_desc",
	}, nil
}

// FetchEntryInput contains parameters for the FetchEntry operation.
type FetchEntryInput struct {
	UserID string // required
	ID     string // required
}

// FetchEntryOutput contains the result of the FetchEntry operation.
type FetchEntryOutput struct {
	journal.Entry
	Markdown string `json:"markdown"`
}

// FetchEntry retrieves one entry with its Markdown rendering.
func (s *Service) FetchEntry(ctx context.Context, input FetchEntryInput) (*FetchEntryOutput, error) {
	userID, err := requireUser(input.UserID)
	if err != nil {
		return nil, err
	}
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}

	e, err := db.GetEntry(ctx, s.db, userID, id)
	if err != nil {
		return nil, err
	}
	return &FetchEntryOutput{Entry: e, Markdown: e.Markdown()}, nil
}
