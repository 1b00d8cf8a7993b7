package web

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/hpungsan/quire/internal/errors"
	"github.com/hpungsan/quire/internal/ops"
)

// Handlers contains HTTP route handlers for the read-only viewer.
type Handlers struct {
	svc      *ops.Service
	renderer *Renderer
	user     string // default user when the request has no ?user=
}

// userFor returns the user whose journal the request views.
func (h *Handlers) userFor(r *http.Request) (string, error) {
	if u := strings.TrimSpace(r.URL.Query().Get("user")); u != "" {
		return u, nil
	}
	if h.user != "" {
		return h.user, nil
	}
	return "", errors.NewInvalidRequest("user is required (?user=...)")
}

func (h *Handlers) page(title, user, nav string) PageData {
	return PageData{Title: title, Version: h.renderer.version, User: user, Nav: nav}
}

// HandleEntries handles GET /entries: list a user's entries, newest first.
func (h *Handlers) HandleEntries(w http.ResponseWriter, r *http.Request) {
	user, err := h.userFor(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	result, err := h.svc.ListEntries(r.Context(), ops.ListEntriesInput{
		UserID: user,
		Limit:  parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset: parseIntParam(r, "offset", 0),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}
	h.renderer.renderPage(w, r, "entries", EntriesPageData{
		PageData:   h.page("Entries", user, "entries"),
		Items:      result.Items,
		Pagination: result.Pagination,
	})
}

// HandleEntry handles GET /entries/{id}: view one entry.
func (h *Handlers) HandleEntry(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("entry ID is required"))
		return
	}
	user, err := h.userFor(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	entry, err := h.svc.FetchEntry(r.Context(), ops.FetchEntryInput{UserID: user, ID: id})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, entry)
		return
	}
	h.renderer.renderPage(w, r, "entry", EntryPageData{
		PageData:     h.page("Entry "+formatTime(entry.CreatedAt), user, "entries"),
		Entry:        entry,
		RenderedHTML: h.renderer.renderMarkdown(entry.Markdown),
	})
}

// HandleInsights handles GET /insights: the insights report.
func (h *Handlers) HandleInsights(w http.ResponseWriter, r *http.Request) {
	user, err := h.userFor(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	report, err := h.svc.Insights(r.Context(), ops.InsightsInput{
		UserID: user,
		Days:   parseIntParam(r, "days", 0),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, report)
		return
	}
	h.renderer.renderPage(w, r, "insights", InsightsPageData{
		PageData: h.page("Insights", user, "insights"),
		Report:   report,
		Days:     report.Period.Days,
	})
}

// HandleSearch handles GET /search: full-text search.
func (h *Handlers) HandleSearch(w http.ResponseWriter, r *http.Request) {
	user, err := h.userFor(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	query := r.URL.Query().Get("q")

	data := SearchPageData{
		PageData: h.page("Search", user, "search"),
		Query:    query,
		HasQuery: strings.TrimSpace(query) != "",
	}
	if !data.HasQuery {
		h.renderer.renderPage(w, r, "search", data)
		return
	}

	result, err := h.svc.Search(r.Context(), ops.SearchInput{
		UserID: user,
		Query:  query,
		Limit:  parseIntParam(r, "limit", 0),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}
	data.Items = result.Items
	h.renderer.renderPage(w, r, "search", data)
}

// HandleTasks handles GET /tasks: pending tasks, optionally with completed ones.
func (h *Handlers) HandleTasks(w http.ResponseWriter, r *http.Request) {
	user, err := h.userFor(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	completed := parseBoolParam(r, "include_completed")

	result, err := h.svc.ListTasks(r.Context(), ops.ListTasksInput{UserID: user, IncludeCompleted: completed})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}
	h.renderer.renderPage(w, r, "tasks", TasksPageData{
		PageData:  h.page("Tasks", user, "tasks"),
		Tasks:     result.Tasks,
		Pending:   result.Pending,
		Completed: completed,
	})
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return defaultVal
	}
	return v
}

// parseBoolParam parses a boolean query parameter.
func parseBoolParam(r *http.Request, name string) bool {
	s := r.URL.Query().Get(name)
	return s == "true" || s == "1"
}
