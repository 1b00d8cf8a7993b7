package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"go.uber.org/zap"

	"github.com/hpungsan/quire/internal/errors"
	"github.com/hpungsan/quire/internal/insights"
	"github.com/hpungsan/quire/internal/journal"
	"github.com/hpungsan/quire/internal/ops"
	"github.com/hpungsan/quire/internal/tasks"
)

// PageData is embedded in every page's data: title, footer version, the
// viewed user and the highlighted nav item.
type PageData struct {
	Title   string
	Version string
	User    string
	Nav     string // active nav item: "entries", "insights", "search", "tasks"
}

// EntriesPageData is the template data for the entry list page.
type EntriesPageData struct {
	PageData
	Items      []journal.Summary
	Pagination ops.Pagination
}

// EntryPageData is the template data for the entry detail page.
type EntryPageData struct {
	PageData
	Entry        *ops.FetchEntryOutput
	RenderedHTML template.HTML
}

// InsightsPageData is the template data for the insights page.
type InsightsPageData struct {
	PageData
	Report *insights.Report
	Days   int
}

// SearchPageData is the template data for the search page. Snippets are
// already HTML-escaped with <b> highlights.
type SearchPageData struct {
	PageData
	Query    string
	Items    []journal.SearchHit
	HasQuery bool
}

// TasksPageData is the template data for the task list page.
type TasksPageData struct {
	PageData
	Tasks     []tasks.Task
	Pending   int
	Completed bool
}

type ErrorPageData struct {
	PageData
	StatusCode int
	Code       string
	Message    string
}

// pageFiles maps page names to their template file. Each page is parsed on
// top of its own clone of layout.html so the "content" blocks do not collide.
var pageFiles = map[string]string{
	"entries":  "entries.html",
	"entry":    "entry.html",
	"insights": "insights.html",
	"search":   "search.html",
	"tasks":    "tasks.html",
	"error":    "error.html",
}

// Renderer executes the page templates and converts entry markdown.
type Renderer struct {
	pages    map[string]*template.Template
	version  string
	markdown goldmark.Markdown
	logger   *zap.Logger
}

func funcs() template.FuncMap {
	return template.FuncMap{
		"add":         func(a, b int) int { return a + b },
		"sub":         func(a, b int) int { return a - b },
		"formatTime":  formatTime,
		"formatDate":  formatDate,
		"formatChars": formatChars,
		"percent":     func(f float64) string { return strconv.FormatFloat(f, 'f', 1, 64) + "%" },
		"safeHTML":    func(s string) template.HTML { return template.HTML(s) },
		"join":        strings.Join,
		"deref":       deref,
	}
}

// NewRenderer parses layout.html and every page from templateFS. It panics
// on a malformed template since the files are embedded at build time.
func NewRenderer(templateFS fs.FS, version string, logger *zap.Logger) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	base := template.Must(template.New("layout").Funcs(funcs()).ParseFS(templateFS, "layout.html"))

	pages := make(map[string]*template.Template, len(pageFiles))
	for name, file := range pageFiles {
		pages[name] = template.Must(template.Must(base.Clone()).ParseFS(templateFS, file))
	}

	return &Renderer{
		pages:    pages,
		version:  version,
		markdown: goldmark.New(goldmark.WithExtensions(extension.Linkify)),
		logger:   logger,
	}
}

// isHTMX reports whether the request came from htmx and wants a fragment.
func isHTMX(req *http.Request) bool {
	return req != nil && req.Header.Get("HX-Request") == "true"
}

func (r *Renderer) renderPage(w http.ResponseWriter, req *http.Request, name string, data any) {
	r.render(w, req, http.StatusOK, name, data)
}

// render writes page name with status. htmx requests get only the "content"
// block. Output is buffered so a failing template never sends a partial page.
func (r *Renderer) render(w http.ResponseWriter, req *http.Request, status int, name string, data any) {
	page, ok := r.pages[name]
	if !ok {
		r.logger.Error("unknown page", zap.String("page", name))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	block := "layout"
	if isHTMX(req) {
		block = "content"
	}

	var out bytes.Buffer
	if err := page.ExecuteTemplate(&out, block, data); err != nil {
		r.logger.Error("render failed", zap.String("page", name), zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = out.WriteTo(w)
}

// renderError answers with the error's status as an htmx fragment, JSON or
// the full error page. Internal errors are logged and their cause hidden.
func (r *Renderer) renderError(w http.ResponseWriter, req *http.Request, err error) {
	qErr, ok := errors.As(err)
	if !ok {
		qErr = errors.NewInternal(err)
	}
	if qErr.Code == errors.ErrInternal {
		r.logger.Error("request failed", zap.String("path", req.URL.Path), zap.Error(err))
	}

	switch {
	case isHTMX(req):
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(qErr.Status)
		fmt.Fprintf(w, `<div class="error-message">%s</div>`, template.HTMLEscapeString(qErr.Message))
	case wantsJSON(req):
		renderJSON(w, qErr.Status, map[string]any{"error": map[string]any{
			"code":    string(qErr.Code),
			"message": qErr.Message,
			"status":  qErr.Status,
		}})
	default:
		r.render(w, req, qErr.Status, "error", ErrorPageData{
			PageData:   PageData{Title: "Error " + strconv.Itoa(qErr.Status), Version: r.version},
			StatusCode: qErr.Status,
			Code:       string(qErr.Code),
			Message:    qErr.Message,
		})
	}
}

func wantsJSON(req *http.Request) bool {
	return strings.Contains(req.Header.Get("Accept"), "application/json")
}

func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// renderMarkdown converts entry markdown to HTML. goldmark drops raw HTML
// unless configured otherwise, so entry text cannot inject markup.
func (r *Renderer) renderMarkdown(md string) template.HTML {
	var out bytes.Buffer
	if err := r.markdown.Convert([]byte(md), &out); err != nil {
		return template.HTML("<pre>" + template.HTMLEscapeString(md) + "</pre>")
	}
	return template.HTML(out.String())
}

// formatTime formats t as "2006-01-02 15:04" UTC.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04")
}

// formatDate formats an optional date as "2006-01-02".
func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}

// formatChars groups digits in threes: 12345 -> "12,345".
func formatChars(n int) string {
	digits := strconv.Itoa(n)
	sign := ""
	if n < 0 {
		sign, digits = "-", digits[1:]
	}
	for i := len(digits) - 3; i > 0; i -= 3 {
		digits = digits[:i] + "," + digits[i:]
	}
	return sign + digits
}

// deref lets templates print pointer fields; nil becomes the zero value.
func deref(v any) any {
	rv := reflect.ValueOf(v)
	switch {
	case !rv.IsValid():
		return ""
	case rv.Kind() != reflect.Pointer:
		return v
	case rv.IsNil():
		return reflect.Zero(rv.Type().Elem()).Interface()
	default:
		return rv.Elem().Interface()
	}
}
