package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/hpungsan/csm-companion/internal/errors"
	"github.com/hpungsan/csm-companion/internal/logging"
	"github.com/hpungsan/csm-companion/internal/overlay"
)

const (
	contentHTML = "text/html; charset=utf-8"
	contentJSON = "application/json"
)

// PageData contains common fields used across all page templates.
type PageData struct {
	Title   string
	Version string
}

// WidgetPageData is the template data for the widget page.
type WidgetPageData struct {
	PageData
	Visible      bool
	Widget       overlay.Widget
	InsightsHTML template.HTML
	EvaluatedAt  time.Time
}

// ErrorPageData is the template data for the error page.
type ErrorPageData struct {
	PageData
	StatusCode int
	Message    string
}

// pageFiles maps page names to their template files. Each page is parsed
// on top of its own copy of layout.html.
var pageFiles = map[string]string{
	"widget": "widget.html",
	"error":  "error.html",
}

// insightsMarkdown renders insight lists. Raw HTML in the source is dropped.
var insightsMarkdown = goldmark.New()

// Renderer executes the parsed page templates.
type Renderer struct {
	pages   map[string]*template.Template
	version string
	log     *logging.Logger
}

// NewRenderer parses layout.html and every page from templateFS.
func NewRenderer(templateFS fs.FS, version string, log *logging.Logger) (*Renderer, error) {
	if log == nil {
		log = logging.Nop()
	}
	layout, err := template.New("layout").Funcs(template.FuncMap{
		"formatTime": formatTime,
		"colorClass": colorClass,
	}).ParseFS(templateFS, "layout.html")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}

	pages := make(map[string]*template.Template, len(pageFiles))
	for name, file := range pageFiles {
		t, err := layout.Clone()
		if err != nil {
			return nil, fmt.Errorf("clone layout for %s: %w", name, err)
		}
		if _, err := t.ParseFS(templateFS, file); err != nil {
			return nil, fmt.Errorf("parse %s: %w", file, err)
		}
		pages[name] = t
	}

	return &Renderer{pages: pages, version: version, log: log}, nil
}

// renderPage renders a page with HTTP 200.
func (r *Renderer) renderPage(w http.ResponseWriter, req *http.Request, name string, data any) {
	r.renderPageStatus(w, req, http.StatusOK, name, data)
}

// renderPageStatus renders the whole layout, or only the "content" block for
// partial requests.
func (r *Renderer) renderPageStatus(w http.ResponseWriter, req *http.Request, status int, name string, data any) {
	block := "layout"
	if isPartial(req) {
		block = "content"
	}
	r.renderBlock(w, status, name, block, data)
}

// renderBlock executes one named block of a page into a buffer first, so a
// template error never leaves a half-written response.
func (r *Renderer) renderBlock(w http.ResponseWriter, status int, page, block string, data any) {
	t, ok := r.pages[page]
	if !ok {
		r.log.Error("template not found", "template", page)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, block, data); err != nil {
		r.log.Error("template execution error", "template", page, "block", block, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	write(w, status, contentHTML, buf.Bytes())
}

// renderError answers with an HTML fragment, a JSON error object or the
// error page, depending on what the caller asked for.
func (r *Renderer) renderError(w http.ResponseWriter, req *http.Request, err error) {
	cErr := errors.As(err)

	switch {
	case isPartial(req):
		fragment := `<div class="error-message">` + template.HTMLEscapeString(cErr.Message) + `</div>`
		write(w, cErr.Status, contentHTML, []byte(fragment))
	case wantsJSON(req):
		renderJSON(w, cErr.Status, map[string]any{
			"error": map[string]any{
				"code":    string(cErr.Code),
				"message": cErr.Message,
				"status":  cErr.Status,
			},
		})
	default:
		r.renderPageStatus(w, req, cErr.Status, "error", ErrorPageData{
			PageData:   PageData{Title: fmt.Sprintf("Error %d", cErr.Status), Version: r.version},
			StatusCode: cErr.Status,
			Message:    cErr.Message,
		})
	}
}

func write(w http.ResponseWriter, status int, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// renderJSON writes data as a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	write(w, status, contentJSON, append(body, '\n'))
}

// renderMarkdown converts markdown to HTML, falling back to escaped text.
func renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := insightsMarkdown.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}

func isPartial(req *http.Request) bool {
	return req != nil && req.Header.Get("HX-Request") == "true"
}

func wantsJSON(req *http.Request) bool {
	return req != nil && strings.Contains(req.Header.Get("Accept"), contentJSON)
}

// formatTime formats a time as "2006-01-02 15:04" UTC. The zero time is blank.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04")
}

// colorClass maps an indicator color to its stylesheet class.
func colorClass(color string) string {
	switch color {
	case overlay.ColorComplete:
		return "ok"
	case overlay.ColorPartial:
		return "partial"
	default:
		return "missing"
	}
}
