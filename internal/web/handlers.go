package web

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/hpungsan/csm-companion/internal/errors"
	"github.com/hpungsan/csm-companion/internal/logging"
	"github.com/hpungsan/csm-companion/internal/overlay"
	"github.com/hpungsan/csm-companion/internal/pulse"
)

// maxEventBytes caps a case event body.
const maxEventBytes = 4 << 20

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	session  *overlay.Session
	renderer *Renderer
	log      *logging.Logger
}

// viewState is the JSON shape of the current widget state.
type viewState struct {
	Visible bool             `json:"visible"`
	Prefs   overlay.Prefs    `json:"prefs"`
	View    *pulse.ViewModel `json:"view"`
	Widget  *overlay.Widget  `json:"widget"`
}

// HandleWidget renders the widget page.
func (h *Handlers) HandleWidget(w http.ResponseWriter, r *http.Request) {
	if mode := r.URL.Query().Get("mode"); mode != "" {
		if err := h.session.SetMode(mode); err != nil {
			h.renderer.renderError(w, r, err)
			return
		}
	}
	h.renderer.renderPage(w, r, "widget", h.widgetData())
}

// HandleInsights renders the insights panel as an HTML fragment.
func (h *Handlers) HandleInsights(w http.ResponseWriter, r *http.Request) {
	vm := h.session.View()
	if vm == nil {
		h.renderer.renderError(w, r, errors.NewNotFound("case", "current"))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, string(renderMarkdown(pulse.InsightsMarkdown(vm.Insights))))
}

// HandleCaseUpdated accepts a case event from the host. An empty or null body
// hides the widget.
func (h *Handlers) HandleCaseUpdated(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBytes))
	if err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("could not read request body"))
		return
	}

	var ev *pulse.CaseEvent
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 {
		if err := json.Unmarshal(trimmed, &ev); err != nil {
			h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid case event: "+err.Error()))
			return
		}
	}

	h.session.HandleCaseUpdated(r.Context(), ev)

	if isPartial(r) {
		h.renderer.renderBlock(w, http.StatusOK, "widget", "content", h.widgetData())
		return
	}
	renderJSON(w, http.StatusOK, h.state())
}

// HandlePosition stores a dragged widget position. Accepts form or JSON input.
func (h *Handlers) HandlePosition(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Left string `json:"left"`
		Top  string `json:"top"`
	}
	if err := decodeInput(r, &in, func() {
		in.Left, in.Top = r.PostFormValue("left"), r.PostFormValue("top")
	}); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if err := h.session.SetPosition(in.Left, in.Top); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, h.session.Prefs())
}

// HandleResetPosition restores the default position.
func (h *Handlers) HandleResetPosition(w http.ResponseWriter, r *http.Request) {
	h.session.ResetPosition()
	renderJSON(w, http.StatusOK, h.session.Prefs())
}

// HandleMode switches between full and compact display.
func (h *Handlers) HandleMode(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Mode string `json:"mode"`
	}
	if err := decodeInput(r, &in, func() {
		in.Mode = r.PostFormValue("mode")
	}); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if err := h.session.SetMode(in.Mode); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if isPartial(r) {
		h.renderer.renderBlock(w, http.StatusOK, "widget", "content", h.widgetData())
		return
	}
	renderJSON(w, http.StatusOK, h.session.Prefs())
}

// HandleSubscription tells the host which case sections to deliver with
// case-updated events.
func (h *Handlers) HandleSubscription(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, overlay.DefaultSubscription())
}

// HandleView returns the current state as JSON.
func (h *Handlers) HandleView(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, h.state())
}

func (h *Handlers) state() viewState {
	st := viewState{Prefs: h.session.Prefs(), View: h.session.View()}
	if widget, ok := h.session.Widget(); ok {
		st.Visible = true
		st.Widget = &widget
	}
	return st
}

func (h *Handlers) widgetData() WidgetPageData {
	data := WidgetPageData{
		PageData: PageData{Title: "Case Companion", Version: h.renderer.version},
	}
	widget, ok := h.session.Widget()
	if !ok {
		data.Widget.Mode = h.session.Prefs().Mode
		return data
	}
	data.Visible = true
	data.Widget = widget
	data.InsightsHTML = renderMarkdown(pulse.InsightsMarkdown(widget.Insights))
	if vm := h.session.View(); vm != nil {
		data.EvaluatedAt = vm.EvaluatedAt
	}
	if data.Widget.CaseNumber != "" {
		data.Title = "Case Companion - " + data.Widget.CaseNumber
	}
	return data
}

// decodeInput reads a JSON body into dst, or runs fromForm for form posts.
func decodeInput(r *http.Request, dst any, fromForm func()) error {
	ct := r.Header.Get("Content-Type")
	if ct == "application/json" || bytes.HasPrefix([]byte(ct), []byte("application/json;")) {
		dec := json.NewDecoder(io.LimitReader(r.Body, 1<<16))
		if err := dec.Decode(dst); err != nil {
			return errors.NewInvalidRequest("invalid JSON body: " + err.Error())
		}
		return nil
	}
	if err := r.ParseForm(); err != nil {
		return errors.NewInvalidRequest("invalid form body")
	}
	fromForm()
	return nil
}
