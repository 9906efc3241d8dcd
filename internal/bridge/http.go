package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/hpungsan/csm-companion/internal/config"
	"github.com/hpungsan/csm-companion/internal/errors"
	"github.com/hpungsan/csm-companion/internal/logging"
)

// maxErrorBody caps how much of a failed response is kept in errors.
const maxErrorBody = 512

// HTTPHost implements Bridge without a desktop host: backend requests go over
// HTTP to configured base URLs, tokens come from an SSO endpoint, popups open
// in the system browser.
type HTTPHost struct {
	services      map[string]string
	ssoURL        string
	templatesPath string
	hostVersion   string
	httpClient    *http.Client
	opener        func(string) error
	log           *logging.Logger
}

// Option configures an HTTPHost.
type Option func(*HTTPHost)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPHost) {
		h.httpClient = c
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(h *HTTPHost) {
		h.httpClient.Timeout = d
	}
}

// WithOpener replaces the popup opener.
func WithOpener(open func(string) error) Option {
	return func(h *HTTPHost) {
		h.opener = open
	}
}

// NewHTTPHost builds a host bridge from configuration.
func NewHTTPHost(cfg *config.Config, log *logging.Logger, opts ...Option) *HTTPHost {
	if log == nil {
		log = logging.Nop()
	}
	h := &HTTPHost{
		services:      make(map[string]string),
		ssoURL:        cfg.SSOURL,
		templatesPath: cfg.TemplatesPath,
		hostVersion:   cfg.HostVersion,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		opener:        OpenBrowser,
		log:           log,
	}
	for _, svc := range []config.Service{cfg.CaseAssistant, cfg.GuidedEngineering} {
		if svc.Name != "" {
			h.services[svc.Name] = strings.TrimRight(svc.BaseURL, "/")
		}
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Invoke implements Bridge.
func (h *HTTPHost) Invoke(ctx context.Context, channel string, payload, out any) error {
	switch channel {
	case ChannelSSORequest:
		req, err := As[SSORequest](payload)
		if err != nil {
			return errors.NewInvalidRequest(fmt.Sprintf("%s: %v", channel, err))
		}
		return h.sso(ctx, req, out)
	case ChannelRequest:
		req, err := As[EngineRequest](payload)
		if err != nil {
			return errors.NewInvalidRequest(fmt.Sprintf("%s: %v", channel, err))
		}
		return h.request(ctx, req, out)
	case ChannelPopupOpen:
		target, err := As[string](payload)
		if err != nil {
			return errors.NewInvalidRequest(fmt.Sprintf("%s: %v", channel, err))
		}
		if err := h.opener(target); err != nil {
			return errors.NewBridge(channel, err)
		}
		return nil
	case ChannelAnalytics:
		ev, err := As[AnalyticsEvent](payload)
		if err != nil {
			return errors.NewInvalidRequest(fmt.Sprintf("%s: %v", channel, err))
		}
		h.log.Info("analytics", "view", ev.View, "action", ev.Action, "metadata", ev.Metadata)
		return nil
	case ChannelTemplates:
		return h.templates(out)
	case ChannelHostVersion:
		return Deliver(h.hostVersion, out)
	default:
		return errors.NewInvalidRequest("unknown channel: " + channel)
	}
}

func (h *HTTPHost) sso(ctx context.Context, req SSORequest, out any) error {
	if h.ssoURL == "" {
		return errors.NewBridge(ChannelSSORequest, fmt.Errorf("sso_url not configured"))
	}
	q := url.Values{}
	q.Set("service", req.Service)
	if req.Env != "" {
		q.Set("env", req.Env)
	}
	body, err := h.do(ctx, ChannelSSORequest, req.Service, http.MethodGet, h.ssoURL+"?"+q.Encode(), nil, nil)
	if err != nil {
		return err
	}
	return Deliver(json.RawMessage(body), out)
}

func (h *HTTPHost) request(ctx context.Context, req EngineRequest, out any) error {
	base, ok := h.services[req.Service]
	if !ok || base == "" {
		return errors.NewInvalidRequest("unknown service: " + req.Service)
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var reqBody []byte
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return errors.NewInvalidRequest(fmt.Sprintf("encode body: %v", err))
		}
		reqBody = b
	}
	body, err := h.do(ctx, ChannelRequest, req.Service, method, base+req.Path, reqBody, req.Headers)
	if err != nil {
		return err
	}
	return Deliver(json.RawMessage(body), out)
}

func (h *HTTPHost) do(ctx context.Context, channel, service, method, target string, body []byte, headers map[string]string) ([]byte, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return nil, errors.NewBridge(channel, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	h.log.Debug("bridge request", "channel", channel, "service", service, "method", method, "url", target, "headers", headers)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewBridge(channel, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewBridge(channel, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text := string(respBody)
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		return nil, errors.NewUpstream(service, resp.StatusCode, text)
	}
	return respBody, nil
}

// templates replies with the raw templates document. A missing or unset file
// replies with an empty string.
func (h *HTTPHost) templates(out any) error {
	if h.templatesPath == "" {
		return Deliver("", out)
	}
	data, err := os.ReadFile(h.templatesPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Deliver("", out)
		}
		return errors.NewBridge(ChannelTemplates, err)
	}
	return Deliver(string(data), out)
}
