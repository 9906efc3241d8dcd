// Package gateway is the client API over the case assistant and guided
// engineering backends, plus the host helpers exposed alongside them.
package gateway

import (
	"context"
	"net/http"

	"github.com/hpungsan/csm-companion/internal/bridge"
	"github.com/hpungsan/csm-companion/internal/config"
	"github.com/hpungsan/csm-companion/internal/logging"
)

// AnalyticsView is the view name attached to every analytics event.
const AnalyticsView = "case_assistant"

// ActivityFunc is told when a guided engineering request starts (true) and
// finishes (false).
type ActivityFunc func(active bool)

type service struct {
	name   string
	tokens *TokenSource
}

// Client talks to the backends through a host bridge.
type Client struct {
	bridge              bridge.Bridge
	env                 string
	caseAssistant       service
	guidedEngineering   service
	minTemplatesVersion string
	activity            ActivityFunc
	log                 *logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithActivity installs the guided engineering activity hook.
func WithActivity(fn ActivityFunc) Option {
	return func(c *Client) {
		c.activity = fn
	}
}

// New creates a Client from configuration.
func New(b bridge.Bridge, cfg *config.Config, log *logging.Logger, opts ...Option) *Client {
	if log == nil {
		log = logging.Nop()
	}
	c := &Client{
		bridge: b,
		env:    cfg.Env,
		caseAssistant: service{
			name:   cfg.CaseAssistant.Name,
			tokens: NewTokenSource(b, cfg.CaseAssistant.TokenService, cfg.Env, cfg.CaseAssistant.TokenCache),
		},
		guidedEngineering: service{
			name:   cfg.GuidedEngineering.Name,
			tokens: NewTokenSource(b, cfg.GuidedEngineering.TokenService, cfg.Env, cfg.GuidedEngineering.TokenCache),
		},
		minTemplatesVersion: cfg.MinTemplatesVersion,
		log:                 log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) caRequest(ctx context.Context, method, path string, body, out any) error {
	return c.request(ctx, c.caseAssistant, method, path, body, out)
}

func (c *Client) geRequest(ctx context.Context, method, path string, body, out any) error {
	if c.activity != nil {
		c.activity(true)
		defer c.activity(false)
	}
	return c.request(ctx, c.guidedEngineering, method, path, body, out)
}

func (c *Client) request(ctx context.Context, svc service, method, path string, body, out any) error {
	tok, err := svc.tokens.Token(ctx)
	if err != nil {
		return err
	}
	if method == "" {
		method = http.MethodGet
	}
	return c.bridge.Invoke(ctx, bridge.ChannelRequest, bridge.EngineRequest{
		Service: svc.name,
		Method:  method,
		Env:     c.env,
		Body:    body,
		Path:    path,
		Headers: map[string]string{"Authorization": "Bearer " + tok},
	}, out)
}
