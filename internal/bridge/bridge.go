// Package bridge defines the host command bridge and an HTTP implementation of it.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
)

// Channels understood by the host.
const (
	ChannelSSORequest  = "engine-sso-request"
	ChannelRequest     = "engine-request"
	ChannelPopupOpen   = "browserwindow-isewindow-popupwindow-open"
	ChannelAnalytics   = "engine-logger-track-hana"
	ChannelTemplates   = "engine-case-get-templates"
	ChannelHostVersion = "system-info-get-version"
)

// Bridge invokes a named host channel. payload is channel specific and may be
// nil. The reply is decoded into out when out is non-nil.
type Bridge interface {
	Invoke(ctx context.Context, channel string, payload, out any) error
}

// Func adapts a function to Bridge.
type Func func(ctx context.Context, channel string, payload, out any) error

// Invoke calls f.
func (f Func) Invoke(ctx context.Context, channel string, payload, out any) error {
	return f(ctx, channel, payload, out)
}

// SSORequest asks the host for a bearer token.
type SSORequest struct {
	Env     string `json:"env,omitempty"`
	Service string `json:"service"`
}

// SSOResponse carries the token returned by the host.
type SSOResponse struct {
	Token string `json:"token"`
}

// EngineRequest is an authenticated call to a named backend service.
type EngineRequest struct {
	Service string            `json:"service"`
	Method  string            `json:"method"`
	Env     string            `json:"env,omitempty"`
	Path    string            `json:"path"`
	Body    any               `json:"body,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// AnalyticsEvent is a usage event forwarded to the host tracker.
type AnalyticsEvent struct {
	View     string `json:"view"`
	Action   string `json:"action"`
	Metadata any    `json:"metadata,omitempty"`
}

// As converts a channel payload to T. Values of T and *T pass through;
// anything else is round-tripped through JSON.
func As[T any](payload any) (T, error) {
	var zero T
	switch v := payload.(type) {
	case T:
		return v, nil
	case *T:
		if v == nil {
			return zero, fmt.Errorf("nil %T payload", v)
		}
		return *v, nil
	case nil:
		return zero, fmt.Errorf("missing payload")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return zero, err
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, err
	}
	return out, nil
}

// Deliver stores a reply value into out.
func Deliver(reply, out any) error {
	if out == nil {
		return nil
	}
	var raw []byte
	switch v := reply.(type) {
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		b, err := json.Marshal(reply)
		if err != nil {
			return err
		}
		raw = b
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}
