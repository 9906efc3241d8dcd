package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/hpungsan/csm-companion/internal/bridge"
	"github.com/hpungsan/csm-companion/internal/errors"
)

const (
	templateMetadataPrefix = "template_metadata_"
	templateTextPrefix     = "template_text_"
	templateDescription    = "Maintained by the ServiceNow Tools script."
)

// Template is a case reply template provided by the host.
type Template struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Content     string `json:"content"`
}

type templateMetadata struct {
	ID    templateID `json:"id"`
	Title string     `json:"title"`
}

// templateID accepts ids written as strings or numbers.
type templateID string

func (id *templateID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*id = templateID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("template id: %w", err)
	}
	*id = templateID(n.String())
	return nil
}

// OpenQuickView opens url in a host popup window.
func (c *Client) OpenQuickView(ctx context.Context, url string) error {
	if url == "" {
		return errors.NewInvalidRequest("url is required")
	}
	return c.bridge.Invoke(ctx, bridge.ChannelPopupOpen, url, nil)
}

// SendAnalytics forwards a usage event to the host tracker.
func (c *Client) SendAnalytics(ctx context.Context, action string, metadata any) error {
	if action == "" {
		return errors.NewInvalidRequest("action is required")
	}
	return c.bridge.Invoke(ctx, bridge.ChannelAnalytics, bridge.AnalyticsEvent{
		View:     AnalyticsView,
		Action:   action,
		Metadata: metadata,
	}, nil)
}

// Templates returns the host's reply templates. Hosts not newer than the
// minimum version get an empty list. A missing or malformed templates document,
// or a version that cannot be compared, gives nil.
func (c *Client) Templates(ctx context.Context) []Template {
	var hostVersion string
	if err := c.bridge.Invoke(ctx, bridge.ChannelHostVersion, nil, &hostVersion); err != nil {
		c.log.Error("host version lookup failed", "error", err)
		return nil
	}
	higher, err := HigherVersion(hostVersion, c.minTemplatesVersion)
	if err != nil {
		c.log.Warn("cannot compare host version", "host_version", hostVersion, "min_version", c.minTemplatesVersion, "error", err)
		return nil
	}
	if higher == c.minTemplatesVersion {
		return []Template{}
	}

	var doc string
	if err := c.bridge.Invoke(ctx, bridge.ChannelTemplates, nil, &doc); err != nil {
		c.log.Error("templates lookup failed", "error", err)
		return nil
	}
	if doc == "" {
		return nil
	}
	templates, err := ParseTemplates(doc)
	if err != nil {
		c.log.Warn("malformed templates document", "error", err)
		return nil
	}
	return templates
}

// ParseTemplates reads a templates document: a JSON object of string values in
// which each template_metadata_* entry holds JSON metadata and the matching
// template_text_<id> entry holds the text. Templates keep document order.
func ParseTemplates(doc string) ([]Template, error) {
	keys, values, err := orderedStrings(doc)
	if err != nil {
		return nil, err
	}
	templates := []Template{}
	for _, key := range keys {
		if !strings.HasPrefix(key, templateMetadataPrefix) {
			continue
		}
		var meta templateMetadata
		if err := json.Unmarshal([]byte(values[key]), &meta); err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		templates = append(templates, Template{
			Title:       meta.Title,
			Description: templateDescription,
			Content:     values[templateTextPrefix+string(meta.ID)],
		})
	}
	return templates, nil
}

// orderedStrings decodes a flat JSON object of strings, keeping key order.
func orderedStrings(doc string) ([]string, map[string]string, error) {
	dec := json.NewDecoder(strings.NewReader(doc))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, fmt.Errorf("templates document is not an object")
	}
	var keys []string
	values := make(map[string]string)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, _ := tok.(string)
		var value string
		if err := dec.Decode(&value); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", key, err)
		}
		if _, seen := values[key]; !seen {
			keys = append(keys, key)
		}
		values[key] = value
	}
	return keys, values, nil
}

// HigherVersion returns whichever of two dotted versions is higher. When one
// is a prefix of the other the longer one wins, and equal versions return v1.
func HigherVersion(v1, v2 string) (string, error) {
	p1, err := versionParts(v1)
	if err != nil {
		return "", err
	}
	p2, err := versionParts(v2)
	if err != nil {
		return "", err
	}
	for i := range p1 {
		if i == len(p2) {
			return v1, nil
		}
		switch {
		case p1[i] == p2[i]:
			continue
		case p1[i] > p2[i]:
			return v1, nil
		default:
			return v2, nil
		}
	}
	if len(p1) != len(p2) {
		return v2, nil
	}
	return v1, nil
}

func versionParts(v string) ([]int, error) {
	if strings.TrimSpace(v) == "" {
		return nil, fmt.Errorf("empty version")
	}
	fields := strings.Split(strings.TrimSpace(v), ".")
	parts := make([]int, len(fields))
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("malformed version %q", v)
		}
		parts[i] = n
	}
	return parts, nil
}
