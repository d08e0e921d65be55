package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/goliatone/go-flagsubmit/pkg/domain"
)

// Request body formats.
const (
	FormatForm     = "form"
	FormatJSON     = "json"
	FormatTemplate = "template"
)

func (c *Client) buildRequest(ctx context.Context, flag domain.Flag) (*http.Request, error) {
	cfg := c.cfg
	var (
		body        io.Reader
		contentType string
		target      = cfg.URL
	)

	switch cfg.Format {
	case FormatJSON:
		payload := map[string]string{cfg.FlagField: flag.Value}
		if cfg.TokenHeader == "" {
			payload[cfg.TokenField] = cfg.Token
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("submit: encode json: %w", err)
		}
		body = bytes.NewReader(raw)
		contentType = "application/json"
	case FormatTemplate:
		if c.renderer == nil {
			return nil, fmt.Errorf("submit: template renderer not configured")
		}
		rendered, err := c.renderer.RenderString(cfg.BodyTemplate, map[string]any{
			"flag":  flag.Value,
			"token": cfg.Token,
			"group": flag.Group,
		})
		if err != nil {
			return nil, fmt.Errorf("submit: render body: %w", err)
		}
		body = strings.NewReader(rendered)
		contentType = "text/plain; charset=utf-8"
	default:
		values := url.Values{}
		values.Set(cfg.FlagField, flag.Value)
		if cfg.TokenHeader == "" {
			values.Set(cfg.TokenField, cfg.Token)
		}
		if cfg.Method == http.MethodGet {
			u, err := url.Parse(cfg.URL)
			if err != nil {
				return nil, fmt.Errorf("submit: parse url: %w", err)
			}
			query := u.Query()
			for k, v := range values {
				query[k] = v
			}
			u.RawQuery = query.Encode()
			target = u.String()
		} else {
			body = strings.NewReader(values.Encode())
			contentType = "application/x-www-form-urlencoded"
		}
	}

	if cfg.ContentType != "" {
		contentType = cfg.ContentType
	}

	req, err := http.NewRequestWithContext(ctx, cfg.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("submit: build request: %w", err)
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}
	if cfg.TokenHeader != "" {
		req.Header.Set(cfg.TokenHeader, cfg.Token)
	}
	return req, nil
}
