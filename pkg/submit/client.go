package submit

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-flagsubmit/pkg/domain"
	"github.com/goliatone/go-flagsubmit/pkg/interfaces/logger"
	gotemplate "github.com/goliatone/go-template"
	"github.com/jaytaylor/html2text"
)

const (
	maxBodyBytes   = 64 << 10
	maxMessageLen  = 200
	defaultTimeout = 5 * time.Second
)

// ErrMissingURL is returned when the client has no endpoint.
var ErrMissingURL = errors.New("submit: url is required")

// Submitter sends a single flag and classifies the response.
type Submitter interface {
	Submit(ctx context.Context, flag domain.Flag) domain.SubmissionResult
}

// Config configures the submission client.
type Config struct {
	URL                string
	Token              string
	Method             string
	Format             string
	TokenField         string
	FlagField          string
	TokenHeader        string
	ContentType        string
	BodyTemplate       string
	Headers            map[string]string
	Timeout            time.Duration
	InsecureSkipVerify bool
}

// Client posts flags to the scoring endpoint.
type Client struct {
	cfg      Config
	rules    Ruleset
	http     *http.Client
	logger   logger.Logger
	renderer *gotemplate.Engine
	renderMu sync.Mutex
	now      func() time.Time
}

var _ Submitter = (*Client)(nil)

type Option func(*Client)

// WithRules replaces the default ruleset. An empty ruleset keeps the defaults.
func WithRules(rules Ruleset) Option {
	return func(c *Client) {
		if len(rules) > 0 {
			c.rules = rules
		}
	}
}

// WithHTTPClient allows injecting a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New constructs the submission client.
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg = normalize(cfg)
	if cfg.URL == "" {
		return nil, ErrMissingURL
	}

	client := &Client{
		cfg:    cfg,
		rules:  DefaultRules(),
		logger: &logger.Nop{},
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if client.http == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if cfg.InsecureSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 -- opt-in for self-signed game infrastructure
		}
		client.http = &http.Client{Transport: transport}
	}
	if cfg.Format == FormatTemplate {
		renderer, err := gotemplate.NewRenderer(gotemplate.WithBaseDir("."))
		if err != nil {
			return nil, fmt.Errorf("submit: template renderer: %w", err)
		}
		client.renderer = renderer
	}
	return client, nil
}

func normalize(cfg Config) Config {
	cfg.URL = strings.TrimSpace(cfg.URL)
	cfg.Method = strings.ToUpper(strings.TrimSpace(cfg.Method))
	if cfg.Method == "" {
		cfg.Method = http.MethodPost
	}
	cfg.Format = strings.ToLower(strings.TrimSpace(cfg.Format))
	if cfg.Format == "" {
		cfg.Format = FormatForm
	}
	if cfg.TokenField == "" {
		cfg.TokenField = "team_token"
	}
	if cfg.FlagField == "" {
		cfg.FlagField = "flag"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return cfg
}

// Submit sends one flag. It never returns an error: transport failures,
// timeouts and unrecognised responses become a transport_error result.
func (c *Client) Submit(ctx context.Context, flag domain.Flag) domain.SubmissionResult {
	start := c.now()
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	result := c.submit(ctx, flag)
	result.Latency = c.now().Sub(start)

	c.logger.Debug("flag submitted",
		logger.F("flag", flag.Value),
		logger.F("outcome", result.Outcome),
		logger.F("status_code", result.StatusCode),
		logger.F("latency", result.Latency),
	)
	return result
}

func (c *Client) submit(ctx context.Context, flag domain.Flag) domain.SubmissionResult {
	var (
		req *http.Request
		err error
	)
	if c.renderer != nil {
		c.renderMu.Lock()
		req, err = c.buildRequest(ctx, flag)
		c.renderMu.Unlock()
	} else {
		req, err = c.buildRequest(ctx, flag)
	}
	if err != nil {
		return transportError(0, err.Error(), err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return transportError(0, fmt.Sprintf("timeout after %s", c.cfg.Timeout), err)
		}
		return transportError(0, "request failed: "+err.Error(), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return transportError(resp.StatusCode, "read response: "+err.Error(), err)
	}
	text := responseText(resp.Header.Get("Content-Type"), raw)

	if rule, ok := c.rules.Classify(resp.StatusCode, text); ok {
		return domain.SubmissionResult{
			Outcome:    rule.Outcome,
			Message:    truncate(text),
			StatusCode: resp.StatusCode,
		}
	}
	if resp.StatusCode >= 500 {
		return transportError(resp.StatusCode, fmt.Sprintf("server error %d: %s", resp.StatusCode, truncate(text)), nil)
	}
	return transportError(resp.StatusCode, "unrecognised response: "+truncate(text), nil)
}

func transportError(status int, message string, err error) domain.SubmissionResult {
	return domain.SubmissionResult{
		Outcome:    domain.OutcomeTransportError,
		Message:    message,
		StatusCode: status,
		Err:        err,
	}
}

// responseText normalises HTML scoreboards into plain text before matching.
func responseText(contentType string, raw []byte) string {
	body := strings.TrimSpace(string(raw))
	if strings.Contains(strings.ToLower(contentType), "html") || strings.HasPrefix(body, "<") {
		if text, err := html2text.FromString(body, html2text.Options{OmitLinks: true}); err == nil {
			return strings.TrimSpace(text)
		}
	}
	return body
}

func truncate(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= maxMessageLen {
		return s
	}
	return string(runes[:maxMessageLen]) + "..."
}
