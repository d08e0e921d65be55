package submit

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-flagsubmit/pkg/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, cfg Config, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg.URL = server.URL
	if cfg.Token == "" {
		cfg.Token = "team-token"
	}
	client, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestSubmitSendsFormFields(t *testing.T) {
	var gotFlag, gotToken, gotContentType string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotFlag = r.PostForm.Get("flag")
		gotToken = r.PostForm.Get("team_token")
		gotContentType = r.Header.Get("Content-Type")
		_, _ = io.WriteString(w, "Flag accepted! +50 points")
	}, Config{})

	result := client.Submit(context.Background(), domain.Flag{Value: "FLAG_A"})

	if result.Outcome != domain.OutcomeAccepted {
		t.Fatalf("expected accepted, got %s (%s)", result.Outcome, result.Message)
	}
	if gotFlag != "FLAG_A" || gotToken != "team-token" {
		t.Fatalf("unexpected form fields flag=%q token=%q", gotFlag, gotToken)
	}
	if gotContentType != "application/x-www-form-urlencoded" {
		t.Fatalf("unexpected content type %q", gotContentType)
	}
	if result.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", result.StatusCode)
	}
}

func TestSubmitJSONWithTokenHeader(t *testing.T) {
	var payload map[string]string
	var header string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get("X-Team-Token")
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = io.WriteString(w, `{"status":"error","msg":"Flag already submitted"}`)
	}, Config{Format: "json", TokenHeader: "X-Team-Token", FlagField: "flags"})

	result := client.Submit(context.Background(), domain.Flag{Value: "FLAG_B"})

	if result.Outcome != domain.OutcomeAlreadySubmitted {
		t.Fatalf("expected already_submitted, got %s", result.Outcome)
	}
	if header != "team-token" {
		t.Fatalf("expected token header, got %q", header)
	}
	if payload["flags"] != "FLAG_B" {
		t.Fatalf("unexpected payload %v", payload)
	}
	if _, ok := payload["team_token"]; ok {
		t.Fatalf("token must not be in body when sent as header: %v", payload)
	}
}

func TestSubmitTemplateBody(t *testing.T) {
	var body string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		_, _ = io.WriteString(w, "wrong flag")
	}, Config{
		Format:       "template",
		ContentType:  "application/json",
		BodyTemplate: `["{{ flag }}"]`,
	})

	result := client.Submit(context.Background(), domain.Flag{Value: "FLAG_T"})

	if result.Outcome != domain.OutcomeRejected {
		t.Fatalf("expected rejected, got %s", result.Outcome)
	}
	if body != `["FLAG_T"]` {
		t.Fatalf("unexpected rendered body %q", body)
	}
}

func TestSubmitClassification(t *testing.T) {
	cases := []struct {
		name        string
		status      int
		contentType string
		body        string
		want        domain.Outcome
	}{
		{"rate limit status", http.StatusTooManyRequests, "text/plain", "slow down", domain.OutcomeRateLimited},
		{"rate limit text beats invalid", http.StatusOK, "text/plain", "Too many requests, invalid window", domain.OutcomeRateLimited},
		{"duplicate", http.StatusOK, "text/plain", "[DUP] duplicate flag", domain.OutcomeAlreadySubmitted},
		{"own flag", http.StatusOK, "text/plain", "You cannot submit your own flag", domain.OutcomeRejected},
		{"incorrect is not correct", http.StatusOK, "text/plain", "incorrect", domain.OutcomeRejected},
		{"html accepted", http.StatusOK, "text/html", "<html><body><h1>Congratulations</h1><p>flag ok</p></body></html>", domain.OutcomeAccepted},
		{"server error", http.StatusBadGateway, "text/plain", "upstream down", domain.OutcomeTransportError},
		{"unrecognised", http.StatusOK, "text/plain", "??", domain.OutcomeTransportError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tc.contentType)
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}, Config{})

			result := client.Submit(context.Background(), domain.Flag{Value: "FLAG"})
			if result.Outcome != tc.want {
				t.Fatalf("expected %s, got %s (%s)", tc.want, result.Outcome, result.Message)
			}
			if result.StatusCode != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, result.StatusCode)
			}
		})
	}
}

func TestSubmitUnrecognisedResponseIsTruncated(t *testing.T) {
	long := strings.Repeat("x", 1000)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, long)
	}, Config{})

	result := client.Submit(context.Background(), domain.Flag{Value: "FLAG"})
	if result.Outcome != domain.OutcomeTransportError {
		t.Fatalf("expected transport_error, got %s", result.Outcome)
	}
	if len(result.Message) > maxMessageLen+64 {
		t.Fatalf("expected truncated message, got %d chars", len(result.Message))
	}
}

func TestSubmitTimeout(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, Config{Timeout: 50 * time.Millisecond})

	result := client.Submit(context.Background(), domain.Flag{Value: "FLAG_C"})
	if result.Outcome != domain.OutcomeTransportError {
		t.Fatalf("expected transport_error, got %s", result.Outcome)
	}
	if result.Err == nil {
		t.Fatalf("expected underlying error to be kept")
	}
	if !strings.Contains(result.Message, "timeout") {
		t.Fatalf("expected timeout message, got %q", result.Message)
	}
}

func TestSubmitConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client, err := New(Config{URL: url, Token: "t"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	result := client.Submit(context.Background(), domain.Flag{Value: "FLAG"})
	if result.Outcome != domain.OutcomeTransportError || result.Err == nil {
		t.Fatalf("expected transport_error with error, got %+v", result)
	}
}

func TestSubmitCustomRulesWinInOrder(t *testing.T) {
	points, err := NewRule("points", "accepted", nil, nil, `^\[OK\]`)
	if err != nil {
		t.Fatalf("rule: %v", err)
	}
	denied, err := NewRule("denied", "rejected", []int{403}, nil, "")
	if err != nil {
		t.Fatalf("rule: %v", err)
	}

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.PostFormValue("flag") == "BAD" {
			w.WriteHeader(http.StatusForbidden)
		}
		_, _ = io.WriteString(w, "[OK] invalid looking but fine")
	}, Config{}, WithRules(Ruleset{denied, points}))

	if got := client.Submit(context.Background(), domain.Flag{Value: "GOOD"}); got.Outcome != domain.OutcomeAccepted {
		t.Fatalf("expected custom accepted rule, got %s", got.Outcome)
	}
	if got := client.Submit(context.Background(), domain.Flag{Value: "BAD"}); got.Outcome != domain.OutcomeRejected {
		t.Fatalf("expected status rule to win, got %s", got.Outcome)
	}
}

func TestNewRuleValidation(t *testing.T) {
	if _, err := NewRule("x", "maybe", []int{200}, nil, ""); err == nil {
		t.Fatalf("expected unknown outcome error")
	}
	if _, err := NewRule("x", "accepted", nil, nil, ""); err == nil {
		t.Fatalf("expected empty rule error")
	}
	if _, err := NewRule("x", "accepted", nil, nil, "("); err == nil {
		t.Fatalf("expected regex error")
	}
	rule, err := NewRule("x", "duplicate", nil, []string{" Already "}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rule.Outcome != domain.OutcomeAlreadySubmitted || rule.Contains[0] != "already" {
		t.Fatalf("unexpected rule %+v", rule)
	}
}

func TestNewRequiresURL(t *testing.T) {
	if _, err := New(Config{Token: "t"}); err != ErrMissingURL {
		t.Fatalf("expected ErrMissingURL, got %v", err)
	}
}
