package submit

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/goliatone/go-flagsubmit/pkg/domain"
)

// Rule maps a response pattern onto an outcome. A rule matches when the
// status code is listed, when the body contains any of the substrings
// (case-insensitive) or when the regex matches the body.
type Rule struct {
	Name        string
	Outcome     domain.Outcome
	StatusCodes []int
	Contains    []string
	Pattern     *regexp.Regexp
}

// NewRule validates and compiles a rule.
func NewRule(name, outcome string, statusCodes []int, contains []string, pattern string) (Rule, error) {
	parsed, ok := domain.ParseOutcome(outcome)
	if !ok {
		return Rule{}, fmt.Errorf("submit: rule %q: unknown outcome %q", name, outcome)
	}
	rule := Rule{
		Name:        name,
		Outcome:     parsed,
		StatusCodes: append([]int(nil), statusCodes...),
	}
	for _, c := range contains {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
			rule.Contains = append(rule.Contains, c)
		}
	}
	if pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return Rule{}, fmt.Errorf("submit: rule %q: %w", name, err)
		}
		rule.Pattern = re
	}
	if len(rule.StatusCodes) == 0 && len(rule.Contains) == 0 && rule.Pattern == nil {
		return Rule{}, fmt.Errorf("submit: rule %q has nothing to match", name)
	}
	return rule, nil
}

// Matches reports whether the rule applies to the response.
func (r Rule) Matches(status int, lowered, raw string) bool {
	for _, code := range r.StatusCodes {
		if code == status {
			return true
		}
	}
	for _, needle := range r.Contains {
		if strings.Contains(lowered, needle) {
			return true
		}
	}
	return r.Pattern != nil && r.Pattern.MatchString(raw)
}

// Ruleset is evaluated in order; the first matching rule wins.
type Ruleset []Rule

// Classify returns the outcome of the first matching rule.
func (rs Ruleset) Classify(status int, body string) (Rule, bool) {
	lowered := strings.ToLower(body)
	for _, rule := range rs {
		if rule.Matches(status, lowered, body) {
			return rule, true
		}
	}
	return Rule{}, false
}

// DefaultRules covers the phrasing used by common attack/defence scoreboards.
// Rate limits come first so a throttled response mentioning "invalid" is not
// taken as a rejection.
func DefaultRules() Ruleset {
	return Ruleset{
		{
			Name:        "rate_limit",
			Outcome:     domain.OutcomeRateLimited,
			StatusCodes: []int{429},
			Contains:    []string{"rate limit", "too many"},
		},
		{
			Name:     "already_submitted",
			Outcome:  domain.OutcomeAlreadySubmitted,
			Contains: []string{"already submitted", "already claimed", "duplicate", "resubmit"},
		},
		{
			Name:     "rejected",
			Outcome:  domain.OutcomeRejected,
			Contains: []string{"invalid", "wrong", "incorrect", "expired", "own flag", "not valid"},
		},
		{
			Name:     "accepted",
			Outcome:  domain.OutcomeAccepted,
			Contains: []string{"accepted", "congrat", "correct", "success", "points"},
		},
	}
}
