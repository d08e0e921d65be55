package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/goliatone/go-flagsubmit/pkg/interfaces/store"
)

// Inserter is the slice of the flag store used for ingestion.
type Inserter interface {
	InsertIfAbsent(ctx context.Context, value, group string) (bool, error)
}

// Report counts what happened to each ingested value.
type Report struct {
	Inserted int
	Known    int
	Invalid  int
}

// Options tune ingestion.
type Options struct {
	Group string
	// Pattern keeps only values matching it; when it has submatches the
	// first group is used so harvester noise around a flag is dropped.
	Pattern *regexp.Regexp
}

// CompilePattern returns nil for an empty pattern.
func CompilePattern(pattern string) (*regexp.Regexp, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("ingest: flag pattern: %w", err)
	}
	return re, nil
}

// Ingest stores every new flag value. Blank lines and # comments are
// ignored; values rejected by the pattern are counted as invalid.
func Ingest(ctx context.Context, repo Inserter, values []string, opts Options) (Report, error) {
	var report Report
	for _, raw := range values {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		for _, value := range extract(raw, opts.Pattern, &report) {
			inserted, err := repo.InsertIfAbsent(ctx, value, opts.Group)
			if errors.Is(err, store.ErrInvalidValue) {
				report.Invalid++
				continue
			}
			if err != nil {
				return report, fmt.Errorf("ingest: insert %s: %w", value, err)
			}
			if inserted {
				report.Inserted++
			} else {
				report.Known++
			}
		}
	}
	return report, nil
}

func extract(raw string, pattern *regexp.Regexp, report *Report) []string {
	value := strings.TrimSpace(raw)
	if value == "" || strings.HasPrefix(value, "#") {
		return nil
	}
	if pattern == nil {
		return []string{value}
	}
	matches := pattern.FindAllStringSubmatch(value, -1)
	if len(matches) == 0 {
		report.Invalid++
		return nil
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if len(m) > 1 && m[1] != "" {
			out = append(out, m[1])
		} else {
			out = append(out, m[0])
		}
	}
	return out
}

// ReadValues splits harvester output on whitespace, one value per token.
// Lines starting with # are skipped whole.
func ReadValues(r io.Reader) ([]string, error) {
	var values []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		values = append(values, strings.Fields(line)...)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ingest: read values: %w", err)
	}
	return values, nil
}
