package api

import (
	"context"
	"fmt"
	"strings"
)

// DefaultErrorCap is the number of error details kept when ExtractErrors is
// called with a non-positive cap.
const DefaultErrorCap = 5

// TextMatcher returns the texts of every element matching some locator.
type TextMatcher func(ctx context.Context) ([]string, error)

// NormalizeText trims s and collapses internal whitespace runs to a single
// space.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// HasPrefixFold keeps only the texts of m that start with prefix, ignoring
// case and leading whitespace.
func HasPrefixFold(m TextMatcher, prefix string) TextMatcher {
	prefix = strings.ToLower(prefix)
	return func(ctx context.Context) ([]string, error) {
		texts, err := m(ctx)
		if err != nil {
			return nil, err
		}
		out := texts[:0:0]
		for _, t := range texts {
			if strings.HasPrefix(strings.ToLower(strings.TrimSpace(t)), prefix) {
				out = append(out, t)
			}
		}
		return out, nil
	}
}

// ExtractErrors collects human-readable error details in two tiers. The
// primary tier is used when it yields at least one non-empty text; otherwise
// the fallback tier is used. Texts are normalized, deduplicated in
// first-seen order and capped at limit (DefaultErrorCap when limit <= 0).
//
// A nil fallback is allowed. An error from the primary matcher is returned
// only if the fallback cannot be consulted or fails too.
func ExtractErrors(ctx context.Context, primary, fallback TextMatcher, limit int) ([]string, error) {
	if limit <= 0 {
		limit = DefaultErrorCap
	}

	var primaryErr error
	if primary != nil {
		texts, err := primary(ctx)
		if err != nil {
			primaryErr = err
		} else if out := dedupTexts(texts, limit); len(out) > 0 {
			return out, nil
		}
	}

	if fallback == nil {
		if primaryErr != nil {
			return nil, fmt.Errorf("extract errors: %w", primaryErr)
		}
		return nil, nil
	}

	texts, err := fallback(ctx)
	if err != nil {
		if primaryErr != nil {
			return nil, fmt.Errorf("extract errors: %w", primaryErr)
		}
		return nil, fmt.Errorf("extract errors: %w", err)
	}
	return dedupTexts(texts, limit), nil
}

func dedupTexts(texts []string, limit int) []string {
	seen := make(map[string]struct{}, len(texts))
	var out []string
	for _, t := range texts {
		t = NormalizeText(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if len(out) == limit {
			break
		}
	}
	return out
}

// FormatErrors renders errs as a validation failure message for subject:
//
//	Validation errors for "subject":
//	  - first
//	  - second
//
// An empty errs yields a generic message.
func FormatErrors(subject string, errs []string) string {
	if len(errs) == 0 {
		return fmt.Sprintf("Validation errors for %q: no details found", subject)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Validation errors for %q:", subject)
	for _, e := range errs {
		b.WriteString("\n  - ")
		b.WriteString(e)
	}
	return b.String()
}
