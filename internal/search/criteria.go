package search

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dharsanguruparan/ResumeVault/internal/model"
)

// ValidationError reports a malformed search parameter.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

var digitRuns = regexp.MustCompile(`\d+`)

// ParseStatuses reads a status list such as "2,3" or "[2, 3]". Every digit
// run is one status; an input with no digits at all is rejected, as is any
// value outside the status vocabulary. Empty input means no constraint.
func ParseStatuses(raw string) ([]model.Status, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	runs := digitRuns.FindAllString(raw, -1)
	if len(runs) == 0 {
		return nil, invalid("status", "%q contains no status codes", raw)
	}
	statuses := make([]model.Status, 0, len(runs))
	seen := map[model.Status]struct{}{}
	for _, run := range runs {
		n, err := strconv.Atoi(run)
		if err != nil || !model.Status(n).Valid() {
			return nil, invalid("status", "unknown status %s", run)
		}
		s := model.Status(n)
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		statuses = append(statuses, s)
	}
	return statuses, nil
}

type dateLayout struct {
	layout string
	// span is added to reach the inclusive end of the period.
	span func(time.Time) time.Time
}

var dateLayouts = []dateLayout{
	{time.RFC3339, nil},
	{"2006-01-02T15:04:05", nil},
	{"2006-01-02 15:04:05", nil},
	{"2006-01-02", func(t time.Time) time.Time { return t.Add(24*time.Hour - time.Second) }},
	{"2006", func(t time.Time) time.Time { return t.AddDate(1, 0, 0).Add(-time.Second) }},
}

// ParseDate parses a date bound in UTC. With end set, a bare day or year
// extends to its last second.
func ParseDate(field, raw string, end bool) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, l := range dateLayouts {
		t, err := time.ParseInLocation(l.layout, raw, time.UTC)
		if err != nil {
			continue
		}
		t = t.UTC()
		if end && l.span != nil {
			t = l.span(t)
		}
		return &t, nil
	}
	return nil, invalid(field, "%q is not a date", raw)
}
