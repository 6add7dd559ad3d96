// Package skills canonicalizes free-form skill lists into lower-cased,
// deduplicated tag names.
package skills

import (
	"fmt"
	"strings"
)

// delimiters are folded into a comma before splitting.
var delimiters = strings.NewReplacer(
	"，", ",",
	"、", ",",
	"；", ",",
	";", ",",
	"·", ",",
	"・", ",",
	"\r\n", ",",
	"\n", ",",
	"\r", ",",
)

// Normalize accepts a delimited string, a []string, a []any of strings or nil
// and returns the canonical tag list in first-seen order. The result never
// contains empty or duplicate names.
func Normalize(v any) []string {
	var raw []string
	switch val := v.(type) {
	case nil:
		return []string{}
	case string:
		raw = split(val)
	case []string:
		for _, s := range val {
			raw = append(raw, split(s)...)
		}
	case []any:
		for _, item := range val {
			switch s := item.(type) {
			case string:
				raw = append(raw, split(s)...)
			case nil:
			default:
				raw = append(raw, fmt.Sprint(s))
			}
		}
	default:
		raw = split(fmt.Sprint(val))
	}
	return dedupe(raw)
}

// ParseTerms splits a search query into skill terms with the same rules as
// Normalize.
func ParseTerms(query string) []string {
	return Normalize(query)
}

func split(s string) []string {
	return strings.Split(delimiters.Replace(s), ",")
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		name := strings.ToLower(strings.TrimSpace(s))
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
