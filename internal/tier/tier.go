// Package tier classifies institutions into coarse prestige buckets.
//
// Resolution is deterministic: a name is normalized, mapped through the alias
// table, tested for membership, retried with its institutional suffixes
// stripped, and finally classified by keyword. Anything left over is Unknown.
package tier

import (
	"regexp"
	"sort"
	"strings"
)

// Tier is a coarse institution classification. The zero value is Unknown.
type Tier string

const (
	Unknown   Tier = ""
	TierA     Tier = "985/211"
	TierB     Tier = "double-first-class"
	Ordinary  Tier = "ordinary-undergraduate"
	Associate Tier = "associate"
)

var labels = map[string]Tier{
	"985/211":                TierA,
	"985":                    TierA,
	"211":                    TierA,
	"985211":                 TierA,
	"985、211":                TierA,
	"985-211":                TierA,
	"tier-a":                 TierA,
	"double-first-class":     TierB,
	"doublefirstclass":       TierB,
	"双一流":                    TierB,
	"双一流大学":                  TierB,
	"tier-b":                 TierB,
	"ordinary-undergraduate": Ordinary,
	"ordinary":               Ordinary,
	"ordinaryundergraduate":  Ordinary,
	"普通本科":                   Ordinary,
	"本科":                     Ordinary,
	"一本":                     Ordinary,
	"二本":                     Ordinary,
	"undergraduate":          Ordinary,
	"associate":              Associate,
	"专科":                     Associate,
	"大专":                     Associate,
	"高职":                     Associate,
	"vocational":             Associate,
}

var unknownLabels = map[string]struct{}{
	"": {}, "null": {}, "none": {}, "unknown": {}, "未知": {}, "无": {}, "n/a": {},
}

// ParseLabel maps a free-form tier label onto the vocabulary. The boolean is
// false when the label is not recognized at all; explicit unknown markers
// such as "null" parse successfully to Unknown.
func ParseLabel(s string) (Tier, bool) {
	key := strings.ToLower(compact(s))
	if t, ok := labels[key]; ok {
		return t, true
	}
	if _, ok := unknownLabels[key]; ok {
		return Unknown, true
	}
	return Unknown, false
}

// NormalizeLabel is ParseLabel without the recognition flag.
func NormalizeLabel(s string) Tier {
	t, _ := ParseLabel(s)
	return t
}

var branchPattern = regexp.MustCompile(`\([^)]*\)`)

var spaceReplacer = strings.NewReplacer(
	" ", "",
	"　", "",
	"\t", "",
	"\n", "",
	"（", "(",
	"）", ")",
)

func compact(s string) string {
	return spaceReplacer.Replace(strings.TrimSpace(s))
}

func normalize(s string) string {
	return strings.ToLower(compact(s))
}

// Resolver classifies institution names against a fixed set of Tables.
// It is safe for concurrent use.
type Resolver struct {
	aliases   map[string]string
	reverse   map[string][]string
	members   map[string]Tier
	suffixes  []string
	associate []string
	ordinary  []string
}

// NewResolver indexes tables for lookup.
func NewResolver(tables Tables) *Resolver {
	r := &Resolver{
		aliases: make(map[string]string, len(tables.Aliases)),
		reverse: make(map[string][]string),
		members: make(map[string]Tier, len(tables.TierA)+len(tables.TierB)),
	}
	for _, name := range tables.TierB {
		r.members[normalize(name)] = TierB
	}
	for _, name := range tables.TierA {
		r.members[normalize(name)] = TierA
	}
	for alias, canonical := range tables.Aliases {
		r.aliases[normalize(alias)] = canonical
		key := normalize(canonical)
		r.reverse[key] = append(r.reverse[key], alias)
	}
	for _, list := range r.reverse {
		sort.Strings(list)
	}
	for _, s := range tables.Suffixes {
		r.suffixes = append(r.suffixes, normalize(s))
	}
	for _, k := range tables.AssociateKeywords {
		r.associate = append(r.associate, normalize(k))
	}
	for _, k := range tables.OrdinaryKeywords {
		r.ordinary = append(r.ordinary, normalize(k))
	}
	return r
}

// Canonical returns the full institution name for a known alias, or the
// trimmed input otherwise.
func (r *Resolver) Canonical(name string) string {
	if canonical, ok := r.aliases[normalize(name)]; ok {
		return canonical
	}
	return strings.TrimSpace(name)
}

// Resolve classifies an institution name. It never guesses: names matching
// no table and no keyword resolve to Unknown.
func (r *Resolver) Resolve(name string) Tier {
	n := normalize(name)
	if n == "" {
		return Unknown
	}
	if t, ok := r.lookup(n); ok {
		return t
	}
	if t, ok := r.fuzzy(n); ok {
		return t
	}
	return r.byKeyword(n)
}

func (r *Resolver) lookup(n string) (Tier, bool) {
	if canonical, ok := r.aliases[n]; ok {
		n = normalize(canonical)
	}
	t, ok := r.members[n]
	return t, ok
}

// fuzzy strips branch-campus markers and institutional suffixes, retrying
// membership for the head up to the suffix, the bare stem, and the stem with
// every suffix re-appended.
func (r *Resolver) fuzzy(n string) (Tier, bool) {
	bases := []string{n}
	if stripped := branchPattern.ReplaceAllString(n, ""); stripped != n && stripped != "" {
		bases = append(bases, stripped)
	}
	for _, base := range bases {
		if t, ok := r.lookup(base); ok {
			return t, true
		}
		for _, suffix := range r.suffixes {
			idx := strings.Index(base, suffix)
			if idx <= 0 {
				continue
			}
			if t, ok := r.lookup(base[:idx+len(suffix)]); ok {
				return t, true
			}
			stem := base[:idx]
			if t, ok := r.lookup(stem); ok {
				return t, true
			}
			for _, other := range r.suffixes {
				if t, ok := r.lookup(stem + other); ok {
					return t, true
				}
			}
		}
	}
	return Unknown, false
}

func (r *Resolver) byKeyword(n string) Tier {
	for _, k := range r.associate {
		if k != "" && strings.Contains(n, k) {
			return Associate
		}
	}
	for _, k := range r.ordinary {
		if k != "" && strings.Contains(n, k) {
			return Ordinary
		}
	}
	return Unknown
}

// Expand returns the query, its canonical name and every alias of that name,
// deduplicated. Unknown names expand to themselves.
func (r *Resolver) Expand(query string) []string {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	out := []string{query}
	seen := map[string]struct{}{normalize(query): {}}
	add := func(s string) {
		key := normalize(s)
		if key == "" {
			return
		}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}

	canonical := r.Canonical(query)
	add(canonical)
	for _, alias := range r.reverse[normalize(canonical)] {
		add(alias)
	}
	return out
}

var defaultResolver = NewResolver(DefaultTables())

// Default returns the resolver built from DefaultTables.
func Default() *Resolver {
	return defaultResolver
}

// Resolve classifies name with the default tables.
func Resolve(name string) Tier {
	return defaultResolver.Resolve(name)
}

// Expand expands query with the default tables.
func Expand(query string) []string {
	return defaultResolver.Expand(query)
}
