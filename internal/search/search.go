// Package search answers multi-criteria queries over documents.
package search

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/ResumeVault/internal/logger"
	"github.com/dharsanguruparan/ResumeVault/internal/model"
	"github.com/dharsanguruparan/ResumeVault/internal/repository"
	"github.com/dharsanguruparan/ResumeVault/internal/skills"
	"github.com/dharsanguruparan/ResumeVault/internal/tier"
)

const (
	DefaultLimit = 20
	MaxLimit     = 200
)

// Criteria are the raw query parameters. Empty fields do not constrain.
type Criteria struct {
	Status         string
	Name           string
	Email          string
	Phone          string
	Institution    string
	Tier           string
	Degree         string
	Major          string
	Skill          string
	DateFrom       string
	DateTo         string
	Offset         int
	Limit          int
	IncludeDeleted bool
}

// Page is one window of results, newest first.
type Page struct {
	Items  []model.Document `json:"items"`
	Total  int              `json:"total"`
	Offset int              `json:"offset"`
	Limit  int              `json:"limit"`
}

// Finder runs a repository filter.
type Finder interface {
	FindDocuments(ctx context.Context, f repository.Filter) ([]model.Document, int, error)
}

// Engine translates Criteria into repository filters.
type Engine struct {
	finder   Finder
	resolver *tier.Resolver
	logger   *zap.Logger
}

// NewEngine constructs an Engine. A nil resolver uses the default tables.
func NewEngine(finder Finder, resolver *tier.Resolver, log *zap.Logger) *Engine {
	if resolver == nil {
		resolver = tier.Default()
	}
	return &Engine{finder: finder, resolver: resolver, logger: logger.OrNop(log)}
}

// parsed holds validated criteria.
type parsed struct {
	filter     repository.Filter
	tier       tier.Tier
	tierFilter bool
}

func (e *Engine) parse(c Criteria) (parsed, error) {
	var p parsed
	statuses, err := ParseStatuses(c.Status)
	if err != nil {
		return p, err
	}
	from, err := ParseDate("date_from", c.DateFrom, false)
	if err != nil {
		return p, err
	}
	to, err := ParseDate("date_to", c.DateTo, true)
	if err != nil {
		return p, err
	}
	if from != nil && to != nil && from.After(*to) {
		return p, invalid("date_from", "must not be after date_to")
	}
	if c.Offset < 0 {
		return p, invalid("offset", "must not be negative")
	}
	if c.Limit < 0 {
		return p, invalid("limit", "must not be negative")
	}
	limit := c.Limit
	if limit == 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	if label := strings.TrimSpace(c.Tier); label != "" {
		t, ok := tier.ParseLabel(label)
		if !ok {
			return p, invalid("tier", "unknown tier %q", label)
		}
		p.tier = t
		p.tierFilter = true
	}

	p.filter = repository.Filter{
		Statuses:       statuses,
		Name:           strings.TrimSpace(c.Name),
		Email:          strings.TrimSpace(c.Email),
		Phone:          strings.TrimSpace(c.Phone),
		Degree:         strings.TrimSpace(c.Degree),
		Major:          strings.TrimSpace(c.Major),
		Institutions:   e.resolver.Expand(c.Institution),
		Skills:         skills.ParseTerms(c.Skill),
		CreatedFrom:    from,
		CreatedTo:      to,
		IncludeDeleted: c.IncludeDeleted,
		Limit:          limit,
		Offset:         c.Offset,
	}
	return p, nil
}

// Query validates c and returns the requested page.
func (e *Engine) Query(ctx context.Context, c Criteria) (*Page, error) {
	p, err := e.parse(c)
	if err != nil {
		return nil, err
	}
	if !p.tierFilter {
		items, total, err := e.finder.FindDocuments(ctx, p.filter)
		if err != nil {
			return nil, fmt.Errorf("find documents: %w", err)
		}
		return &Page{Items: items, Total: total, Offset: p.filter.Offset, Limit: p.filter.Limit}, nil
	}

	// Tier is derived from the institution at read time, so paging happens
	// after filtering in memory.
	all := p.filter
	all.Limit, all.Offset = 0, 0
	items, _, err := e.finder.FindDocuments(ctx, all)
	if err != nil {
		return nil, fmt.Errorf("find documents: %w", err)
	}
	matched := make([]model.Document, 0, len(items))
	for _, doc := range items {
		if e.TierOf(doc) == p.tier {
			matched = append(matched, doc)
		}
	}
	page := &Page{Total: len(matched), Offset: p.filter.Offset, Limit: p.filter.Limit, Items: []model.Document{}}
	if p.filter.Offset < len(matched) {
		end := min(p.filter.Offset+p.filter.Limit, len(matched))
		page.Items = matched[p.filter.Offset:end]
	}
	e.logger.Debug("tier filtered search",
		zap.String("tier", string(p.tier)),
		zap.Int("scanned", len(items)),
		zap.Int("matched", len(matched)))
	return page, nil
}

// TierOf is the effective tier of a document: the institution's resolved
// tier, or the stored label when the institution is not recognized.
func (e *Engine) TierOf(doc model.Document) tier.Tier {
	if t := e.resolver.Resolve(doc.Institution); t != tier.Unknown {
		return t
	}
	return tier.NormalizeLabel(doc.Tier)
}

// Resolver returns the tier resolver the engine filters with.
func (e *Engine) Resolver() *tier.Resolver {
	return e.resolver
}
