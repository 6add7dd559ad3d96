package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dharsanguruparan/ResumeVault/internal/model"
	"github.com/dharsanguruparan/ResumeVault/internal/repository"
	"github.com/dharsanguruparan/ResumeVault/internal/tier"
)

func TestParseStatuses(t *testing.T) {
	cases := []struct {
		in      string
		want    []model.Status
		wantErr bool
	}{
		{in: "", want: nil},
		{in: "2", want: []model.Status{model.StatusQualified}},
		{in: "[2, 3]", want: []model.Status{model.StatusQualified, model.StatusRejected}},
		{in: "2,2,4", want: []model.Status{model.StatusQualified, model.StatusFailed}},
		{in: "abc", wantErr: true},
		{in: "9", wantErr: true},
		{in: "1,7", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseStatuses(tc.in)
		if tc.wantErr {
			var verr *ValidationError
			if !errors.As(err, &verr) || verr.Field != "status" {
				t.Fatalf("ParseStatuses(%q) expected validation error, got %v", tc.in, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseStatuses(%q) unexpected error: %v", tc.in, err)
		}
		if len(got) != len(tc.want) {
			t.Fatalf("ParseStatuses(%q) = %v, want %v", tc.in, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("ParseStatuses(%q) = %v, want %v", tc.in, got, tc.want)
			}
		}
	}
}

func TestParseDate(t *testing.T) {
	cases := []struct {
		in   string
		end  bool
		want time.Time
	}{
		{"2024", false, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"2024", true, time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC)},
		{"2024-03-05", true, time.Date(2024, 3, 5, 23, 59, 59, 0, time.UTC)},
		{"2024-03-05T10:30:00", true, time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC)},
		{"2024-03-05T10:30:00+08:00", false, time.Date(2024, 3, 5, 2, 30, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got, err := ParseDate("date_to", tc.in, tc.end)
		if err != nil {
			t.Fatalf("ParseDate(%q) unexpected error: %v", tc.in, err)
		}
		if !got.Equal(tc.want) {
			t.Fatalf("ParseDate(%q, %v) = %v, want %v", tc.in, tc.end, got, tc.want)
		}
	}
	if _, err := ParseDate("date_from", "yesterday", false); err == nil {
		t.Fatalf("expected invalid date to fail")
	}
}

type recordingFinder struct {
	filters []repository.Filter
	docs    []model.Document
}

func (r *recordingFinder) FindDocuments(ctx context.Context, f repository.Filter) ([]model.Document, int, error) {
	r.filters = append(r.filters, f)
	return r.docs, len(r.docs), nil
}

func TestQueryBuildsFilter(t *testing.T) {
	finder := &recordingFinder{}
	engine := NewEngine(finder, nil, nil)

	page, err := engine.Query(context.Background(), Criteria{
		Status:      "2,3",
		Name:        " 张 ",
		Institution: "清华",
		Skill:       "Go，SQL、go",
		DateFrom:    "2024-01-01",
		DateTo:      "2024-01-31",
		Limit:       500,
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if page.Limit != MaxLimit {
		t.Fatalf("expected limit clamped to %d, got %d", MaxLimit, page.Limit)
	}
	f := finder.filters[0]
	if len(f.Statuses) != 2 || f.Name != "张" {
		t.Fatalf("unexpected filter %+v", f)
	}
	if len(f.Skills) != 2 || f.Skills[0] != "go" || f.Skills[1] != "sql" {
		t.Fatalf("unexpected skills %v", f.Skills)
	}
	if len(f.Institutions) < 2 || f.Institutions[0] != "清华" {
		t.Fatalf("expected expanded institutions, got %v", f.Institutions)
	}
	if f.CreatedTo.Hour() != 23 || f.CreatedFrom.Hour() != 0 {
		t.Fatalf("unexpected date bounds %v %v", f.CreatedFrom, f.CreatedTo)
	}
}

func TestQueryValidation(t *testing.T) {
	engine := NewEngine(&recordingFinder{}, nil, nil)
	for _, c := range []Criteria{
		{Status: "x"},
		{Tier: "legendary"},
		{DateFrom: "2024-02-01", DateTo: "2024-01-01"},
		{Offset: -1},
		{Limit: -5},
	} {
		var verr *ValidationError
		if _, err := engine.Query(context.Background(), c); !errors.As(err, &verr) {
			t.Fatalf("criteria %+v expected validation error, got %v", c, err)
		}
	}
}

func TestQueryTierFilterPagesAfterFiltering(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	add := func(name, institution, storedTier string, offset time.Duration) {
		doc := &model.Document{FileKey: name, CreatedAt: base.Add(offset), Profile: model.Profile{Name: name, Institution: institution, Tier: storedTier}}
		if err := store.CreateDocument(ctx, doc); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	add("a", "清华大学", "", 1*time.Hour)
	add("b", "某某职业技术学院", "985/211", 2*time.Hour)
	add("c", "北京大学", "associate", 3*time.Hour)
	add("d", "", "985", 4*time.Hour)
	add("e", "复旦大学", "", 5*time.Hour)

	engine := NewEngine(store, tier.Default(), nil)
	page, err := engine.Query(ctx, Criteria{Tier: "985/211", Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	// Matches newest first: e, d (stored label fallback), c, a. b resolves to associate.
	if page.Total != 4 {
		t.Fatalf("expected 4 matches, got %d", page.Total)
	}
	if len(page.Items) != 2 || page.Items[0].Name != "d" || page.Items[1].Name != "c" {
		t.Fatalf("unexpected page %+v", page.Items)
	}
}

func TestTierOf(t *testing.T) {
	engine := NewEngine(&recordingFinder{}, nil, nil)
	if got := engine.TierOf(model.Document{Profile: model.Profile{Institution: "北京大学", Tier: "associate"}}); got != tier.TierA {
		t.Fatalf("resolved institution should win, got %q", got)
	}
	if got := engine.TierOf(model.Document{Profile: model.Profile{Institution: "", Tier: "双一流"}}); got != tier.TierB {
		t.Fatalf("stored label should be used for unknown institutions, got %q", got)
	}
}
