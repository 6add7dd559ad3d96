package tier

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolve(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want Tier
	}{
		{name: "tier a full name", in: "清华大学", want: TierA},
		{name: "tier a alias", in: "清华", want: TierA},
		{name: "full width space", in: "  复旦　大学 ", want: TierA},
		{name: "tier b", in: "北京邮电大学", want: TierB},
		{name: "tier b alias", in: "国科大", want: TierB},
		{name: "branch campus parentheses", in: "哈尔滨工业大学（威海）", want: TierA},
		{name: "branch campus suffix", in: "山东大学威海分校", want: TierB},
		{name: "graduate school", in: "清华大学深圳国际研究生院", want: TierA},
		{name: "english alias", in: "Tsinghua University", want: TierA},
		{name: "english acronym", in: "pku", want: TierA},
		{name: "associate keyword", in: "深圳职业技术学院", want: Associate},
		{name: "ordinary keyword", in: "北京城市学院", want: Ordinary},
		{name: "ordinary english", in: "Ohio State University", want: Ordinary},
		{name: "unknown", in: "某某培训中心", want: Unknown},
		{name: "empty", in: "   ", want: Unknown},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Resolve(tc.in); got != tc.want {
				t.Fatalf("Resolve(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestResolveAliasEquivalence(t *testing.T) {
	for alias, canonical := range DefaultTables().Aliases {
		if Resolve(alias) != Resolve(canonical) {
			t.Fatalf("alias %q resolved to %q, canonical %q to %q", alias, Resolve(alias), canonical, Resolve(canonical))
		}
	}
}

func TestResolveDeterministic(t *testing.T) {
	for i := 0; i < 5; i++ {
		if Resolve("上交") != TierA {
			t.Fatalf("expected stable tier for alias")
		}
	}
}

func TestExpand(t *testing.T) {
	got := Expand("清华")
	want := map[string]bool{"清华": true, "清华大学": true, "THU": true, "Tsinghua": true, "Tsinghua University": true}
	if len(got) != len(want) {
		t.Fatalf("unexpected expansion %v", got)
	}
	for _, v := range got {
		if !want[v] {
			t.Fatalf("unexpected variant %q in %v", v, got)
		}
	}
	if got[0] != "清华" {
		t.Fatalf("expected query first, got %v", got)
	}

	full := Expand("清华大学")
	if len(full) != len(got) {
		t.Fatalf("expected full name to expand to the same set, got %v", full)
	}

	unknown := Expand("某某学院")
	if len(unknown) != 1 || unknown[0] != "某某学院" {
		t.Fatalf("unexpected expansion for unknown name %v", unknown)
	}
	if Expand("  ") != nil {
		t.Fatalf("expected nil expansion for blank query")
	}
}

func TestParseLabel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want Tier
		ok   bool
	}{
		{in: "985/211", want: TierA, ok: true},
		{in: "985", want: TierA, ok: true},
		{in: "双一流", want: TierB, ok: true},
		{in: "Double-First-Class", want: TierB, ok: true},
		{in: "普通本科", want: Ordinary, ok: true},
		{in: "专科", want: Associate, ok: true},
		{in: "null", want: Unknown, ok: true},
		{in: "", want: Unknown, ok: true},
		{in: "ivy league", want: Unknown, ok: false},
	}

	for _, tc := range cases {
		got, ok := ParseLabel(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("ParseLabel(%q) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestLoadTables(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tiers.yaml")
	data := []byte("tier_b:\n  - 深圳大学\naliases:\n  深大: 深圳大学\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write tables: %v", err)
	}

	tables, err := LoadTables(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r := NewResolver(tables)
	if got := r.Resolve("深大"); got != TierB {
		t.Fatalf("expected overlay alias to resolve to tier b, got %q", got)
	}
	if got := r.Resolve("北京邮电大学"); got != Ordinary {
		t.Fatalf("expected replaced tier b list to drop old member, got %q", got)
	}
	if got := r.Resolve("清华"); got != TierA {
		t.Fatalf("expected defaults to survive overlay, got %q", got)
	}

	if _, err := LoadTables(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
