package normalize

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/dharsanguruparan/ResumeVault/internal/tier"
)

func TestExtractYear(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"2024年6月":   "2024",
		"06/2024":   "2024",
		"abc":       "",
		"":          "",
		"2019-2023": "2019",
		"毕业于1998":   "1998",
		"12345":     "",
	}
	for in, want := range cases {
		if got := ExtractYear(in); got != want {
			t.Fatalf("ExtractYear(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCleanJSON(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "fenced", in: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "bare fence", in: "```\n{\"a\":1}```", want: `{"a":1}`},
		{name: "prose", in: "Here you go: {\"a\":1} hope it helps", want: `{"a":1}`},
		{name: "plain", in: ` {"a":1} `, want: `{"a":1}`},
		{name: "garbage", in: "no json", want: "no json"},
	}
	for _, tc := range cases {
		if got := CleanJSON(tc.in); got != tc.want {
			t.Fatalf("%s: CleanJSON = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestNormalizeFlatReply(t *testing.T) {
	raw := "```json\n" + `{
		"is_qualified": true,
		"name": " 张三 ",
		"phone": "13800138000",
		"email": "zs@example.com",
		"university": "清华",
		"degree": "硕士",
		"major": "计算机科学",
		"graduation_year": "2024年6月",
		"skills": "Go，Python、go;SQL",
		"work_experience": [{"company": "ACME", "role": "intern"}],
		"projects": "Search engine",
		"score": "87.6",
		"reason": "strong backend skills"
	}` + "\n```"

	res := Normalize(raw)
	if !res.Qualified {
		t.Fatalf("expected qualified")
	}
	if res.Name != "张三" || res.Institution != "清华" || res.Degree != "master" {
		t.Fatalf("unexpected profile %+v", res.Profile)
	}
	if res.GraduationYear != "2024" {
		t.Fatalf("unexpected year %q", res.GraduationYear)
	}
	if !reflect.DeepEqual(res.Skills, []string{"go", "python", "sql"}) {
		t.Fatalf("unexpected skills %v", res.Skills)
	}
	if res.Tier != string(tier.TierA) {
		t.Fatalf("expected tier backfilled from institution, got %q", res.Tier)
	}
	if res.Score == nil || *res.Score != 88 {
		t.Fatalf("unexpected score %v", res.Score)
	}
	var projects []string
	if err := json.Unmarshal(res.Projects, &projects); err != nil || len(projects) != 1 {
		t.Fatalf("unexpected projects %s", res.Projects)
	}
	var work []map[string]any
	if err := json.Unmarshal(res.WorkExperience, &work); err != nil || work[0]["company"] != "ACME" {
		t.Fatalf("unexpected work experience %s", res.WorkExperience)
	}
}

func TestNormalizeNestedReply(t *testing.T) {
	raw := `{
		"candidate_info": {"name": "Li Lei", "phone": "13900000000"},
		"json_data": {
			"education": {"school": "深圳职业技术学院", "graduation_time": 2021, "tier": "双一流"},
			"skills": ["Java", "java", "Spring"]
		},
		"evaluation": {"score": 150, "reason": "ok", "qualified": "no"}
	}`

	res := Normalize(raw)
	if res.Name != "Li Lei" || res.Phone != "13900000000" {
		t.Fatalf("unexpected contact fields %+v", res.Profile)
	}
	if res.Institution != "深圳职业技术学院" || res.GraduationYear != "2021" {
		t.Fatalf("unexpected education %+v", res.Profile)
	}
	if res.Tier != string(tier.TierB) {
		t.Fatalf("expected the supplied label to win, got %q", res.Tier)
	}
	if !reflect.DeepEqual(res.Skills, []string{"java", "spring"}) {
		t.Fatalf("unexpected skills %v", res.Skills)
	}
	if res.Score == nil || *res.Score != 100 {
		t.Fatalf("expected clamped score, got %v", res.Score)
	}
	if res.Qualified {
		t.Fatalf("expected not qualified")
	}
}

func TestNormalizeMalformed(t *testing.T) {
	for _, raw := range []string{"", "not json at all", "```json\n{broken```", `{"name": {"first": "x"}, "score": "n/a"}`} {
		res := Normalize(raw)
		if res.Qualified || res.Score != nil {
			t.Fatalf("expected defaults for %q, got %+v", raw, res)
		}
		if res.Skills == nil || len(res.Skills) != 0 {
			t.Fatalf("expected empty skills for %q, got %v", raw, res.Skills)
		}
		if string(res.WorkExperience) != "[]" || string(res.Projects) != "[]" {
			t.Fatalf("expected empty lists for %q", raw)
		}
		if len(res.JSON()) == 0 {
			t.Fatalf("expected encodable result")
		}
	}
}

func TestResolveTierFallback(t *testing.T) {
	n := New(nil, nil)
	if got := n.ResolveTier("", "北京大学"); got != tier.TierA {
		t.Fatalf("expected resolver fallback, got %q", got)
	}
	if got := n.ResolveTier("unknown label", "某某职业学院"); got != tier.Associate {
		t.Fatalf("expected keyword fallback, got %q", got)
	}
	if got := n.ResolveTier("专科", "北京大学"); got != tier.Associate {
		t.Fatalf("expected supplied label to win, got %q", got)
	}
	if got := n.ResolveTier("", ""); got != tier.Unknown {
		t.Fatalf("expected unknown, got %q", got)
	}
}

func TestNormalizeCanonicalDegree(t *testing.T) {
	cases := map[string]string{
		"本科":          "bachelor",
		"Bachelor":    "bachelor",
		" 博士 ":        "phd",
		"工商管理硕士(MBA)": "工商管理硕士(MBA)",
		"":            "",
	}
	for in, want := range cases {
		raw, _ := json.Marshal(map[string]any{"is_qualified": false, "degree": in})
		if got := Normalize(string(raw)).Degree; got != want {
			t.Fatalf("degree %q = %q, want %q", in, got, want)
		}
	}
}
