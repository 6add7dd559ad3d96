package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/dharsanguruparan/ResumeVault/internal/model"
	"github.com/dharsanguruparan/ResumeVault/internal/scheduler"
)

func TestTierCommand(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"tier", "清华大学"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var rows []struct {
		Tier    string   `json:"tier"`
		Expands []string `json:"expands"`
	}
	if err := json.Unmarshal(out.Bytes(), &rows); err != nil {
		t.Fatalf("decode output %q: %v", out.String(), err)
	}
	if len(rows) != 1 || rows[0].Tier != "985/211" || len(rows[0].Expands) == 0 {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestReanalyzeArgs(t *testing.T) {
	for _, args := range [][]string{{"reanalyze"}, {"reanalyze", "--all", "3"}} {
		cmd := newRootCommand()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs(args)
		if err := cmd.Execute(); err == nil {
			t.Fatalf("expected error for %v", args)
		}
	}
}

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs([]string{"1", "42"})
	if err != nil || len(ids) != 2 || ids[1] != 42 {
		t.Fatalf("unexpected result %v (%v)", ids, err)
	}
	if _, err := parseIDs([]string{"0"}); err == nil {
		t.Fatalf("expected error for zero id")
	}
	if _, err := parseIDs([]string{"x"}); err == nil {
		t.Fatalf("expected error for non-numeric id")
	}
}

func TestSummarize(t *testing.T) {
	view := summarize(scheduler.BatchReport{
		Total:  2,
		Failed: 1,
		Outcomes: []scheduler.Outcome{
			{ID: 1, Status: model.StatusQualified},
			{ID: 2, Status: model.StatusFailed, Err: errors.New("boom")},
		},
	})
	if view.Outcomes[0].Status != "qualified" || view.Outcomes[1].Error != "boom" {
		t.Fatalf("unexpected view: %+v", view)
	}
}
