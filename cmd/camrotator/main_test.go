/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/friendsincode/camrotator/internal/clock"
	"github.com/friendsincode/camrotator/internal/rotation"
	"github.com/friendsincode/camrotator/internal/vote"
)

const testCatalog = `sources:
  - id: harbor
    kind: hls
    title: Harbor
    url: https://example.com/harbor.m3u8
  - id: summit
    kind: hls
    title: Summit
    url: https://example.com/summit.m3u8
`

func writeCatalog(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCatalogValidate(t *testing.T) {
	path := writeCatalog(t, testCatalog)

	out, err := execute(t, "catalog", "validate", path)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out, "2 sources OK") {
		t.Errorf("output = %q, want source count", out)
	}
}

func TestCatalogValidateRejectsEmpty(t *testing.T) {
	path := writeCatalog(t, "sources: []\n")

	if _, err := execute(t, "catalog", "validate", path); err == nil {
		t.Fatal("expected error for empty catalog")
	}
}

func TestSimulate(t *testing.T) {
	// keep the run on stock tunables
	t.Setenv("CAMROTATOR_JWT_SIGNING_KEY", "")
	path := writeCatalog(t, testCatalog)

	out, err := execute(t, "simulate", path, "--duration", "15m", "--no-votes")
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	for _, want := range []string{"harbor", "summit", "timer", "0 failures"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintReport(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	report := clock.Report{
		Segments: []clock.Segment{
			{SourceID: "harbor", Kind: "hls", StartsAt: start, EndsAt: start.Add(5 * time.Minute), Duration: 5 * time.Minute, EndReason: "vote"},
			{SourceID: "summit", Kind: "hls", StartsAt: start.Add(5 * time.Minute), EndsAt: start.Add(6 * time.Minute), Duration: time.Minute, EndReason: "open"},
		},
		Failures: []rotation.FailureEvent{{SourceID: "quarry"}},
		Votes: []rotation.VoteEvent{
			{Decision: vote.DecisionAdvance},
			{Decision: vote.DecisionStay},
		},
	}

	var out bytes.Buffer
	if err := printReport(&out, report); err != nil {
		t.Fatalf("printReport: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "5m0s") {
		t.Errorf("output missing relative start:\n%s", got)
	}
	if !strings.Contains(got, "2 segments, 1 failures, 2 votes (1 stay)") {
		t.Errorf("summary wrong:\n%s", got)
	}
}

func TestPrintReportEmpty(t *testing.T) {
	var out bytes.Buffer
	if err := printReport(&out, clock.Report{}); err != nil {
		t.Fatalf("printReport: %v", err)
	}
	if !strings.Contains(out.String(), "idle") {
		t.Errorf("output = %q, want idle notice", out.String())
	}
}
