package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/rankr/internal/serp"
	"github.com/FranksOps/rankr/internal/storage"
)

func testRecords() []storage.RankRecord {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	mk := func(kw, loc string, out serp.Outcome, offset time.Duration) storage.RankRecord {
		out.Duration = time.Second
		return storage.NewRecord("batch-1", serp.Request{Keyword: kw, Location: loc, Domain: "example.com"}, out, now.Add(offset))
	}
	return []storage.RankRecord{
		mk("coffee", "Austin, Texas", serp.Matched(2, "https://example.com/coffee"), 0),
		mk("tea", "", serp.Matched(7, "https://example.com/tea"), time.Second),
		mk("mate", "", serp.Matched(42, "https://example.com/mate"), 2*time.Second),
		mk("cocoa", "", serp.NotFound(), 3*time.Second),
		mk("chai", "", serp.AuthError(403), 4*time.Second),
		mk("kava", "", serp.TransportError(errString("timeout")), 5*time.Second),
	}
}

type errString string

func (e errString) Error() string { return string(e) }

func TestGenerateSummary(t *testing.T) {
	s := GenerateSummary(testRecords())

	if s.Total != 6 || s.Expected != 6 || s.Partial {
		t.Errorf("expected 6 lookups, got total=%d expected=%d partial=%v", s.Total, s.Expected, s.Partial)
	}
	if s.Matched != 3 || s.NotFound != 1 || s.Errors != 2 {
		t.Errorf("unexpected counts matched=%d not_found=%d errors=%d", s.Matched, s.NotFound, s.Errors)
	}
	if s.Top3 != 1 || s.Top10 != 2 {
		t.Errorf("expected top3=1 top10=2, got %d/%d", s.Top3, s.Top10)
	}
	if s.BestRank != 2 {
		t.Errorf("expected best rank 2, got %d", s.BestRank)
	}
	if s.AverageRank != 17 {
		t.Errorf("expected average rank 17, got %v", s.AverageRank)
	}
	if !s.AuthWarning || s.ByStatus[serp.StatusAuthError] != 1 {
		t.Error("expected auth warning")
	}
	if s.Domain != "example.com" || s.BatchID != "batch-1" {
		t.Errorf("unexpected domain/batch %q/%q", s.Domain, s.BatchID)
	}
	// first record started one second before it was stored
	if s.Duration != 6*time.Second {
		t.Errorf("expected 6s duration, got %v", s.Duration)
	}
}

func TestGenerateSummary_Empty(t *testing.T) {
	s := GenerateSummary(nil)
	if s.Total != 0 || s.AuthWarning || s.ByStatus == nil {
		t.Errorf("unexpected empty summary %+v", s)
	}
	if AuthAdvisory(s) != "" {
		t.Error("no advisory for an empty batch")
	}
}

func TestAuthAdvisory(t *testing.T) {
	s := GenerateSummary(testRecords())
	adv := AuthAdvisory(s)
	if !strings.Contains(adv, "1 lookup(s)") || !strings.Contains(adv, "API key") {
		t.Errorf("unexpected advisory %q", adv)
	}
}

func TestWriteText(t *testing.T) {
	records := testRecords()
	s := GenerateSummary(records)
	s.Expected, s.Partial = 8, true

	var buf bytes.Buffer
	if err := WriteText(&buf, s, records); err != nil {
		t.Fatalf("WriteText: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"Rankr Summary",
		"Lookups:       6 of 8 (cancelled)",
		"Matched:       3 (best 2, average 17.0)",
		"auth_error: 1",
		"transport_error: 1",
		"KEYWORD",
		"Not in Top 100",
		"Auth error (HTTP 403)",
		"Request failed: timeout",
		"https://example.com/coffee",
		"WARNING:",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected text output to contain %q\n%s", want, out)
		}
	}
}

func TestWriteJSON(t *testing.T) {
	records := testRecords()
	var buf bytes.Buffer
	if err := WriteJSON(&buf, GenerateSummary(records), records); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	var doc struct {
		Summary struct {
			Total   int `json:"total"`
			Matched int `json:"matched"`
		} `json:"summary"`
		Advisory string `json:"advisory"`
		Results  []struct {
			Keyword  string `json:"keyword"`
			Location string `json:"location"`
			Ranking  string `json:"ranking"`
			Status   string `json:"status"`
		} `json:"results"`
	}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if doc.Summary.Total != 6 || doc.Summary.Matched != 3 || len(doc.Results) != 6 {
		t.Errorf("unexpected document %+v", doc)
	}
	if doc.Advisory == "" {
		t.Error("expected advisory in JSON")
	}
	if doc.Results[0].Ranking != "2" || doc.Results[1].Location != "N/A" || doc.Results[3].Ranking != "Not in Top 100" {
		t.Errorf("unexpected results %+v", doc.Results)
	}
}

func TestWriteHTML(t *testing.T) {
	records := testRecords()
	records[0].Keyword = `<script>alert(1)</script>`

	var buf bytes.Buffer
	if err := WriteHTML(&buf, GenerateSummary(records), records); err != nil {
		t.Fatalf("WriteHTML: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "<title>Rankr Report for example.com</title>") {
		t.Errorf("missing title\n%s", out)
	}
	if strings.Contains(out, "<script>alert(1)</script>") {
		t.Error("keywords must be escaped")
	}
	if !strings.Contains(out, `class="advisory"`) || !strings.Contains(out, `<a href="https://example.com/tea">`) {
		t.Errorf("missing advisory or links\n%s", out)
	}
}

func TestWriteMarkdown(t *testing.T) {
	records := testRecords()
	var buf bytes.Buffer
	if err := WriteMarkdown(&buf, GenerateSummary(records), records); err != nil {
		t.Fatalf("WriteMarkdown: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"# Rankr Report",
		"## Summary",
		"## Results",
		"Keyword",
		"Not in Top 100",
		"```mermaid",
		"[!CAUTION]",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected markdown to contain %q\n%s", want, out)
		}
	}
}

func TestWriteMarkdown_NoRecords(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMarkdown(&buf, GenerateSummary(nil), nil); err != nil {
		t.Fatalf("WriteMarkdown: %v", err)
	}
	if !strings.Contains(buf.String(), "No results.") {
		t.Errorf("expected empty notice\n%s", buf.String())
	}
}
