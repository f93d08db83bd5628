package report

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"text/template"
	"time"

	"github.com/FranksOps/rankr/internal/serp"
	"github.com/FranksOps/rankr/internal/storage"
)

// Summary aggregates a batch of rank records.
type Summary struct {
	BatchID string `json:"batch_id,omitempty"`
	Domain  string `json:"domain,omitempty"`
	// Expected is the number of lookups dispatched. It exceeds Total only
	// for a partial batch.
	Expected int  `json:"expected"`
	Total    int  `json:"total"`
	Partial  bool `json:"partial"`

	Matched  int                 `json:"matched"`
	NotFound int                 `json:"not_found"`
	Errors   int                 `json:"errors"`
	ByStatus map[serp.Status]int `json:"by_status"`

	Top3        int     `json:"top_3"`
	Top10       int     `json:"top_10"`
	BestRank    int     `json:"best_rank,omitempty"`
	AverageRank float64 `json:"average_rank,omitempty"`

	AuthWarning bool          `json:"auth_warning"`
	StartTime   time.Time     `json:"start_time"`
	EndTime     time.Time     `json:"end_time"`
	Duration    time.Duration `json:"duration_ns"`
}

// GenerateSummary aggregates records. Expected defaults to len(records).
func GenerateSummary(records []storage.RankRecord) Summary {
	s := Summary{
		Expected: len(records),
		ByStatus: make(map[serp.Status]int),
	}
	if len(records) == 0 {
		return s
	}

	s.BatchID = records[0].BatchID
	s.Domain = records[0].Domain
	s.StartTime = records[0].CreatedAt
	s.EndTime = records[0].CreatedAt

	rankSum := 0
	for _, r := range records {
		s.Total++
		s.ByStatus[r.Status]++

		switch {
		case r.Status == serp.StatusMatched:
			s.Matched++
			rankSum += r.Rank
			if s.BestRank == 0 || r.Rank < s.BestRank {
				s.BestRank = r.Rank
			}
			if r.Rank <= 3 {
				s.Top3++
			}
			if r.Rank <= 10 {
				s.Top10++
			}
		case r.Status == serp.StatusNotFound:
			s.NotFound++
		case r.Status.IsError():
			s.Errors++
			if r.Status == serp.StatusAuthError {
				s.AuthWarning = true
			}
		}

		// a record's lookup started Duration before it was stored
		if started := r.CreatedAt.Add(-r.Duration); started.Before(s.StartTime) {
			s.StartTime = started
		}
		if r.CreatedAt.After(s.EndTime) {
			s.EndTime = r.CreatedAt
		}
	}

	if s.Matched > 0 {
		s.AverageRank = float64(rankSum) / float64(s.Matched)
	}
	s.Duration = s.EndTime.Sub(s.StartTime)
	return s
}

// AuthAdvisory returns guidance to print when lookups were rejected for bad
// credentials, or "" when none were.
func AuthAdvisory(s Summary) string {
	if !s.AuthWarning {
		return ""
	}
	return fmt.Sprintf("%d lookup(s) were rejected by the search API (HTTP 401/403). "+
		"Check that the API key is valid and that the account has credits left.",
		s.ByStatus[serp.StatusAuthError])
}

// jsonReport is the document written by WriteJSON.
type jsonReport struct {
	Summary  Summary      `json:"summary"`
	Advisory string       `json:"advisory,omitempty"`
	Results  []jsonRecord `json:"results"`
}

type jsonRecord struct {
	storage.RankRecord
	Ranking string `json:"ranking"`
}

// WriteJSON writes the summary and every record as one JSON document.
func WriteJSON(w io.Writer, summary Summary, records []storage.RankRecord) error {
	doc := jsonReport{
		Summary:  summary,
		Advisory: AuthAdvisory(summary),
		Results:  make([]jsonRecord, len(records)),
	}
	for i, r := range records {
		doc.Results[i] = jsonRecord{RankRecord: r, Ranking: r.Ranking()}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}

const textTmpl = `Rankr Summary
-------------
Domain:        {{.Domain}}
Batch:         {{.BatchID}}
Time:          {{.StartTime.Format "2006-01-02 15:04:05"}} - {{.EndTime.Format "2006-01-02 15:04:05"}}
Duration:      {{.Duration}}
Lookups:       {{.Total}}{{if .Partial}} of {{.Expected}} (cancelled){{end}}
Matched:       {{.Matched}}{{if .Matched}} (best {{.BestRank}}, average {{printf "%.1f" .AverageRank}}){{end}}
Top 3:         {{.Top3}}
Top 10:        {{.Top10}}
Not in Top 100: {{.NotFound}}
Errors:        {{.Errors}}
{{- range $status, $count := .ByStatus}}{{if $status.IsError}}
  {{$status}}: {{$count}}{{end}}
{{- end}}

`

var textTemplate = template.Must(template.New("textReport").Parse(textTmpl))

// WriteText writes the summary followed by an aligned results table.
func WriteText(w io.Writer, summary Summary, records []storage.RankRecord) error {
	if err := textTemplate.Execute(w, summary); err != nil {
		return fmt.Errorf("report: %w", err)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEYWORD\tLOCATION\tRANKING\tURL")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Keyword, r.Location, r.Ranking(), r.URL)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("report: %w", err)
	}

	if advisory := AuthAdvisory(summary); advisory != "" {
		if _, err := fmt.Fprintf(w, "\nWARNING: %s\n", advisory); err != nil {
			return fmt.Errorf("report: %w", err)
		}
	}
	return nil
}
