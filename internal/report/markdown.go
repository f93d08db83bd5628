package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/FranksOps/rankr/internal/serp"
	"github.com/FranksOps/rankr/internal/storage"
)

// WriteMarkdown writes a GitHub flavored Markdown report.
func WriteMarkdown(w io.Writer, summary Summary, records []storage.RankRecord) error {
	md := markdown.NewMarkdown(w)

	md.H1("Rankr Report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Domain", "`" + summary.Domain + "`"},
			{"Batch", summary.BatchID},
			{"Started", summary.StartTime.Format("2006-01-02 15:04:05 MST")},
			{"Duration", summary.Duration.String()},
			{"Lookups", lookupsText(summary)},
		},
	})
	md.PlainText("")

	writeMarkdownSummary(md, summary)
	writeMarkdownResults(md, records)

	if err := md.Build(); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}

func lookupsText(s Summary) string {
	if s.Partial {
		return fmt.Sprintf("%d of %d (cancelled)", s.Total, s.Expected)
	}
	return strconv.Itoa(s.Total)
}

func writeMarkdownSummary(md *markdown.Markdown, s Summary) {
	md.H2("Summary")
	md.PlainText("")

	best, avg := "-", "-"
	if s.Matched > 0 {
		best = strconv.Itoa(s.BestRank)
		avg = strconv.FormatFloat(s.AverageRank, 'f', 1, 64)
	}
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Value"},
		Rows: [][]string{
			{"Matched", strconv.Itoa(s.Matched)},
			{"Top 3", strconv.Itoa(s.Top3)},
			{"Top 10", strconv.Itoa(s.Top10)},
			{"Best rank", best},
			{"Average rank", avg},
			{"Not in Top 100", strconv.Itoa(s.NotFound)},
			{"Errors", strconv.Itoa(s.Errors)},
		},
	})
	md.PlainText("")

	if s.Total > 0 {
		chart := piechart.NewPieChart(
			io.Discard,
			piechart.WithTitle("Lookup Outcomes"),
			piechart.WithShowData(true),
		)
		for _, status := range serp.Statuses() {
			if n := s.ByStatus[status]; n > 0 {
				chart.LabelAndIntValue(string(status), uint64(n))
			}
		}
		md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
		md.PlainText("")
	}

	switch {
	case s.AuthWarning:
		md.Cautionf("%s", AuthAdvisory(s))
	case s.Errors > 0:
		md.Warningf("%d lookup(s) failed. Their Ranking column shows the reason.", s.Errors)
	case s.Matched == 0 && s.Total > 0:
		md.Note("The domain was not found in the top 100 for any lookup.")
	case s.Top10 > 0:
		md.Tip(fmt.Sprintf("The domain ranks on the first page for %d lookup(s).", s.Top10))
	}
	md.PlainText("")
}

func writeMarkdownResults(md *markdown.Markdown, records []storage.RankRecord) {
	md.H2("Results")
	md.PlainText("")

	if len(records) == 0 {
		md.PlainText("No results.")
		return
	}

	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = []string{r.Keyword, r.Location, r.Ranking(), r.URL}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Keyword", "Location", "Ranking", "URL"},
		Rows:   rows,
	})
}
