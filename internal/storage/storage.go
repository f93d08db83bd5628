package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/FranksOps/rankr/internal/serp"
)

// NoLocation is the location recorded for lookups without location targeting.
const NoLocation = "N/A"

// RankRecord is the result of one (keyword, location) lookup.
type RankRecord struct {
	ID       string      `json:"id"`
	BatchID  string      `json:"batch_id"`
	Keyword  string      `json:"keyword"`
	Location string      `json:"location"`
	Domain   string      `json:"domain"`
	Status   serp.Status `json:"status"`
	// Rank is the 1-based position when Status is matched, otherwise 0.
	Rank      int           `json:"rank,omitempty"`
	URL       string        `json:"url,omitempty"`
	HTTPCode  int           `json:"http_code,omitempty"`
	Error     string        `json:"error,omitempty"`
	Attempts  int           `json:"attempts"`
	Duration  time.Duration `json:"duration_ns"`
	CreatedAt time.Time     `json:"created_at"`
}

// NewRecord builds the record for req resolved as out.
func NewRecord(batchID string, req serp.Request, out serp.Outcome, now time.Time) RankRecord {
	loc := req.Location
	if loc == "" {
		loc = NoLocation
	}
	return RankRecord{
		ID:        uuid.NewString(),
		BatchID:   batchID,
		Keyword:   req.Keyword,
		Location:  loc,
		Domain:    req.Domain,
		Status:    out.Status,
		Rank:      out.Rank,
		URL:       out.URL,
		HTTPCode:  out.Code,
		Error:     out.Message,
		Attempts:  out.Attempts,
		Duration:  out.Duration,
		CreatedAt: now,
	}
}

// Ranking returns the rank number or the status text shown in reports.
func (r RankRecord) Ranking() string {
	return serp.RankingText(r.Status, r.Rank, r.HTTPCode, r.Error)
}

// Filter narrows a Query. Zero fields match everything.
type Filter struct {
	BatchID string
	Keyword string
	Status  serp.Status
	Since   *time.Time
	Limit   int
	Offset  int
}

// Match reports whether r passes every set field of f except paging.
func (f Filter) Match(r *RankRecord) bool {
	if f.BatchID != "" && r.BatchID != f.BatchID {
		return false
	}
	if f.Keyword != "" && r.Keyword != f.Keyword {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.Since != nil && r.CreatedAt.Before(*f.Since) {
		return false
	}
	return true
}

// Page applies Offset and Limit to an already ordered slice.
func (f Filter) Page(records []*RankRecord) []*RankRecord {
	if f.Offset > 0 {
		if f.Offset >= len(records) {
			return []*RankRecord{}
		}
		records = records[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(records) {
		records = records[:f.Limit]
	}
	return records
}

// Sink receives records as a batch completes.
type Sink interface {
	Save(ctx context.Context, record *RankRecord) error
	Close() error
}

// Backend is a Sink that can also read its records back, newest first.
type Backend interface {
	Sink
	Query(ctx context.Context, filter Filter) ([]*RankRecord, error)
}

// MultiSink writes every record to each of its sinks.
type MultiSink []Sink

// Save writes record to all sinks and joins their errors.
func (m MultiSink) Save(ctx context.Context, record *RankRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.Save(ctx, record); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes all sinks and joins their errors.
func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
