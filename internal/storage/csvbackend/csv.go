package csvbackend

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/FranksOps/rankr/internal/storage"
)

// ensure csvSink implements storage.Sink
var _ storage.Sink = (*csvSink)(nil)

// Header is the column order of the export.
var Header = []string{"Keyword", "Location", "Ranking", "URL"}

type csvSink struct {
	mu   sync.Mutex
	file *os.File
	w    *csv.Writer
}

// New creates a CSV export at filePath. Existing files are appended to and
// the header is written only when the file is empty.
func New(filePath string) (storage.Sink, error) {
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("csvbackend: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("csvbackend: %w", err)
	}

	s := &csvSink{file: f, w: csv.NewWriter(f)}
	if info.Size() == 0 {
		if err := s.write(Header); err != nil {
			f.Close()
			return nil, err
		}
	}
	return s, nil
}

// Row returns the export columns for r.
func Row(r *storage.RankRecord) []string {
	return []string{r.Keyword, r.Location, r.Ranking(), r.URL}
}

// Write renders records as a complete CSV document, header included.
func Write(w io.Writer, records []storage.RankRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("csvbackend: %w", err)
	}
	for i := range records {
		if err := cw.Write(Row(&records[i])); err != nil {
			return fmt.Errorf("csvbackend: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("csvbackend: %w", err)
	}
	return nil
}

func (s *csvSink) Save(ctx context.Context, record *storage.RankRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(Row(record))
}

func (s *csvSink) write(row []string) error {
	if err := s.w.Write(row); err != nil {
		return fmt.Errorf("csvbackend: %w", err)
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("csvbackend: %w", err)
	}
	return nil
}

func (s *csvSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
