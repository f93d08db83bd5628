package jsonbackend

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"

	"github.com/FranksOps/rankr/internal/storage"
)

var _ storage.Backend = (*jsonBackend)(nil)

// jsonBackend appends one JSON document per line. Writes are serialised so
// concurrent lookups never interleave partial lines.
type jsonBackend struct {
	mu   sync.Mutex
	file *os.File
}

// New opens filePath for appending, creating it when missing.
func New(filePath string) (storage.Backend, error) {
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("jsonbackend: %w", err)
	}
	return &jsonBackend{file: f}, nil
}

func (b *jsonBackend) Save(ctx context.Context, record *storage.RankRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("jsonbackend: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("jsonbackend: %w", err)
	}
	return nil
}

// Query decodes the whole file, filters in memory and returns matches newest
// first. A record cut short by an interrupted write at the end of the file is
// ignored.
func (b *jsonBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.RankRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("jsonbackend: %w", err)
	}
	defer func() {
		_, _ = b.file.Seek(0, io.SeekEnd)
	}()

	var matched []*storage.RankRecord
	dec := json.NewDecoder(bufio.NewReader(b.file))
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var r storage.RankRecord
		err := dec.Decode(&r)
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("jsonbackend: record %d: %w", len(matched), err)
		}
		if filter.Match(&r) {
			matched = append(matched, &r)
		}
	}

	slices.Reverse(matched)
	return filter.Page(matched), nil
}

func (b *jsonBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}
