package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/NSAlexeyMK/noblindezone/internal/event"
	"github.com/NSAlexeyMK/noblindezone/internal/normalize"
)

// The two source flavors the scanner consumes. Registry-style logs are read
// in reverse-chronological batches through an explicit open/close handle;
// the process-creation log is queried once for a window and iterated until
// exhausted.

// BatchReader is an open handle on a registry-style log.
type BatchReader interface {
	// ReadBatch returns the next batch of records, newest logs first.
	// It returns (nil, io.EOF) when the source is exhausted.
	ReadBatch() ([]event.Raw, error)
	Close() error
}

// Iterator walks the result of a window query.
type Iterator interface {
	// Next returns (zero, io.EOF) when the result set is exhausted.
	Next() (event.Raw, error)
	Close() error
}

// Catalog resolves source names to handles. The shipped implementation is
// file-backed; tests substitute fakes.
type Catalog interface {
	Open(name string) (BatchReader, error)
	Query(name string, since time.Time) (Iterator, error)
}

// rawRecord is the on-disk shape of one exported event record.
type rawRecord struct {
	Code   int               `json:"code"`
	Time   string            `json:"time"`
	Fields []string          `json:"fields,omitempty"`
	Data   map[string]string `json:"data,omitempty"`
}

// FileCatalog reads exported event logs: one JSON object per line, oldest
// first, the way log shippers write them. Batches are served from the tail
// backwards so the newest records come out first.
type FileCatalog struct {
	// Paths maps source names (system, security, sysmon) to files.
	Paths map[string]string

	// BatchSize is the number of records per batch; defaults to 64.
	BatchSize int
}

func (c *FileCatalog) path(name string) (string, error) {
	p, ok := c.Paths[name]
	if !ok || p == "" {
		return "", fmt.Errorf("source %q is not configured", name)
	}
	return p, nil
}

func (c *FileCatalog) Open(name string) (BatchReader, error) {
	p, err := c.path(name)
	if err != nil {
		return nil, err
	}
	records, err := loadRecords(p)
	if err != nil {
		return nil, err
	}
	size := c.BatchSize
	if size <= 0 {
		size = 64
	}
	return &fileBatchReader{records: records, batchSize: size, pos: len(records)}, nil
}

func (c *FileCatalog) Query(name string, since time.Time) (Iterator, error) {
	p, err := c.path(name)
	if err != nil {
		return nil, err
	}
	records, err := loadRecords(p)
	if err != nil {
		return nil, err
	}
	// Newest first, bounded by the window start; mirrors a reverse-direction
	// time-filtered query against the live log.
	var matched []event.Raw
	for i := len(records) - 1; i >= 0; i-- {
		if !records[i].Time.Before(since) {
			matched = append(matched, records[i])
		}
	}
	return &sliceIterator{records: matched}, nil
}

func loadRecords(path string) ([]event.Raw, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []event.Raw
	dec := json.NewDecoder(f)
	for {
		var rec rawRecord
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			// A torn trailing record is expected while the exporter is
			// writing; keep what parsed.
			break
		}
		ts, err := normalize.ParseTimeFlexible(rec.Time)
		if err != nil {
			continue
		}
		out = append(out, event.Raw{
			Code:    rec.Code,
			Time:    ts.UTC(),
			Fields:  rec.Fields,
			Payload: rec.Data,
		})
	}
	return out, nil
}

type fileBatchReader struct {
	records   []event.Raw
	batchSize int
	pos       int // next read ends here; walks toward 0
}

func (r *fileBatchReader) ReadBatch() ([]event.Raw, error) {
	if r.pos <= 0 {
		return nil, io.EOF
	}
	start := r.pos - r.batchSize
	if start < 0 {
		start = 0
	}
	batch := make([]event.Raw, 0, r.pos-start)
	for i := r.pos - 1; i >= start; i-- {
		batch = append(batch, r.records[i])
	}
	r.pos = start
	return batch, nil
}

func (r *fileBatchReader) Close() error {
	r.records = nil
	r.pos = 0
	return nil
}

type sliceIterator struct {
	records []event.Raw
	pos     int
}

func (it *sliceIterator) Next() (event.Raw, error) {
	if it.pos >= len(it.records) {
		return event.Raw{}, io.EOF
	}
	rec := it.records[it.pos]
	it.pos++
	return rec, nil
}

func (it *sliceIterator) Close() error {
	it.records = nil
	return nil
}
