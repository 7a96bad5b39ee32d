// Package writer implements the durable artist output of spec §6/§4.11: a
// CSV file with header id,name,popularity,genres, buffered in memory and
// flushed in batches of up to 100 rows.
package writer

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

var csvHeader = []string{"id", "name", "popularity", "genres"}

const bufferSize = 100

// Record is one artist row (spec §3 "Artist record").
type Record struct {
	ID         string
	Name       string
	Popularity int
	Genres     []string
}

// Writer buffers rows under a single mutex and appends them to the CSV file
// once the buffer reaches bufferSize, or on Close. Grounded on the teacher's
// createCSV/fetchAndSave pattern (open in append mode, write the header only
// for a new/empty file, via encoding/csv) generalized to a concurrent,
// batched writer.
type Writer struct {
	mu   sync.Mutex
	path string
	buf  []Record
	file *os.File
}

// New opens path for appending, writing the header if the file is new, empty,
// or fresh is true (spec §6 "fresh start mode rewrites the header").
func New(path string, fresh bool) (*Writer, error) {
	flags := os.O_CREATE | os.O_RDWR
	if fresh {
		flags |= os.O_TRUNC
	}

	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("open csv %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat csv %s: %w", path, err)
	}

	if info.Size() == 0 {
		cw := csv.NewWriter(f)
		if err := cw.Write(csvHeader); err != nil {
			f.Close()
			return nil, fmt.Errorf("write csv header %s: %w", path, err)
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("flush csv header %s: %w", path, err)
		}
	}

	if _, err := f.Seek(0, os.SEEK_END); err != nil {
		f.Close()
		return nil, fmt.Errorf("seek csv %s: %w", path, err)
	}

	return &Writer{path: path, file: f}, nil
}

// Add buffers rec and flushes if the buffer has reached capacity.
func (w *Writer) Add(rec Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, rec)
	if len(w.buf) >= bufferSize {
		return w.flushLocked()
	}
	return nil
}

// Flush forces a write of any buffered rows.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

func (w *Writer) flushLocked() error {
	if len(w.buf) == 0 {
		return nil
	}

	cw := csv.NewWriter(w.file)
	for _, r := range w.buf {
		rec := []string{r.ID, r.Name, strconv.Itoa(r.Popularity), strings.Join(r.Genres, ";")}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("flush csv %s: %w", w.path, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv %s: %w", w.path, err)
	}

	w.buf = w.buf[:0]
	return nil
}

// Close flushes any remainder and closes the underlying file.
func (w *Writer) Close() error {
	if err := w.Flush(); err != nil {
		return err
	}
	return w.file.Close()
}
