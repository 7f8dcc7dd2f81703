package models

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Entry is one Batch cell: the handle and, in auto period mode, the annual
// Job still to try if the handle fails.
type Entry struct {
	Handle   *Handle
	Fallback *Job
}

// Batch maps series -> key -> Entry. Series keep insertion order and keys
// keep the caller's order. Owned by one caller between fan-out and collection.
type Batch struct {
	series []string
	keys   map[string][]string
	cells  map[string]map[string]Entry

	mu        sync.Mutex
	collected bool
	fallbacks int
}

func NewBatch() *Batch {
	return &Batch{
		keys:  make(map[string][]string),
		cells: make(map[string]map[string]Entry),
	}
}

func (b *Batch) Add(series, key string, e Entry) error {
	if e.Handle == nil {
		return fmt.Errorf("%w: nil handle for %s/%s", ErrMalformedBatch, series, key)
	}
	row, ok := b.cells[series]
	if !ok {
		row = make(map[string]Entry)
		b.cells[series] = row
		b.series = append(b.series, series)
	}
	if _, dup := row[key]; dup {
		return fmt.Errorf("%w: duplicate key %s/%s", ErrMalformedBatch, series, key)
	}
	row[key] = e
	b.keys[series] = append(b.keys[series], key)
	return nil
}

func (b *Batch) Series() []string { return append([]string(nil), b.series...) }

func (b *Batch) Keys(series string) []string { return append([]string(nil), b.keys[series]...) }

func (b *Batch) Entry(series, key string) (Entry, bool) {
	e, ok := b.cells[series][key]
	return e, ok
}

// Len is the number of handles in the batch.
func (b *Batch) Len() int {
	n := 0
	for _, ks := range b.keys {
		n += len(ks)
	}
	return n
}

// Release gives up on every handle still pending in the batch.
func (b *Batch) Release(ctx context.Context) error {
	var errs []error
	for _, name := range b.series {
		for _, key := range b.keys[name] {
			if err := b.cells[name][key].Handle.Release(ctx); err != nil {
				errs = append(errs, fmt.Errorf("release %s/%s: %w", name, key, err))
			}
		}
	}
	return errors.Join(errs...)
}

// NoteFallback counts an annual fallback issued during fan-out.
func (b *Batch) NoteFallback() {
	b.mu.Lock()
	b.fallbacks++
	b.mu.Unlock()
}

func (b *Batch) Fallbacks() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fallbacks
}

// MarkCollected flips the batch into the collected state once.
func (b *Batch) MarkCollected() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.collected {
		return ErrBatchCollected
	}
	b.collected = true
	return nil
}

// Summary is what a collection reports once every handle is consumed.
type Summary struct {
	ProcessedSymbols int                 `json:"processed_symbols"`
	ProcessedSeries  int                 `json:"processed_series"`
	RemovedSymbols   int                 `json:"removed_symbols"`
	RemainingSymbols int                 `json:"remaining_symbols"`
	Removed          map[string][]string `json:"removed,omitempty"` // symbol -> mandatory series that failed
	Failures         map[FailureKind]int `json:"failures,omitempty"`
	Fallbacks        int                 `json:"fallbacks"`
}

// CleanedDataset is a collected Batch after pruning and merging.
// Series holds symbol series only; a nil *Record marks a missing
// non-mandatory cell. Composite series are merged into Composite.
type CleanedDataset struct {
	SeriesOrder []string
	Symbols     []string
	Series      map[string]map[string]*Record
	Composite   map[string]*Frame
	Summary     Summary
}

// Get returns the record for (series, symbol), nil if missing.
func (d *CleanedDataset) Get(series, symbol string) *Record {
	return d.Series[series][symbol]
}
