/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package memtable

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/google/btree"
	"github.com/suparena/entitymapper/consistency"
	"github.com/suparena/entitymapper/datastore"
	"github.com/suparena/entitymapper/internal/logging"
)

const (
	DefaultTreeDegree     = 8
	DefaultBloomEstimate  = 1 << 12
	DefaultBloomFalseRate = 0.01
)

// column is one stored value with its write time and expiry.
type column struct {
	data    []byte
	ts      time.Time
	expires time.Time
}

func (c column) live(now time.Time) bool {
	return c.expires.IsZero() || now.Before(c.expires)
}

type row struct {
	columns map[string]column
	// deletedAt is the timestamp of the latest row deletion. Writes older
	// than it are stale.
	deletedAt time.Time
}

type entityTable struct {
	rows   map[string]*row
	filter *bloom.BloomFilter
}

type cell struct {
	key string
	column
}

func cellLess(a, b *cell) bool {
	return a.key < b.key
}

type wideRow struct {
	cells     *btree.BTreeG[*cell]
	deletedAt time.Time
}

type wideTable struct {
	rows   map[string]*wideRow
	filter *bloom.BloomFilter
}

// Stats counts what the store observed since it was created.
type Stats struct {
	// Reads and Writes count operations by the consistency level they ran under.
	Reads             map[consistency.Level]int64
	Writes            map[consistency.Level]int64
	BloomSkips        int64
	StaleWrites       int64
	ConditionFailures int64
	Expired           int64
}

// Store is an embedded datastore.Backend. Entity rows and wide-row cells are
// kept as snappy-compressed JSON; wide rows are ordered by column. Writes
// resolve by timestamp (last write wins), honor TTLs and evaluate guard
// conditions before anything in the batch is applied.
type Store struct {
	mu       sync.RWMutex
	entities map[string]*entityTable
	wide     map[string]*wideTable
	counters map[string]map[string]int64
	conds    *conditions

	statsMu sync.Mutex
	stats   Stats

	now        func() time.Time
	logger     *slog.Logger
	degree     int
	bloomN     uint
	bloomFalse float64
}

var _ datastore.Backend = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithClock replaces time.Now for write timestamps and expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithBloomEstimates sizes the per-table bloom filters.
func WithBloomEstimates(n uint, falsePositiveRate float64) Option {
	return func(s *Store) {
		s.bloomN = n
		s.bloomFalse = falsePositiveRate
	}
}

// WithTreeDegree sets the degree of the wide-row btrees.
func WithTreeDegree(degree int) Option {
	return func(s *Store) {
		if degree > 1 {
			s.degree = degree
		}
	}
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		entities:   make(map[string]*entityTable),
		wide:       make(map[string]*wideTable),
		counters:   make(map[string]map[string]int64),
		conds:      newConditions(),
		now:        time.Now,
		degree:     DefaultTreeDegree,
		bloomN:     DefaultBloomEstimate,
		bloomFalse: DefaultBloomFalseRate,
		stats: Stats{
			Reads:  make(map[consistency.Level]int64),
			Writes: make(map[consistency.Level]int64),
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.logger = logging.OrDiscard(s.logger).With("backend", "memtable")
	return s
}

func (s *Store) FindEntityHandle(table string) (datastore.EntityHandle, error) {
	return &entityHandle{store: s, table: table}, nil
}

func (s *Store) FindWideRowHandle(table string) (datastore.WideRowHandle, error) {
	return &wideRowHandle{store: s, table: table}, nil
}

func (s *Store) CounterHandle() (datastore.CounterHandle, error) {
	return counterHandle{store: s}, nil
}

// Stats returns a copy of the store statistics.
func (s *Store) Stats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	out := s.stats
	out.Reads = make(map[consistency.Level]int64, len(s.stats.Reads))
	for k, v := range s.stats.Reads {
		out.Reads[k] = v
	}
	out.Writes = make(map[consistency.Level]int64, len(s.stats.Writes))
	for k, v := range s.stats.Writes {
		out.Writes[k] = v
	}
	return out
}

func (s *Store) count(f func(*Stats)) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	f(&s.stats)
}

func (s *Store) observeRead(ctx context.Context) {
	level, _ := consistency.ReadLevel(ctx)
	s.count(func(st *Stats) { st.Reads[level]++ })
}

func (s *Store) newFilter() *bloom.BloomFilter {
	return bloom.NewWithEstimates(s.bloomN, s.bloomFalse)
}

func (s *Store) entityTable(name string) *entityTable {
	t, ok := s.entities[name]
	if !ok {
		t = &entityTable{rows: make(map[string]*row), filter: s.newFilter()}
		s.entities[name] = t
	}
	return t
}

func (s *Store) wideTable(name string) *wideTable {
	t, ok := s.wide[name]
	if !ok {
		t = &wideTable{rows: make(map[string]*wideRow), filter: s.newFilter()}
		s.wide[name] = t
	}
	return t
}

// Purge drops expired columns and cells, and rows left empty, and returns
// how many values it dropped.
func (s *Store) Purge() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	purged := 0
	for _, t := range s.entities {
		for key, r := range t.rows {
			for col, c := range r.columns {
				if !c.live(now) {
					delete(r.columns, col)
					purged++
				}
			}
			if len(r.columns) == 0 && r.deletedAt.IsZero() {
				delete(t.rows, key)
			}
		}
	}
	for _, t := range s.wide {
		for key, r := range t.rows {
			var dead []*cell
			r.cells.Ascend(func(c *cell) bool {
				if !c.live(now) {
					dead = append(dead, c)
				}
				return true
			})
			for _, c := range dead {
				r.cells.Delete(c)
			}
			purged += len(dead)
			if r.cells.Len() == 0 && r.deletedAt.IsZero() {
				delete(t.rows, key)
			}
		}
	}
	s.count(func(st *Stats) { st.Expired += int64(purged) })
	return purged
}
