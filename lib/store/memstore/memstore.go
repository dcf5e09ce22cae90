package memstore

import (
	"iter"
	"strings"

	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/ValentinKolb/sKV/lib/util"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/zhangyunhao116/skipmap"
)

type table = skipmap.FuncMap[string, store.Value]

// memStore keeps every table in an ordered lock-free skipmap.
// Reads never block, writes serialize only per (table, key) stripe.
type memStore struct {
	tables *xsync.MapOf[string, *table]
	locks  *util.KeyLocks
}

// New creates an empty in-memory store
func New() store.IStore {
	return &memStore{
		tables: xsync.NewMapOf[string, *table](),
		locks:  util.NewKeyLocks(util.DefaultStripes),
	}
}

func newTable() *table {
	return skipmap.NewFunc[string, store.Value](func(a, b string) bool {
		return strings.Compare(a, b) < 0
	})
}

// getOrCreateTable returns the table, creating it if needed
func (s *memStore) getOrCreateTable(name string) *table {
	t, _ := s.tables.LoadOrCompute(name, newTable)
	return t
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store.IStore)
// --------------------------------------------------------------------------

func (s *memStore) Get(table, key string) (store.Value, bool, error) {
	t, ok := s.tables.Load(table)
	if !ok {
		return store.Value{}, false, nil
	}
	v, ok := t.Load(key)
	return v, ok, nil
}

func (s *memStore) Set(table, key string, value store.Value) (store.Value, bool, error) {
	t := s.getOrCreateTable(table)

	unlock := s.locks.Lock(table, key)
	defer unlock()

	prev, existed := t.Load(key)
	t.Store(key, value)
	return prev, existed, nil
}

func (s *memStore) Contains(table, key string) (bool, error) {
	t, ok := s.tables.Load(table)
	if !ok {
		return false, nil
	}
	_, ok = t.Load(key)
	return ok, nil
}

func (s *memStore) Delete(table, key string) (store.Value, bool, error) {
	t, ok := s.tables.Load(table)
	if !ok {
		return store.Value{}, false, nil
	}

	unlock := s.locks.Lock(table, key)
	defer unlock()

	prev, existed := t.LoadAndDelete(key)
	return prev, existed, nil
}

func (s *memStore) GetAll(table string) ([]store.Kvpair, error) {
	t, ok := s.tables.Load(table)
	if !ok {
		return []store.Kvpair{}, nil
	}

	pairs := make([]store.Kvpair, 0, t.Len())
	t.Range(func(key string, value store.Value) bool {
		pairs = append(pairs, store.NewKvpair(key, value))
		return true
	})
	return pairs, nil
}

func (s *memStore) Iterate(table string) iter.Seq2[store.Kvpair, error] {
	return func(yield func(store.Kvpair, error) bool) {
		// snapshot first so writes during iteration stay invisible
		pairs, _ := s.GetAll(table)
		for _, p := range pairs {
			if !yield(p, nil) {
				return
			}
		}
	}
}

func (s *memStore) Close() error {
	s.tables.Clear()
	return nil
}
