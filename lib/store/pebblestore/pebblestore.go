package pebblestore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"iter"

	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/ValentinKolb/sKV/lib/util"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("store")

// Options configures the pebble backed store
type Options struct {
	// Path is the data directory. Ignored when InMemory is set.
	Path string
	// InMemory keeps all files in a memory filesystem (tests)
	InMemory bool
	// Sync makes every write wait for the WAL to reach stable storage
	Sync bool
}

type pebbleStore struct {
	db        *pebble.DB
	locks     *util.KeyLocks
	writeOpts *pebble.WriteOptions
}

// Open opens (or creates) a pebble database and returns it as a store.IStore
func Open(opts Options) (store.IStore, error) {
	pebbleOpts := &pebble.Options{}
	path := opts.Path
	if opts.InMemory {
		pebbleOpts.FS = vfs.NewMem()
		path = ""
	} else if path == "" {
		return nil, fmt.Errorf("pebble store needs a data directory")
	}

	db, err := pebble.Open(path, pebbleOpts)
	if err != nil {
		return nil, store.NewStorageError("open", "", "", err)
	}

	writeOpts := pebble.NoSync
	if opts.Sync {
		writeOpts = pebble.Sync
	}

	Logger.Infof("pebble store opened (path=%q, in-memory=%v, sync=%v)", opts.Path, opts.InMemory, opts.Sync)
	return &pebbleStore{
		db:        db,
		locks:     util.NewKeyLocks(util.DefaultStripes),
		writeOpts: writeOpts,
	}, nil
}

// --------------------------------------------------------------------------
// Key layout
// --------------------------------------------------------------------------

// tablePrefix is uvarint(len(table)) followed by the table name, so no table's
// prefix can be a prefix of another table's keys
func tablePrefix(table string) []byte {
	b := binary.AppendUvarint(make([]byte, 0, binary.MaxVarintLen64+len(table)), uint64(len(table)))
	return append(b, table...)
}

func dbKey(table, key string) []byte {
	return append(tablePrefix(table), key...)
}

// upperBound returns the smallest key greater than every key starting with prefix
func upperBound(prefix []byte) []byte {
	end := append([]byte{}, prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store.IStore)
// --------------------------------------------------------------------------

func (s *pebbleStore) get(op, table, key string) (store.Value, bool, error) {
	raw, closer, err := s.db.Get(dbKey(table, key))
	if errors.Is(err, pebble.ErrNotFound) {
		return store.Value{}, false, nil
	}
	if err != nil {
		return store.Value{}, false, store.NewStorageError(op, table, key, err)
	}
	defer closer.Close()

	v, err := store.ConsumeValue(raw)
	if err != nil {
		return store.Value{}, false, store.NewStorageError(op, table, key, fmt.Errorf("corrupt value: %w", err))
	}
	return v, true, nil
}

func (s *pebbleStore) Get(table, key string) (store.Value, bool, error) {
	return s.get("get", table, key)
}

func (s *pebbleStore) Set(table, key string, value store.Value) (store.Value, bool, error) {
	unlock := s.locks.Lock(table, key)
	defer unlock()

	prev, existed, err := s.get("set", table, key)
	if err != nil {
		return store.Value{}, false, err
	}
	if err := s.db.Set(dbKey(table, key), store.AppendValue(nil, value), s.writeOpts); err != nil {
		return store.Value{}, false, store.NewStorageError("set", table, key, err)
	}
	return prev, existed, nil
}

func (s *pebbleStore) Contains(table, key string) (bool, error) {
	_, ok, err := s.get("contains", table, key)
	return ok, err
}

func (s *pebbleStore) Delete(table, key string) (store.Value, bool, error) {
	unlock := s.locks.Lock(table, key)
	defer unlock()

	prev, existed, err := s.get("delete", table, key)
	if err != nil || !existed {
		return store.Value{}, false, err
	}
	if err := s.db.Delete(dbKey(table, key), s.writeOpts); err != nil {
		return store.Value{}, false, store.NewStorageError("delete", table, key, err)
	}
	return prev, true, nil
}

func (s *pebbleStore) GetAll(table string) ([]store.Kvpair, error) {
	pairs := []store.Kvpair{}
	for pair, err := range s.Iterate(table) {
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pair)
	}
	return pairs, nil
}

// Iterate scans the table prefix. Pebble iterators read from a consistent
// point-in-time view, which gives the snapshot semantics.
func (s *pebbleStore) Iterate(table string) iter.Seq2[store.Kvpair, error] {
	return func(yield func(store.Kvpair, error) bool) {
		prefix := tablePrefix(table)
		it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upperBound(prefix)})
		if err != nil {
			yield(store.Kvpair{}, store.NewStorageError("iterate", table, "", err))
			return
		}
		defer func() { _ = it.Close() }()

		for ok := it.First(); ok; ok = it.Next() {
			key := string(it.Key()[len(prefix):])
			v, err := store.ConsumeValue(it.Value())
			if err != nil {
				yield(store.Kvpair{}, store.NewStorageError("iterate", table, key, fmt.Errorf("corrupt value: %w", err)))
				return
			}
			if !yield(store.NewKvpair(key, v), nil) {
				return
			}
		}
		if err := it.Error(); err != nil {
			yield(store.Kvpair{}, store.NewStorageError("iterate", table, "", err))
		}
	}
}

func (s *pebbleStore) Close() error {
	if err := s.db.Close(); err != nil {
		return store.NewStorageError("close", "", "", err)
	}
	return nil
}
