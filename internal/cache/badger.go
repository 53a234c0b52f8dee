package cache

import (
	"encoding/json"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/mdsolve/internal/core"
)

func denseFromRecord(b blockRecord) *mat.Dense {
	return mat.NewDense(b.Rows, b.Cols, b.Data)
}

var entryPrefix = []byte("entry/")

// BadgerStore persists cache entries in an embedded badger database,
// one JSON record per entry.
type BadgerStore struct {
	db *badger.DB
}

// BadgerConfig configures the embedded database.
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string
	// InMemory disables disk persistence; the store lives only as long
	// as the process. Useful for tests.
	InMemory bool
}

// OpenBadger opens (or creates) the store.
func OpenBadger(cfg BadgerConfig) (*BadgerStore, error) {
	opts := badger.DefaultOptions(cfg.Path).
		WithInMemory(cfg.InMemory).
		WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open cache store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Close releases the underlying database.
func (s *BadgerStore) Close() error { return s.db.Close() }

// entryRecord is the serialized form of an Entry. Jacobian blocks are stored
// row-major with explicit dimensions so the dense shape survives the trip.
type entryRecord struct {
	Inputs  map[string][]float64              `json:"inputs"`
	Outputs map[string][]float64              `json:"outputs,omitempty"`
	Jac     map[string]map[string]blockRecord `json:"jac,omitempty"`
}

type blockRecord struct {
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
}

func encodeEntry(e *Entry) ([]byte, error) {
	rec := entryRecord{Inputs: e.Inputs}
	if e.Outputs != nil {
		rec.Outputs = e.Outputs
	}
	if e.Jac != nil {
		rec.Jac = make(map[string]map[string]blockRecord, len(e.Jac))
		for out, row := range e.Jac {
			rec.Jac[out] = make(map[string]blockRecord, len(row))
			for in, block := range row {
				r, c := block.Dims()
				data := make([]float64, 0, r*c)
				for i := 0; i < r; i++ {
					data = append(data, block.RawRowView(i)...)
				}
				rec.Jac[out][in] = blockRecord{Rows: r, Cols: c, Data: data}
			}
		}
	}
	return json.Marshal(rec)
}

func decodeEntry(data []byte) (*Entry, error) {
	var rec entryRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	e := &Entry{Inputs: core.Values(rec.Inputs)}
	if rec.Outputs != nil {
		e.Outputs = core.Values(rec.Outputs)
	}
	if rec.Jac != nil {
		e.Jac = make(core.Jac, len(rec.Jac))
		for out, row := range rec.Jac {
			for in, block := range row {
				if len(block.Data) != block.Rows*block.Cols {
					return nil, fmt.Errorf("jacobian block (%s, %s): %d values for shape (%d,%d)",
						out, in, len(block.Data), block.Rows, block.Cols)
				}
				e.Jac.Set(out, in, denseFromRecord(block))
			}
		}
	}
	return e, nil
}

// Save replaces all persisted entries with the given list.
func (s *BadgerStore) Save(entries []*Entry) error {
	if err := s.db.DropPrefix(entryPrefix); err != nil {
		return fmt.Errorf("clear cache store: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		for i, e := range entries {
			data, err := encodeEntry(e)
			if err != nil {
				return fmt.Errorf("encode cache entry %d: %w", i, err)
			}
			key := fmt.Appendf(nil, "%s%08d", entryPrefix, i)
			if err := txn.Set(key, data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Load reads all persisted entries in insertion order.
func (s *BadgerStore) Load() ([]*Entry, error) {
	var entries []*Entry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = entryPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			data, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			e, err := decodeEntry(data)
			if err != nil {
				return fmt.Errorf("decode cache entry %s: %w", it.Item().Key(), err)
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
