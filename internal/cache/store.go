package cache

// Store is a durable backend for cache entries. Implementations must
// reconstruct an equivalent in-memory entry list on Load.
type Store interface {
	Save(entries []*Entry) error
	Load() ([]*Entry, error)
	Close() error
}
