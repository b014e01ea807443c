// Package kv provides the durable key-value substrate backing the vault,
// offline cache, position store, and source registries.
//
// Each logical store gets its own scope; writers within a scope are
// serialized by the implementation.
package kv

// Store is one scoped key-value namespace.
type Store interface {
	// Put writes value under key, replacing any previous value.
	Put(key string, value []byte) error

	// Get returns the value for key, with ok=false if the key is absent.
	Get(key string) ([]byte, bool, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string) error

	// Keys returns all keys currently in the scope.
	Keys() ([]string, error)
}

// DB is a collection of named stores sharing one backing file.
type DB interface {
	// Store returns the scope with the given name, creating it if needed.
	Store(name string) (Store, error)

	// Close releases the underlying storage.
	Close() error
}
