// Package config reads and watches the pipeline's configuration, modeled
// on the etcd-backed key layout of the original configuration store:
// string keys, JSON string values, a directory watch over one prefix.
package config

// Store is the configuration backend the Supervisor reads from and
// watches. The etcd client the original system used is not part of this
// corpus; Store is implemented here against the filesystem (FSStore),
// with the same key-layout semantics a real etcd-backed store would give.
type Store interface {
	// Get returns the value stored at key, or an error if it doesn't exist.
	Get(key string) (string, error)

	// WatchPrefix registers cb to be invoked with (key, value) whenever a
	// value changes anywhere under prefix. It guarantees a callback for
	// every value change; ordering across unrelated keys is not promised.
	WatchPrefix(prefix string, cb func(key, value string)) error

	// Close stops the watcher and releases any held resources.
	Close() error
}
