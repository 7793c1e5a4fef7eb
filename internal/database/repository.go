package database

// Store is a persisted key-value store. Every write replaces the persisted
// representation before it returns, so a crash leaves either the old or the
// new state on disk.
type Store[K comparable, V any] interface {
	// Get returns the value for key, or false when it is absent.
	Get(key K) (V, bool)
	// Set inserts or overwrites the value for key.
	Set(key K, value V) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(key K) error
	// All returns a snapshot copy of every entry.
	All() map[K]V
	// Reload discards the in-memory state and re-reads the backing storage.
	Reload() error
}

// TagStore maps face ID to its label assignment.
type TagStore = Store[string, Tag]

// VoteStore maps (face ID, label) to a vote.
type VoteStore = Store[VoteKey, Vote]

// IgnoreStore maps face ID to its ignore record.
type IgnoreStore = Store[string, Ignore]

// PriorityStore maps bucket ID to a non-default priority.
type PriorityStore = Store[string, Priority]

// PeopleStore maps a normalized label to its metadata.
type PeopleStore = Store[string, PersonMeta]

// ManualBoxStore maps box ID to a manual box.
type ManualBoxStore = Store[string, ManualBox]

// PhotoStatusStore maps bucket ID to its review status.
type PhotoStatusStore = Store[string, PhotoStatus]

// DecisionStores groups the three stores every labeling decision goes to.
type DecisionStores struct {
	Tags    TagStore
	Votes   VoteStore
	Ignores IgnoreStore
}

// SideStores groups the small JSON stores.
type SideStores struct {
	People      PeopleStore
	Priorities  PriorityStore
	ManualBoxes ManualBoxStore
	PhotoStatus PhotoStatusStore
}
