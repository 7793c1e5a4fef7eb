package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-queue/internal/database"
)

// Table is a database.Store kept in the decisions table under one store name.
// Values are stored as JSON; the full contents are cached in memory.
type Table[K comparable, V any] struct {
	db        *DB
	store     string
	encodeKey func(K) string
	keyOf     func(V) K
	logger    *zap.Logger

	mu    sync.RWMutex
	items map[K]V
}

// NewTable loads the rows of store into a new table.
func NewTable[K comparable, V any](db *DB, store string, encodeKey func(K) string, keyOf func(V) K, logger *zap.Logger) (*Table[K, V], error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Table[K, V]{db: db, store: store, encodeKey: encodeKey, keyOf: keyOf, logger: logger}
	if err := t.Reload(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Table[K, V]) Get(key K) (V, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.items[key]
	return v, ok
}

func (t *Table[K, V]) Set(key K, value V) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s row: %w", t.store, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	_, err = t.db.db.ExecContext(context.Background(),
		`INSERT INTO decisions (store, key, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(store, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		t.store, t.encodeKey(key), string(data), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("write %s: %w", t.store, err)
	}
	t.items[key] = value
	return nil
}

func (t *Table[K, V]) Delete(key K) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.items[key]; !ok {
		return nil
	}
	if _, err := t.db.db.ExecContext(context.Background(),
		"DELETE FROM decisions WHERE store = ? AND key = ?", t.store, t.encodeKey(key)); err != nil {
		return fmt.Errorf("delete from %s: %w", t.store, err)
	}
	delete(t.items, key)
	return nil
}

func (t *Table[K, V]) All() map[K]V {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return maps.Clone(t.items)
}

// Reload re-reads every row of the store. Rows that fail to decode are
// logged and skipped.
func (t *Table[K, V]) Reload() error {
	rows, err := t.db.db.QueryContext(context.Background(),
		"SELECT rowid, value FROM decisions WHERE store = ? ORDER BY rowid", t.store)
	if err != nil {
		return fmt.Errorf("read %s: %w", t.store, err)
	}
	defer rows.Close()

	items := make(map[K]V)
	for rows.Next() {
		var (
			rowid int
			raw   string
		)
		if err := rows.Scan(&rowid, &raw); err != nil {
			return fmt.Errorf("scan %s row: %w", t.store, err)
		}
		var v V
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			database.WarnCorrupt(t.logger, database.CorruptRow{Store: t.store, Line: rowid, Reason: err.Error()})
			continue
		}
		items[t.keyOf(v)] = v
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate %s rows: %w", t.store, err)
	}

	t.mu.Lock()
	t.items = items
	t.mu.Unlock()
	return nil
}

// OpenDecisionStores returns the tag, vote and ignore stores kept in db.
func OpenDecisionStores(db *DB, logger *zap.Logger) (database.DecisionStores, error) {
	id := func(s string) string { return s }

	tags, err := NewTable(db, string(database.StoreTags), id, func(t database.Tag) string { return t.FaceID }, logger)
	if err != nil {
		return database.DecisionStores{}, err
	}
	votes, err := NewTable(db, string(database.StoreVotes), database.VoteKey.String, database.Vote.Key, logger)
	if err != nil {
		return database.DecisionStores{}, err
	}
	ignores, err := NewTable(db, string(database.StoreIgnores), id, func(i database.Ignore) string { return i.FaceID }, logger)
	if err != nil {
		return database.DecisionStores{}, err
	}
	return database.DecisionStores{Tags: tags, Votes: votes, Ignores: ignores}, nil
}
