// Package jsonfile keeps the small side stores (people metadata, priorities,
// manual boxes, photo status) in versioned JSON documents.
package jsonfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/renameio"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-queue/internal/database"
)

const documentVersion = 1

// document is the on-disk layout: {"version": 1, "updated_at": <unix>, "<field>": ...}.
type document struct {
	path   string
	field  string
	logger *zap.Logger

	modTime time.Time
}

// read returns the raw payload of the document field, or nil when the file
// does not exist. A document that is not valid JSON is logged and treated as empty.
func (d *document) read() (json.RawMessage, error) {
	data, err := os.ReadFile(d.path)
	if errors.Is(err, os.ErrNotExist) {
		d.modTime = time.Time{}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", d.field, err)
	}
	if info, err := os.Stat(d.path); err == nil {
		d.modTime = info.ModTime()
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		database.WarnCorrupt(d.logger, database.CorruptRow{Store: d.field, Line: 1, Reason: err.Error()})
		return nil, nil
	}
	return top[d.field], nil
}

func (d *document) write(payload any) error {
	data, err := json.MarshalIndent(map[string]any{
		"version":    documentVersion,
		"updated_at": time.Now().Unix(),
		d.field:      payload,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", d.field, err)
	}
	if err := os.MkdirAll(filepath.Dir(d.path), 0o755); err != nil {
		return fmt.Errorf("create %s directory: %w", d.field, err)
	}
	if err := renameio.WriteFile(d.path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", d.field, err)
	}
	if info, err := os.Stat(d.path); err == nil {
		d.modTime = info.ModTime()
	}
	return nil
}

// changed reports whether the file was modified by someone else since the last read or write.
func (d *document) changed() bool {
	info, err := os.Stat(d.path)
	if err != nil {
		return !d.modTime.IsZero()
	}
	return !info.ModTime().Equal(d.modTime)
}

// Map is a database.Store backed by a JSON object.
type Map[V any] struct {
	doc      document
	validate func(key string, value V) error

	mu    sync.Mutex
	items map[string]V
}

// OpenMap loads the object stored under field in the document at path.
// validate, when non-nil, rejects entries on load.
func OpenMap[V any](path, field string, validate func(string, V) error, logger *zap.Logger) (*Map[V], error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Map[V]{doc: document{path: path, field: field, logger: logger}, validate: validate}
	if err := m.Reload(); err != nil {
		return nil, err
	}
	return m, nil
}

// Get returns the value for key, re-reading the file first if it changed on disk.
func (m *Map[V]) Get(key string) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshLocked()
	v, ok := m.items[key]
	return v, ok
}

// Set stores value under key. Outside edits made since the last read are kept.
func (m *Map[V]) Set(key string, value V) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshLocked()
	items := maps.Clone(m.items)
	items[key] = value
	if err := m.doc.write(items); err != nil {
		return err
	}
	m.items = items
	return nil
}

// Delete removes key.
func (m *Map[V]) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshLocked()
	if _, ok := m.items[key]; !ok {
		return nil
	}
	items := maps.Clone(m.items)
	delete(items, key)
	if err := m.doc.write(items); err != nil {
		return err
	}
	m.items = items
	return nil
}

// All returns a copy of every entry.
func (m *Map[V]) All() map[string]V {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshLocked()
	return maps.Clone(m.items)
}

// Reload re-reads the document.
func (m *Map[V]) Reload() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reloadLocked()
}

func (m *Map[V]) refreshLocked() {
	if !m.doc.changed() {
		return
	}
	if err := m.reloadLocked(); err != nil {
		m.doc.logger.Warn("refreshing store failed", zap.String("store", m.doc.field), zap.Error(err))
	}
}

func (m *Map[V]) reloadLocked() error {
	raw, err := m.doc.read()
	if err != nil {
		return err
	}
	items := make(map[string]V)
	if len(raw) > 0 {
		var entries map[string]json.RawMessage
		if err := json.Unmarshal(raw, &entries); err != nil {
			database.WarnCorrupt(m.doc.logger, database.CorruptRow{Store: m.doc.field, Reason: err.Error()})
		}
		for key, entry := range entries {
			var v V
			if err := json.Unmarshal(entry, &v); err != nil {
				database.WarnCorrupt(m.doc.logger, database.CorruptRow{Store: m.doc.field, Reason: key + ": " + err.Error()})
				continue
			}
			if m.validate != nil {
				if err := m.validate(key, v); err != nil {
					database.WarnCorrupt(m.doc.logger, database.CorruptRow{Store: m.doc.field, Reason: key + ": " + err.Error()})
					continue
				}
			}
			items[key] = v
		}
	}
	m.items = items
	return nil
}

// List is a database.Store backed by a JSON array. Entries keep their order.
type List[V any] struct {
	doc      document
	key      func(V) string
	validate func(V) error

	mu    sync.Mutex
	items []V
}

// OpenList loads the array stored under field in the document at path.
func OpenList[V any](path, field string, key func(V) string, validate func(V) error, logger *zap.Logger) (*List[V], error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &List[V]{doc: document{path: path, field: field, logger: logger}, key: key, validate: validate}
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Get returns the entry with the given key.
func (l *List[V]) Get(key string) (V, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refreshLocked()
	for _, v := range l.items {
		if l.key(v) == key {
			return v, true
		}
	}
	var zero V
	return zero, false
}

// Set replaces the entry with the same key in place, or appends it.
func (l *List[V]) Set(key string, value V) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refreshLocked()
	items := slices.Clone(l.items)
	i := slices.IndexFunc(items, func(v V) bool { return l.key(v) == key })
	if i >= 0 {
		items[i] = value
	} else {
		items = append(items, value)
	}
	if err := l.doc.write(items); err != nil {
		return err
	}
	l.items = items
	return nil
}

// Delete removes the entry with the given key.
func (l *List[V]) Delete(key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refreshLocked()
	items := slices.DeleteFunc(slices.Clone(l.items), func(v V) bool { return l.key(v) == key })
	if len(items) == len(l.items) {
		return nil
	}
	if err := l.doc.write(items); err != nil {
		return err
	}
	l.items = items
	return nil
}

// All returns every entry keyed by its key.
func (l *List[V]) All() map[string]V {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refreshLocked()
	out := make(map[string]V, len(l.items))
	for _, v := range l.items {
		out[l.key(v)] = v
	}
	return out
}

// Items returns the entries in file order.
func (l *List[V]) Items() []V {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refreshLocked()
	return slices.Clone(l.items)
}

// Reload re-reads the document.
func (l *List[V]) Reload() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reloadLocked()
}

func (l *List[V]) refreshLocked() {
	if !l.doc.changed() {
		return
	}
	if err := l.reloadLocked(); err != nil {
		l.doc.logger.Warn("refreshing store failed", zap.String("store", l.doc.field), zap.Error(err))
	}
}

func (l *List[V]) reloadLocked() error {
	raw, err := l.doc.read()
	if err != nil {
		return err
	}
	var items []V
	if len(raw) > 0 {
		var entries []json.RawMessage
		if err := json.Unmarshal(raw, &entries); err != nil {
			database.WarnCorrupt(l.doc.logger, database.CorruptRow{Store: l.doc.field, Reason: err.Error()})
		}
		seen := make(map[string]struct{}, len(entries))
		for i, entry := range entries {
			var v V
			if err := json.Unmarshal(entry, &v); err != nil {
				database.WarnCorrupt(l.doc.logger, database.CorruptRow{Store: l.doc.field, Line: i + 1, Reason: err.Error()})
				continue
			}
			if l.validate != nil {
				if err := l.validate(v); err != nil {
					database.WarnCorrupt(l.doc.logger, database.CorruptRow{Store: l.doc.field, Line: i + 1, Reason: err.Error()})
					continue
				}
			}
			if _, dup := seen[l.key(v)]; dup {
				continue
			}
			seen[l.key(v)] = struct{}{}
			items = append(items, v)
		}
	}
	l.items = items
	return nil
}
