// Package csvlog stores decisions in flat CSV files. Each file is rewritten
// atomically on every change.
package csvlog

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/google/renameio"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-queue/internal/database"
)

// Codec maps values of one store to and from CSV rows.
type Codec[K comparable, V any] struct {
	// Name identifies the store in logs.
	Name string
	// Header is the column list written as the first row.
	Header []string
	// Decode parses a row keyed by column name.
	Decode func(row map[string]string) (V, error)
	// Encode renders a value in Header order.
	Encode func(V) []string
	// Key extracts the store key of a value.
	Key func(V) K
}

// Log is a CSV-backed database.Store. Rows keep their insertion order.
type Log[K comparable, V any] struct {
	path   string
	codec  Codec[K, V]
	logger *zap.Logger

	mu    sync.RWMutex
	items map[K]V
	order []K
}

// Open loads the log at path. A missing file is an empty store.
func Open[K comparable, V any](path string, codec Codec[K, V], logger *zap.Logger) (*Log[K, V], error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Log[K, V]{path: path, codec: codec, logger: logger}
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Path returns the backing file path.
func (l *Log[K, V]) Path() string { return l.path }

// Get returns the value stored for key.
func (l *Log[K, V]) Get(key K) (V, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	v, ok := l.items[key]
	return v, ok
}

// Set stores value under key and rewrites the file.
func (l *Log[K, V]) Set(key K, value V) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	order := l.order
	if _, exists := l.items[key]; !exists {
		order = append(slices.Clip(order), key)
	}
	items := maps.Clone(l.items)
	items[key] = value

	if err := l.write(items, order); err != nil {
		return err
	}
	l.items, l.order = items, order
	return nil
}

// Delete removes key and rewrites the file.
func (l *Log[K, V]) Delete(key K) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.items[key]; !exists {
		return nil
	}
	items := maps.Clone(l.items)
	delete(items, key)
	order := slices.DeleteFunc(slices.Clone(l.order), func(k K) bool { return k == key })

	if err := l.write(items, order); err != nil {
		return err
	}
	l.items, l.order = items, order
	return nil
}

// All returns a copy of every entry.
func (l *Log[K, V]) All() map[K]V {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return maps.Clone(l.items)
}

// Reload re-reads the file, skipping rows that cannot be parsed.
func (l *Log[K, V]) Reload() error {
	items := make(map[K]V)
	var order []K

	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		l.mu.Lock()
		l.items, l.order = items, nil
		l.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("open %s store: %w", l.codec.Name, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		l.mu.Lock()
		l.items, l.order = items, nil
		l.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s header: %w", l.codec.Name, err)
	}

	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			database.WarnCorrupt(l.logger, database.CorruptRow{Store: l.codec.Name, Line: parseErr.Line, Reason: parseErr.Err.Error()})
			continue
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", l.codec.Name, err)
		}

		line, _ := r.FieldPos(0)
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		value, err := l.codec.Decode(row)
		if err != nil {
			database.WarnCorrupt(l.logger, database.CorruptRow{Store: l.codec.Name, Line: line, Reason: err.Error()})
			continue
		}
		key := l.codec.Key(value)
		if _, seen := items[key]; !seen {
			order = append(order, key)
		}
		items[key] = value
	}

	l.mu.Lock()
	l.items, l.order = items, order
	l.mu.Unlock()
	return nil
}

func (l *Log[K, V]) write(items map[K]V, order []K) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(l.codec.Header); err != nil {
		return fmt.Errorf("encode %s header: %w", l.codec.Name, err)
	}
	for _, key := range order {
		if err := w.Write(l.codec.Encode(items[key])); err != nil {
			return fmt.Errorf("encode %s row: %w", l.codec.Name, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("encode %s: %w", l.codec.Name, err)
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create %s directory: %w", l.codec.Name, err)
	}
	if err := renameio.WriteFile(l.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s store: %w", l.codec.Name, err)
	}
	return nil
}
