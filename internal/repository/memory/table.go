// Package memory keeps every store in process memory. It backs the local
// development mode and the service tests.
package memory

import (
	"sort"
	"sync"

	apperrors "github.com/jwalitptl/card-notifier/pkg/errors"
)

// table holds rows by value so callers never share state with the store.
type table[T any] struct {
	mu     sync.RWMutex
	name   string
	nextID int64
	rows   map[int64]T
	id     func(*T) *int64
}

func newTable[T any](name string, id func(*T) *int64) *table[T] {
	return &table[T]{name: name, rows: make(map[int64]T), id: id}
}

func (t *table[T]) insert(row *T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	*t.id(row) = t.nextID
	t.rows[t.nextID] = *row
}

func (t *table[T]) update(row *T) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := *t.id(row)
	if _, ok := t.rows[id]; !ok {
		return apperrors.NotFound(t.name, nil)
	}
	t.rows[id] = *row
	return nil
}

func (t *table[T]) get(id int64) (*T, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	row, ok := t.rows[id]
	if !ok {
		return nil, apperrors.NotFound(t.name, nil)
	}
	return &row, nil
}

// filter returns copies of the matching rows in ascending id order.
func (t *table[T]) filter(match func(*T) bool) []*T {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]int64, 0, len(t.rows))
	for id := range t.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]*T, 0)
	for _, id := range ids {
		row := t.rows[id]
		if match == nil || match(&row) {
			out = append(out, &row)
		}
	}
	return out
}

func (t *table[T]) count(match func(*T) bool) int64 {
	return int64(len(t.filter(match)))
}
