package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/askiada/go-insar/pkg/raster"
)

// MemoryStore is an in-process raster.Store. Records are copied on the way in and out so callers
// can never alias stored samples.
type MemoryStore struct {
	lock    sync.RWMutex
	records map[string]*raster.Record
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*raster.Record),
	}
}

// Put stores a copy of rec under path.
func (s *MemoryStore) Put(ctx context.Context, path string, rec *raster.Record) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "put "+path)
	}

	if path == "" {
		return errors.New("path must be set")
	}

	if rec == nil {
		return errors.New("record must be set")
	}

	cp := cloneRecord(rec)

	s.lock.Lock()
	defer s.lock.Unlock()

	s.records[path] = cp

	return nil
}

// Get returns a copy of the record stored under path.
func (s *MemoryStore) Get(ctx context.Context, path string) (*raster.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "get "+path)
	}

	s.lock.RLock()
	defer s.lock.RUnlock()

	rec, ok := s.records[path]
	if !ok {
		return nil, errors.Wrap(raster.ErrNotFound, path)
	}

	return cloneRecord(rec), nil
}

// Exists reports whether a record is stored under path.
func (s *MemoryStore) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, errors.Wrap(err, "exists "+path)
	}

	s.lock.RLock()
	defer s.lock.RUnlock()

	_, ok := s.records[path]

	return ok, nil
}

// List returns the stored paths with the given prefix, sorted.
func (s *MemoryStore) List(prefix string) []string {
	s.lock.RLock()
	defer s.lock.RUnlock()

	paths := make([]string, 0, len(s.records))
	for k := range s.records {
		if strings.HasPrefix(k, prefix) {
			paths = append(paths, k)
		}
	}

	sort.Strings(paths)

	return paths
}

// Delete removes the record stored under path, if any.
func (s *MemoryStore) Delete(path string) {
	s.lock.Lock()
	defer s.lock.Unlock()

	delete(s.records, path)
}

func cloneRecord(rec *raster.Record) *raster.Record {
	cp := *rec
	if rec.Real != nil {
		cp.Real = append([]float32(nil), rec.Real...)
	}

	if rec.Complex != nil {
		cp.Complex = append([]complex64(nil), rec.Complex...)
	}

	if rec.Metadata != nil {
		cp.Metadata = raster.Metadata{}.Merge(rec.Metadata)
	}

	return &cp
}

var _ raster.Store = (*MemoryStore)(nil)
