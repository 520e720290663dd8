package pipeline

import (
	"sync"
	"time"

	"github.com/CWCHIUC/guidegen/internal/analyze"
)

// Dataset is an analyzed gradebook held in memory between the upload
// call and any number of guide requests against it.
type Dataset struct {
	ID        string
	Report    *analyze.Report
	CSV       []byte
	CreatedAt time.Time
}

// DatasetStore is a thread-safe in-memory dataset cache with TTL
// eviction. Datasets are small (a report plus the raw CSV), so there is
// no size cap beyond the TTL.
type DatasetStore struct {
	mu   sync.Mutex
	sets map[string]*Dataset
	ttl  time.Duration
}

func NewDatasetStore(ttl time.Duration) *DatasetStore {
	return &DatasetStore{
		sets: make(map[string]*Dataset),
		ttl:  ttl,
	}
}

// Put stores an analyzed gradebook under a fresh ID and returns it.
func (s *DatasetStore) Put(report *analyze.Report, csv []byte) *Dataset {
	ds := &Dataset{
		ID:        newULID(),
		Report:    report,
		CSV:       csv,
		CreatedAt: time.Now(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets[ds.ID] = ds
	return ds
}

func (s *DatasetStore) Get(id string) *Dataset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sets[id]
}

// Delete removes a dataset and reports whether it existed.
func (s *DatasetStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sets[id]
	delete(s.sets, id)
	return ok
}

// Cleanup removes expired datasets.
func (s *DatasetStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-s.ttl)
	for id, ds := range s.sets {
		if ds.CreatedAt.Before(cutoff) {
			delete(s.sets, id)
		}
	}
}

// Len reports how many datasets are live.
func (s *DatasetStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sets)
}
