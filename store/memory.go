package store

import (
	"sort"
	"strings"
	"sync"
)

type MemStore struct {
	mutex    *sync.RWMutex
	db       map[string]Entry
	failures map[string]error
}

func NewMemStore() MemStore {
	return MemStore{
		mutex:    &sync.RWMutex{},
		db:       make(map[string]Entry),
		failures: make(map[string]error),
	}
}

// FailOn makes operations on key fail with err.
// For All the key is matched against the prefix, for Purge against the entry key.
// A nil err removes the failure.
func (m MemStore) FailOn(key string, err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err == nil {
		delete(m.failures, key)
		return
	}
	m.failures[key] = err
}

func (m MemStore) All(prefix string) ([]Entry, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if err := m.failures[prefix]; err != nil {
		return nil, err
	}
	entries := make([]Entry, 0)
	for key, val := range m.db {
		if strings.HasPrefix(key, prefix) {
			entries = append(entries, val)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

func (m MemStore) Put(e Entry) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.failures[e.Key]; err != nil {
		return err
	}
	m.db[e.Key] = e
	return nil
}

func (m MemStore) Purge(key string) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.failures[key]; err != nil {
		return false, err
	}
	_, ok := m.db[key]
	delete(m.db, key)
	return ok, nil
}

func (m MemStore) Has(key string) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	_, ok := m.db[key]
	return ok
}

// Len returns the number of entries across all origins.
func (m MemStore) Len() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.db)
}
