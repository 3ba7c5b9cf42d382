package geo

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned by MockLocator for addresses it has no record for
var ErrNotFound = errors.New("address not found")

// MockLocator is a mock implementation of Locator for testing
type MockLocator struct {
	mu         sync.Mutex
	Records    map[string]Record
	Errors     map[string]error
	LookupFunc func(ctx context.Context, addr string) (Record, error)
	Calls      []string
}

// NewMockLocator creates a mock locator answering from records
func NewMockLocator(records map[string]Record) *MockLocator {
	return &MockLocator{
		Records: records,
		Errors:  make(map[string]error),
		Calls:   make([]string, 0),
	}
}

// Lookup implements the Locator interface
func (m *MockLocator) Lookup(ctx context.Context, addr string) (Record, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, addr)
	lookupFunc := m.LookupFunc
	err, hasErr := m.Errors[addr]
	rec, hasRec := m.Records[addr]
	m.mu.Unlock()

	if lookupFunc != nil {
		return lookupFunc(ctx, addr)
	}
	if hasErr {
		return Record{}, err
	}
	if !hasRec {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// SetError makes lookups of addr fail with err until cleared with a nil err
func (m *MockLocator) SetError(addr string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.Errors, addr)
		return
	}
	m.Errors[addr] = err
}

// CallCount returns how many lookups were made for addr
func (m *MockLocator) CallCount(addr string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int
	for _, call := range m.Calls {
		if call == addr {
			n++
		}
	}
	return n
}

// TotalCalls returns the number of lookups made
func (m *MockLocator) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
