// Package tokens keeps a bloom filter of every share token ever issued, so
// the viewer path can reject garbage tokens without touching the store.
package tokens

import (
	"context"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

const (
	// defaultCapacity sizes the filter; past it the false-positive rate
	// degrades gracefully rather than breaking anything.
	defaultCapacity          = 1_000_000
	defaultFalsePositiveRate = 0.001
)

// TokenLister is the slice of the link store needed to seed the filter.
type TokenLister interface {
	AllTokens(ctx context.Context) ([]string, error)
}

// Filter is a concurrency-safe bloom filter over issued share tokens. A
// negative answer is definitive; a positive answer still goes to the store.
type Filter struct {
	mu sync.RWMutex
	bf *bloom.BloomFilter
}

// NewFilter creates an empty filter.
func NewFilter() *Filter {
	return &Filter{
		bf: bloom.NewWithEstimates(defaultCapacity, defaultFalsePositiveRate),
	}
}

// Seed loads every known token from the store. Called once at startup;
// tokens issued afterwards arrive through Add.
func (f *Filter) Seed(ctx context.Context, store TokenLister) (int, error) {
	all, err := store.AllTokens(ctx)
	if err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, token := range all {
		f.bf.AddString(token)
	}
	return len(all), nil
}

// Add records a freshly issued token.
func (f *Filter) Add(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bf.AddString(token)
}

// Test reports whether the token may have been issued.
func (f *Filter) Test(token string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.bf.TestString(token)
}
