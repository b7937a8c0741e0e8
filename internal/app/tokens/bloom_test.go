package tokens

import (
	"context"
	"sync"
	"testing"
)

type staticLister struct {
	tokens []string
}

func (l staticLister) AllTokens(context.Context) ([]string, error) {
	return l.tokens, nil
}

func TestFilter_SeedAndTest(t *testing.T) {
	filter := NewFilter()

	n, err := filter.Seed(context.Background(), staticLister{tokens: []string{"tok1", "tok2"}})
	if err != nil {
		t.Fatalf("Seed error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 seeded tokens, got %d", n)
	}

	if !filter.Test("tok1") || !filter.Test("tok2") {
		t.Fatal("seeded tokens must test positive")
	}
	if filter.Test("never-issued-token") {
		t.Fatal("unexpected positive for unknown token")
	}
}

func TestFilter_Add(t *testing.T) {
	filter := NewFilter()
	if filter.Test("tok1") {
		t.Fatal("empty filter must test negative")
	}
	filter.Add("tok1")
	if !filter.Test("tok1") {
		t.Fatal("added token must test positive")
	}
}

func TestFilter_ConcurrentAccess(t *testing.T) {
	filter := NewFilter()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			filter.Add("tok1")
			_ = filter.Test("tok1")
			_ = filter.Test("other")
		}()
	}
	wg.Wait()

	if !filter.Test("tok1") {
		t.Fatal("token lost after concurrent adds")
	}
}
