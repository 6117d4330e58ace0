package catalog

import (
	"context"
	"errors"
	"testing"
)

func TestCacheLoadsOnce(t *testing.T) {
	cache := NewCache()
	loads := 0
	load := func(context.Context) (Explore, error) {
		loads++
		return Explore{ModelName: "ecommerce", Name: "orders"}, nil
	}

	for i := 0; i < 3; i++ {
		explore, err := cache.Explore(context.Background(), "ecommerce", "orders", load)
		if err != nil {
			t.Fatalf("Explore() error = %v", err)
		}
		if explore.Name != "orders" {
			t.Fatalf("unexpected explore: %+v", explore)
		}
	}
	if loads != 1 {
		t.Fatalf("loader ran %d times, want 1", loads)
	}
}

func TestCacheKeysByModelAndExplore(t *testing.T) {
	cache := NewCache()
	loads := 0
	load := func(context.Context) (Explore, error) {
		loads++
		return Explore{}, nil
	}

	_, _ = cache.Explore(context.Background(), "ecommerce", "orders", load)
	_, _ = cache.Explore(context.Background(), "finance", "orders", load)
	if loads != 2 {
		t.Fatalf("loader ran %d times, want 2 for distinct models", loads)
	}
}

func TestCacheDoesNotMemoizeErrors(t *testing.T) {
	cache := NewCache()
	loads := 0
	load := func(context.Context) (Explore, error) {
		loads++
		if loads == 1 {
			return Explore{}, errors.New("transient")
		}
		return Explore{Name: "orders"}, nil
	}

	if _, err := cache.Explore(context.Background(), "ecommerce", "orders", load); err == nil {
		t.Fatal("expected first load to fail")
	}
	explore, err := cache.Explore(context.Background(), "ecommerce", "orders", load)
	if err != nil {
		t.Fatalf("retry error = %v", err)
	}
	if explore.Name != "orders" || loads != 2 {
		t.Fatalf("retry did not reload: %+v loads=%d", explore, loads)
	}
}
