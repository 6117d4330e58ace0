package catalog

import (
	"context"
	"sync"
)

// Cache memoizes loaded explores keyed by "{model}|{explore}". It replaces
// the process-wide ambient memo of the original surface with an explicit
// object whose lifetime the owner controls: construct one per service (or
// per session) and inject it where needed.
type Cache struct {
	mu       sync.Mutex
	explores map[string]Explore
}

func NewCache() *Cache {
	return &Cache{explores: make(map[string]Explore)}
}

// Explore returns the cached explore or loads and memoizes it. Load errors
// are not cached; the next call retries.
func (c *Cache) Explore(ctx context.Context, modelName, exploreName string, load func(context.Context) (Explore, error)) (Explore, error) {
	key := modelName + "|" + exploreName

	c.mu.Lock()
	if cached, ok := c.explores[key]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	explore, err := load(ctx)
	if err != nil {
		return Explore{}, err
	}

	c.mu.Lock()
	c.explores[key] = explore
	c.mu.Unlock()
	return explore, nil
}

// Invalidate drops one memoized explore.
func (c *Cache) Invalidate(modelName, exploreName string) {
	c.mu.Lock()
	delete(c.explores, modelName+"|"+exploreName)
	c.mu.Unlock()
}
