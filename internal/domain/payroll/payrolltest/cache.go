package payrolltest

import (
	"context"
	"encoding/json"
	"sync"
)

type Cache struct {
	Faults
	mu    sync.Mutex
	items map[string][]byte
}

func NewCache() *Cache {
	return &Cache{items: map[string][]byte{}}
}

func (c *Cache) Get(_ context.Context, key string, dst any) (bool, error) {
	if err := c.err("Get"); err != nil {
		return false, err
	}
	c.mu.Lock()
	raw, ok := c.items[key]
	c.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dst)
}

func (c *Cache) Set(_ context.Context, key string, value any) error {
	if err := c.err("Set"); err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.items[key] = raw
	c.mu.Unlock()
	return nil
}

// Raw returns the JSON stored under key.
func (c *Cache) Raw(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.items[key]
	return string(raw), ok
}
