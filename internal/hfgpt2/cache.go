package hfgpt2

// Cache holds the past keys and values of every layer for each row of a
// batch. A zero Cache is empty.
type Cache struct {
	rows []rowCache
}

type rowCache struct {
	n      int
	layers []kv
}

// kv stores [n, n_embd] keys and values with the heads side by side.
type kv struct {
	k, v []float32
}

// Len is the number of cached positions.
func (c *Cache) Len() int {
	if c == nil || len(c.rows) == 0 {
		return 0
	}
	return c.rows[0].n
}

// Batch is the number of rows the cache was built for.
func (c *Cache) Batch() int {
	if c == nil {
		return 0
	}
	return len(c.rows)
}

func newCache(batch, layers int) *Cache {
	c := &Cache{rows: make([]rowCache, batch)}
	for i := range c.rows {
		c.rows[i].layers = make([]kv, layers)
	}
	return c
}
