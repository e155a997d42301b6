package pkg

// FactCache memoizes expensive remote queries for one run against one host.
// It is owned by a single engine instance and accessed sequentially, so it
// needs no locking. It is never persisted across runs: remote state may have
// changed between runs, and staleness there would be a correctness bug.
type FactCache struct {
	entries map[string]interface{}
}

func NewFactCache() *FactCache {
	return &FactCache{entries: make(map[string]interface{})}
}

// GetOrCompute returns the cached value for key, computing and caching it on
// first use. Errors from the compute function are not cached.
func (fc *FactCache) GetOrCompute(key string, compute func() (interface{}, error)) (interface{}, error) {
	if v, ok := fc.entries[key]; ok {
		return v, nil
	}
	v, err := compute()
	if err != nil {
		return nil, err
	}
	fc.entries[key] = v
	return v, nil
}

// Invalidate drops a cached value, typically after an apply changed the
// remote state the value described.
func (fc *FactCache) Invalidate(key string) {
	delete(fc.entries, key)
}

// Len returns the number of cached entries.
func (fc *FactCache) Len() int {
	return len(fc.entries)
}
