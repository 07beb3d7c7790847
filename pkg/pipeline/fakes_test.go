package pipeline

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/Sternrassler/asset-variants/pkg/cache"
	"github.com/Sternrassler/asset-variants/pkg/imaging"
	"github.com/Sternrassler/asset-variants/pkg/origin"
	"github.com/Sternrassler/asset-variants/pkg/transform"
)

// fakeOrigin is an in-memory origin.Store with call counters.
type fakeOrigin struct {
	mu      sync.Mutex
	records map[string]origin.Record

	statErr  error
	fetchErr error
	onFetch  func()

	statCalls  atomic.Int32
	fetchCalls atomic.Int32
}

func newFakeOrigin() *fakeOrigin {
	return &fakeOrigin{records: make(map[string]origin.Record)}
}

func (o *fakeOrigin) put(id string, data []byte, contentType, version string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.records[id] = origin.Record{
		ID:          id,
		Data:        data,
		ContentType: contentType,
		Size:        int64(len(data)),
		Version:     version,
	}
}

func (o *fakeOrigin) StatVersion(ctx context.Context, id string) (string, error) {
	o.statCalls.Add(1)
	if o.statErr != nil {
		return "", o.statErr
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	rec, ok := o.records[id]
	if !ok {
		return "", origin.ErrNotFound
	}
	return rec.Version, nil
}

func (o *fakeOrigin) Fetch(ctx context.Context, id string) (*origin.Record, error) {
	o.fetchCalls.Add(1)
	if o.onFetch != nil {
		o.onFetch()
	}
	if o.fetchErr != nil {
		return nil, o.fetchErr
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	rec, ok := o.records[id]
	if !ok {
		return nil, origin.ErrNotFound
	}
	return &rec, nil
}

func (o *fakeOrigin) calls() int {
	return int(o.statCalls.Load() + o.fetchCalls.Load())
}

// fakeCache is an in-memory cache.Store with call counters and injectable
// failures.
type fakeCache struct {
	mu      sync.Mutex
	entries map[cache.Key]cache.Entry

	getErr error
	putErr error

	// afterMiss runs after a Get reports a miss, afterPut after a stored Put.
	afterMiss func()
	afterPut  func()

	getCalls atomic.Int32
	putCalls atomic.Int32
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[cache.Key]cache.Entry)}
}

func (c *fakeCache) Get(ctx context.Context, key cache.Key) (*cache.Entry, error) {
	c.getCalls.Add(1)
	if c.getErr != nil {
		return nil, c.getErr
	}
	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()
	if !ok {
		if c.afterMiss != nil {
			c.afterMiss()
		}
		return nil, cache.ErrCacheMiss
	}
	return &e, nil
}

func (c *fakeCache) Put(ctx context.Context, key cache.Key, data []byte, contentType string) error {
	c.putCalls.Add(1)
	if c.putErr != nil {
		return c.putErr
	}
	c.mu.Lock()
	c.entries[key] = cache.Entry{Key: key, Data: data, ContentType: contentType}
	c.mu.Unlock()
	if c.afterPut != nil {
		c.afterPut()
	}
	return nil
}

func (c *fakeCache) has(key cache.Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

func (c *fakeCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *fakeCache) calls() int {
	return int(c.getCalls.Load() + c.putCalls.Load())
}

// fakeEngine prefixes the source bytes with the canonical spec. A non-nil
// gate blocks Apply until it is closed.
type fakeEngine struct {
	gate  chan struct{}
	err   error
	calls atomic.Int32
}

func (e *fakeEngine) Apply(ctx context.Context, data []byte, contentType string, spec transform.Spec) (*imaging.Result, error) {
	e.calls.Add(1)
	if e.gate != nil {
		select {
		case <-e.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if e.err != nil {
		return nil, e.err
	}
	out := append([]byte(spec.Canonical()+"|"), data...)
	return &imaging.Result{Data: out, ContentType: contentType}, nil
}
