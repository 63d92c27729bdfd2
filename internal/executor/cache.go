package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/go-kit/log/level"
	"go.uber.org/atomic"

	"github.com/AmirulAndalib/polars/internal/errors"
	"github.com/AmirulAndalib/polars/internal/planner/physical"
)

func (c *Context) executeCache(_ context.Context, node *physical.Cache, inputs []Pipeline) Pipeline {
	if len(inputs) == 0 {
		return emptyPipeline()
	}
	if len(inputs) > 1 {
		return errorPipeline(fmt.Errorf("cache expects exactly one input, got %d", len(inputs)))
	}

	entry, ok := c.caches.Get(node.Key)
	if !ok {
		entry = newCacheEntry(inputs[0])
		c.caches.Add(node.Key, entry)
	} else {
		// A later parent replays the shared materialization, making the
		// pipeline tree built for its input redundant.
		level.Debug(c.logger).Log("msg", "sharing cached subplan", "cache_id", node.CacheID)
		inputs[0].Close()
	}

	entry.acquire()
	return &replayPipeline{entry: entry}
}

// cacheEntry materializes one shared subplan at most once and replays the
// batches to every parent. The entry is reference counted: the run's cache
// holds one reference and each replaying pipeline holds another, so evicting
// the entry does not pull batches from under an active reader.
type cacheEntry struct {
	once sync.Once
	refs atomic.Int32

	input   Pipeline
	batches []arrow.Record
	err     error
}

func newCacheEntry(input Pipeline) *cacheEntry {
	e := &cacheEntry{input: input}
	e.refs.Store(1)
	return e
}

func (e *cacheEntry) acquire() { e.refs.Inc() }

func (e *cacheEntry) release() {
	if e.refs.Dec() > 0 {
		return
	}
	if e.input != nil {
		e.input.Close()
		e.input = nil
	}
	for _, rec := range e.batches {
		rec.Release()
	}
	e.batches = nil
}

// materialize drains the input on the first call; later calls are no-ops.
func (e *cacheEntry) materialize(ctx context.Context) {
	e.once.Do(func() {
		defer func() {
			e.input.Close()
			e.input = nil
		}()
		for {
			rec, err := e.input.Read(ctx)
			if errors.Is(err, EOF) {
				return
			}
			if err != nil {
				e.err = err
				return
			}
			e.batches = append(e.batches, rec)
		}
	})
}

// replayPipeline reads the batches of a cache entry. Every replay retains
// the records it hands out, so parents consuming at different speeds do not
// interfere.
type replayPipeline struct {
	entry  *cacheEntry
	next   int
	closed bool
}

// Read implements the [Pipeline] interface.
func (p *replayPipeline) Read(ctx context.Context) (arrow.Record, error) {
	p.entry.materialize(ctx)
	if p.entry.err != nil {
		return nil, p.entry.err
	}
	if p.next >= len(p.entry.batches) {
		return nil, EOF
	}
	rec := p.entry.batches[p.next]
	p.next++
	rec.Retain()
	return rec, nil
}

// Close implements the [Pipeline] interface.
func (p *replayPipeline) Close() {
	if p.closed {
		return
	}
	p.closed = true
	p.entry.release()
}
