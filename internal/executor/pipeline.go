package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
)

// EOF is returned by Pipeline.Read when the pipeline has no more batches.
var EOF = errors.New("pipeline exhausted")

// Pipeline produces the output of a physical plan node as a stream of
// record batches.
type Pipeline interface {
	// Read returns the next batch, or EOF once the stream is exhausted.
	// Ownership of the returned record passes to the caller, which must
	// release it.
	Read(ctx context.Context) (arrow.Record, error)
	// Close releases held resources, including those of input pipelines.
	Close()
}

// state holds a produced batch together with the error of its production.
type state struct {
	batch arrow.Record
	err   error
}

func newState(batch arrow.Record, err error) state {
	return state{batch: batch, err: err}
}

// readFunc produces the next batch of a pipeline from its inputs.
type readFunc func(context.Context, []Pipeline) (arrow.Record, error)

// GenericPipeline implements a pipeline from a read function over a fixed
// set of inputs.
type GenericPipeline struct {
	inputs []Pipeline
	read   readFunc
}

var _ Pipeline = (*GenericPipeline)(nil)

func newGenericPipeline(read readFunc, inputs ...Pipeline) *GenericPipeline {
	return &GenericPipeline{inputs: inputs, read: read}
}

// Read implements the [Pipeline] interface.
func (p *GenericPipeline) Read(ctx context.Context) (arrow.Record, error) {
	if p.read == nil {
		return nil, EOF
	}
	return p.read(ctx, p.inputs)
}

// Close implements the [Pipeline] interface.
func (p *GenericPipeline) Close() {
	for _, in := range p.inputs {
		in.Close()
	}
}

// errorPipeline returns a pipeline that fails every read with err.
func errorPipeline(err error) Pipeline {
	return newGenericPipeline(func(context.Context, []Pipeline) (arrow.Record, error) {
		return nil, fmt.Errorf("failed to execute pipeline: %w", err)
	})
}

// emptyPipeline returns a pipeline without any batches.
func emptyPipeline() Pipeline {
	return newGenericPipeline(nil)
}

// prefetchWrapper reads batches from the wrapped pipeline ahead of its
// consumer, so that inputs of a multi-input pipeline produce concurrently.
// The prefetch goroutine starts on the first read and stops when the
// wrapped pipeline is exhausted or the wrapper is closed.
type prefetchWrapper struct {
	Pipeline
	initialized bool
	ch          chan state
	cancel      context.CancelCauseFunc
}

var _ Pipeline = (*prefetchWrapper)(nil)

func newPrefetchingPipeline(p Pipeline) *prefetchWrapper {
	return &prefetchWrapper{Pipeline: p, ch: make(chan state, 1)}
}

func (p *prefetchWrapper) init(ctx context.Context) {
	if p.initialized {
		return
	}
	p.initialized = true
	ctx, cancel := context.WithCancelCause(ctx)
	p.cancel = cancel
	go p.prefetch(ctx)
}

func (p *prefetchWrapper) prefetch(ctx context.Context) {
	defer close(p.ch)
	for {
		batch, err := p.Pipeline.Read(ctx)
		select {
		case p.ch <- newState(batch, err):
			if err != nil {
				return
			}
		case <-ctx.Done():
			if batch != nil {
				batch.Release()
			}
			return
		}
	}
}

// Read implements the [Pipeline] interface.
func (p *prefetchWrapper) Read(ctx context.Context) (arrow.Record, error) {
	p.init(ctx)
	s, ok := <-p.ch
	if !ok {
		return nil, EOF
	}
	return s.batch, s.err
}

// Close implements the [Pipeline] interface.
func (p *prefetchWrapper) Close() {
	if p.initialized {
		p.cancel(EOF)
		for s := range p.ch {
			if s.batch != nil {
				s.batch.Release()
			}
		}
	}
	p.Pipeline.Close()
}
