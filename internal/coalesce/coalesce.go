// Package coalesce groups inbound QUIC datagrams into PacketBatch-sized
// groups within a short time window, so the fetch stage processes a handful
// of batches per tick instead of one batch per datagram. This is the
// DEFAULT_TPU_COALESCE_MS behavior of the QUIC ingest servers.
package coalesce

import (
	"context"
	"errors"
	"sync"
	"time"
)

type (
	// Config controls the coalescing window.
	Config struct {
		// MaxSize caps the number of items per batch, if positive.
		// Defaults to 16 if zero. NewCoalescer panics if both MaxSize and
		// FlushInterval are non-positive.
		MaxSize int

		// FlushInterval is the maximum time an incomplete batch is held
		// before being flushed, if positive. Defaults to 5ms
		// (DEFAULT_TPU_COALESCE_MS) if zero.
		FlushInterval time.Duration

		// MaxConcurrency bounds the number of batches flushed concurrently
		// to Processor, if positive. Defaults to 1.
		MaxConcurrency int
	}

	// Processor receives a flushed batch. A bounded-channel-send
	// implementation (returning ctx.Err() if the channel is unreceived and
	// ctx is canceled first) is the typical shape for handing batches to
	// the fetch stage.
	Processor[Item any] func(ctx context.Context, items []Item) error

	// Coalescer accepts items one at a time, handing them to Processor in
	// batches bounded by Config.MaxSize and Config.FlushInterval.
	Coalescer[Item any] struct {
		processor      Processor[Item]
		maxSize        int
		flushInterval  time.Duration
		maxConcurrency int
		ctx            context.Context
		cancel         context.CancelFunc
		done           chan struct{}
		stopped        chan struct{}
		stopOnce       sync.Once
		itemCh         chan Item
		batchCh        chan *pendingBatch[Item]
		state          *pendingBatch[Item]
	}

	pendingBatch[Item any] struct {
		err   error
		done  chan struct{}
		items []Item
	}

	// Result lets a caller observe when the item it submitted was included
	// in a batch that finished processing, and with what error, if any.
	// Most callers of Submit discard this; it exists for callers that need
	// backpressure awareness rather than fire-and-forget submission.
	Result[Item any] struct {
		Item  Item
		batch *pendingBatch[Item]
	}
)

// NewCoalescer starts a Coalescer. The provided config may be nil. Panics if
// processor is nil or the config disables both flush triggers.
func NewCoalescer[Item any](config *Config, processor Processor[Item]) *Coalescer[Item] {
	if processor == nil {
		panic(`coalesce: nil processor`)
	}

	c := Coalescer[Item]{
		processor:      processor,
		maxSize:        16,
		flushInterval:  5 * time.Millisecond,
		maxConcurrency: 1,
		state:          newPendingBatch[Item](),
		done:           make(chan struct{}),
		stopped:        make(chan struct{}),
		itemCh:         make(chan Item),
		batchCh:        make(chan *pendingBatch[Item]),
	}

	if config != nil {
		if config.MaxSize != 0 {
			c.maxSize = config.MaxSize
		}
		if config.FlushInterval != 0 {
			c.flushInterval = config.FlushInterval
		}
		if config.MaxConcurrency != 0 {
			c.maxConcurrency = config.MaxConcurrency
		}
	}

	if c.flushInterval <= 0 && c.maxSize <= 0 {
		panic(`coalesce: one of MaxSize or FlushInterval must be specified`)
	}

	c.ctx, c.cancel = context.WithCancel(context.Background())

	go c.run()

	return &c
}

// Shutdown prevents further Submit calls, then waits for all scheduled
// batches to finish processing. Returns ctx.Err() if ctx is canceled first,
// forcing a Close.
func (c *Coalescer[Item]) Shutdown(ctx context.Context) (err error) {
	c.stop()

	select {
	case <-ctx.Done():
		if c.ctx.Err() == nil {
			err = ctx.Err()
		}
		c.cancel()
		<-c.done
	case <-c.done:
	}

	return err
}

// Close cancels all in-flight batches immediately and stops accepting
// further submissions, blocking until shutdown completes.
func (c *Coalescer[Item]) Close() error {
	c.cancel()
	<-c.done
	return nil
}

// Submit hands an item to the coalescing window, returning once it has been
// folded into the current (or a fresh) pending batch.
func (c *Coalescer[Item]) Submit(ctx context.Context, item Item) (*Result[Item], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.ctx.Err(); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()

	case <-c.ctx.Done():
		return nil, c.ctx.Err()

	case <-c.stopped:
		return nil, context.Canceled

	case c.itemCh <- item: // ping
		batch := <-c.batchCh // pong
		return &Result[Item]{Item: item, batch: batch}, nil
	}
}

func (c *Coalescer[Item]) stop() {
	c.stopOnce.Do(func() {
		close(c.stopped)
	})
}

func (c *Coalescer[Item]) run() {
	defer close(c.done)
	defer c.cancel()

	var wg sync.WaitGroup
	wg.Add(1)

	var runningCh chan struct{}
	if c.maxConcurrency > 0 {
		runningCh = make(chan struct{}, c.maxConcurrency)
	}

	flush := func() {
		if len(c.state.items) == 0 {
			return
		}

		batch := c.state
		c.state = newPendingBatch[Item]()

		wg.Add(1)
		if runningCh != nil {
			runningCh <- struct{}{}
		}
		go func() {
			defer func() {
				if runningCh != nil {
					<-runningCh
				}
				wg.Done()
			}()
			_ = batch.run(c.ctx, c.processor)
		}()
	}

	var wait func()
	wait = func() {
		wait = nil
		flush()
		wg.Done()
		wg.Wait()
	}

	defer func() {
		c.cancel()
		if wait != nil {
			wait()
		}
	}()

	flushCh := make(chan *pendingBatch[Item])

	for {
		select {
		case <-c.ctx.Done():
			return

		case <-c.stopped:
			wait()
			return

		case item := <-c.itemCh: // ping
			c.batchCh <- c.state // pong

			c.state.items = append(c.state.items, item)

			if c.maxSize > 0 && len(c.state.items) >= c.maxSize {
				flush()
			} else if c.flushInterval > 0 && len(c.state.items) == 1 {
				batch := c.state
				timer := time.NewTimer(c.flushInterval)
				go func() {
					defer timer.Stop()
					select {
					case <-c.ctx.Done():
					case <-c.stopped:
					case <-batch.done:
					case <-timer.C:
						select {
						case <-c.ctx.Done():
						case <-c.stopped:
						case <-batch.done:
						case flushCh <- batch:
						}
					}
				}()
			}

		case batch := <-flushCh:
			if batch == c.state {
				flush()
			}
		}
	}
}

func newPendingBatch[Item any]() *pendingBatch[Item] {
	return &pendingBatch[Item]{done: make(chan struct{})}
}

func (b *pendingBatch[Item]) run(ctx context.Context, processor Processor[Item]) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	b.err = errors.New(`coalesce: panic in Processor`)
	defer close(b.done)

	b.err = processor(ctx, b.items)

	return b.err
}

// Wait blocks until the batch containing Item has finished processing,
// returning any error the Processor returned for that batch.
func (r *Result[Item]) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()

	case <-r.batch.done:
		return r.batch.err
	}
}
