// Package worker drains a delayed queue into a bounded pool of handlers.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"salonpro-reminders/queue"
)

// Handler processes one due item. Returned errors are only logged.
type Handler func(ctx context.Context, id string) error

type Config struct {
	Name        string
	PoolSize    int
	TaskTimeout time.Duration
	// PopBackoff is the pause after a failed Pop.
	PopBackoff time.Duration
}

// Dispatcher runs one poller that blocks on Pop and hands each item to a
// pooled goroutine. The poller only pops when a pool slot is free, so a
// saturated pool leaves items in the queue.
type Dispatcher struct {
	cfg    Config
	q      queue.Queue
	handle Handler
	log    zerolog.Logger

	sem      chan struct{}
	wg       sync.WaitGroup
	done     chan struct{}
	cancel   context.CancelFunc
	inFlight atomic.Int32
	started  atomic.Bool
}

func New(q queue.Queue, handle Handler, cfg Config, log zerolog.Logger) *Dispatcher {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 1
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = time.Minute
	}
	if cfg.PopBackoff <= 0 {
		cfg.PopBackoff = time.Second
	}
	return &Dispatcher{
		cfg:    cfg,
		q:      q,
		handle: handle,
		log:    log.With().Str("comp", "worker").Str("queue", cfg.Name).Logger(),
		sem:    make(chan struct{}, cfg.PoolSize),
		done:   make(chan struct{}),
	}
}

// Start launches the poller. It is a no-op after the first call.
func (d *Dispatcher) Start(ctx context.Context) {
	if !d.started.CompareAndSwap(false, true) {
		return
	}
	ctx, d.cancel = context.WithCancel(ctx)
	go d.poll(ctx)
	d.log.Info().Int("pool", d.cfg.PoolSize).Msg("dispatcher started")
}

// InFlight reports the number of running handlers.
func (d *Dispatcher) InFlight() int { return int(d.inFlight.Load()) }

func (d *Dispatcher) poll(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case d.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}

		item, err := d.q.Pop(ctx)
		if err != nil {
			<-d.sem
			if errors.Is(err, queue.ErrClosed) || ctx.Err() != nil {
				return
			}
			d.log.Error().Err(err).Msg("queue pop failed")
			select {
			case <-time.After(d.cfg.PopBackoff):
			case <-ctx.Done():
				return
			}
			continue
		}

		d.wg.Add(1)
		d.inFlight.Add(1)
		go d.run(context.WithoutCancel(ctx), item)
	}
}

func (d *Dispatcher) run(parent context.Context, item queue.Item) {
	defer func() {
		d.inFlight.Add(-1)
		<-d.sem
		d.wg.Done()
	}()

	ctx, cancel := context.WithTimeout(parent, d.cfg.TaskTimeout)
	defer cancel()

	start := time.Now()
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
				d.log.Error().Str("item", item.ID).Interface("panic", r).Str("stack", string(debug.Stack())).Msg("handler panic")
			}
		}()
		err = d.handle(ctx, item.ID)
	}()

	ev := d.log.Debug()
	if err != nil {
		ev = d.log.Error().Err(err)
	}
	ev.Str("item", item.ID).Dur("dur", time.Since(start)).Msg("item handled")
}

// Stop halts the poller and waits for running handlers until ctx ends.
func (d *Dispatcher) Stop(ctx context.Context) error {
	if !d.started.Load() {
		return nil
	}
	d.cancel()
	<-d.done

	finished := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		d.log.Info().Msg("dispatcher stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatcher %s: %d handlers still running: %w", d.cfg.Name, d.InFlight(), ctx.Err())
	}
}
