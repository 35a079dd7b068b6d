package consumer

import (
	"context"
	"errors"
	"hash/fnv"

	"github.com/samvad-hq/samvad-news-ingestor/internal/logger"
	"golang.org/x/sync/errgroup"
)

// ErrDispatcherStopped is returned by Submit once Run has returned.
var ErrDispatcherStopped = errors.New("dispatcher stopped")

// Dispatcher routes messages into a fixed set of lanes by partition. Each lane
// owns its handler and runs its messages one at a time in arrival order;
// lanes run concurrently.
type Dispatcher struct {
	lanes    []chan Message
	handlers []Handler
	log      logger.Logger
	done     chan struct{}
}

// NewDispatcher creates a dispatcher with the given number of lanes, all
// sharing handler.
func NewDispatcher(lanes int, handler Handler, log logger.Logger) *Dispatcher {
	if lanes <= 0 {
		lanes = 1
	}
	handlers := make([]Handler, lanes)
	for i := range handlers {
		handlers[i] = handler
	}
	return NewLaneDispatcher(handlers, log)
}

// NewLaneDispatcher creates one lane per handler. A dispatcher without
// handlers gets a single lane that settles nothing.
func NewLaneDispatcher(handlers []Handler, log logger.Logger) *Dispatcher {
	if len(handlers) == 0 {
		handlers = []Handler{nil}
	}
	d := &Dispatcher{
		lanes:    make([]chan Message, len(handlers)),
		handlers: append([]Handler(nil), handlers...),
		log:      logger.Ensure(log),
		done:     make(chan struct{}),
	}
	for i := range d.lanes {
		d.lanes[i] = make(chan Message, 1)
	}
	return d
}

// Lanes returns the number of lanes.
func (d *Dispatcher) Lanes() int { return len(d.lanes) }

func (d *Dispatcher) laneFor(partition string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(partition))
	return int(h.Sum32() % uint32(len(d.lanes)))
}

// Submit enqueues msg on its partition's lane, blocking while the lane is busy.
func (d *Dispatcher) Submit(ctx context.Context, msg Message) error {
	select {
	case <-d.done:
		return ErrDispatcherStopped
	default:
	}
	select {
	case d.lanes[d.laneFor(msg.Partition)] <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return ErrDispatcherStopped
	}
}

// Run processes lanes until ctx is done. Messages still queued at that point
// are left unsettled for the transport to redeliver.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer close(d.done)

	g, gctx := errgroup.WithContext(ctx)
	for i, lane := range d.lanes {
		i, lane := i, lane
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case msg := <-lane:
					d.handle(gctx, i, msg)
				}
			}
		})
	}
	return g.Wait()
}

func (d *Dispatcher) handle(ctx context.Context, lane int, msg Message) {
	handler := d.handlers[lane]
	if handler == nil {
		d.log.WarnObj("lane has no handler, leaving message unsettled", "consumer_lane", map[string]any{
			"lane": lane,
			"id":   msg.ID,
		})
		return
	}
	err := handler(ctx, msg)

	// settlement must survive shutdown
	settleCtx := context.WithoutCancel(ctx)
	if err == nil {
		if aerr := msg.Ack(settleCtx); aerr != nil {
			d.log.WarnObj("message ack failed", "consumer_ack", map[string]any{
				"source":    msg.Source,
				"partition": msg.Partition,
				"id":        msg.ID,
				"lane":      lane,
				"error":     aerr.Error(),
			})
		}
		return
	}

	if nerr := msg.Nack(settleCtx); nerr != nil {
		d.log.WarnObj("message nack failed", "consumer_nack", map[string]any{
			"source":    msg.Source,
			"partition": msg.Partition,
			"id":        msg.ID,
			"lane":      lane,
			"error":     nerr.Error(),
		})
	}
}
