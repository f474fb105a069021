package runtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/compas-coach/compas/internal/logging"
)

const (
	userVisibleHandlerError = "Something went wrong on my side. Give me a moment and try again."

	laneIdleTimeout = time.Minute
)

// Dispatcher runs queued messages against a Handler. Each session gets its
// own FIFO lane so one slow conversation does not hold up another, while
// turns within a session never overlap.
type Dispatcher struct {
	handler   Handler
	queueSize int

	done chan struct{}
	wg   sync.WaitGroup

	mu      sync.Mutex
	started bool
	closing bool
	rootCtx context.Context
	lanes   map[string]*lane
}

type lane struct {
	queue   chan dispatchItem
	pending int
	cancel  context.CancelFunc
}

type dispatchItem struct {
	msg    *Message
	writer ResponseWriter
}

// NewDispatcher creates a dispatcher whose lanes each hold up to queueSize
// waiting messages.
func NewDispatcher(handler Handler, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Dispatcher{
		handler:   handler,
		queueSize: queueSize,
		done:      make(chan struct{}),
		lanes:     make(map[string]*lane),
	}
}

// Start arms the dispatcher. Lanes are started on demand and all stop when
// ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) error {
	if d == nil {
		return errors.New("dispatcher is required")
	}
	if d.handler == nil {
		return errors.New("handler is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return errors.New("dispatcher already started")
	}
	d.started = true
	d.rootCtx = ctx
	d.mu.Unlock()

	go func() {
		<-ctx.Done()
		d.mu.Lock()
		d.closing = true
		d.mu.Unlock()
		d.wg.Wait()
		close(d.done)
	}()
	return nil
}

// Enqueue submits one message to its session lane.
func (d *Dispatcher) Enqueue(ctx context.Context, msg *Message, writer ResponseWriter) error {
	if msg == nil {
		return errors.New("message is required")
	}
	if writer == nil {
		return errors.New("response writer is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return errors.New("dispatcher is not started")
	}
	rootCtx := d.rootCtx
	if d.closing || rootCtx.Err() != nil {
		d.mu.Unlock()
		return context.Canceled
	}
	l, ok := d.lanes[msg.SessionID]
	if !ok {
		l = &lane{queue: make(chan dispatchItem, d.queueSize)}
		d.lanes[msg.SessionID] = l
		d.wg.Add(1)
		go d.runLane(msg.SessionID, l)
	}
	l.pending++
	d.mu.Unlock()

	select {
	case l.queue <- dispatchItem{msg: msg, writer: writer}:
		return nil
	case <-rootCtx.Done():
		err := rootCtx.Err()
		d.unreserve(l)
		return err
	case <-ctx.Done():
		err := ctx.Err()
		d.unreserve(l)
		return err
	}
}

// Stop cancels every in-flight run and drops everything still queued.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, l := range d.lanes {
		if l.cancel != nil {
			l.cancel()
			l.cancel = nil
		}
	drain:
		for {
			select {
			case <-l.queue:
				l.pending--
			default:
				break drain
			}
		}
	}
}

// WaitUntilIdle blocks until no message is running or queued.
func (d *Dispatcher) WaitUntilIdle(ctx context.Context) error {
	if d == nil {
		return errors.New("dispatcher is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		if d.isIdle() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Wait blocks until the root context is done and every lane has exited.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	<-d.done
}

func (d *Dispatcher) runLane(key string, l *lane) {
	defer d.wg.Done()
	for {
		select {
		case <-d.rootCtx.Done():
			d.mu.Lock()
			delete(d.lanes, key)
			d.mu.Unlock()
			return
		case item := <-l.queue:
			d.mu.Lock()
			l.pending--
			runCtx, cancel := context.WithCancel(d.rootCtx)
			l.cancel = cancel
			d.mu.Unlock()

			d.handle(runCtx, item)

			d.mu.Lock()
			l.cancel = nil
			d.mu.Unlock()
			cancel()
		case <-time.After(laneIdleTimeout):
			d.mu.Lock()
			if l.pending == 0 {
				delete(d.lanes, key)
				d.mu.Unlock()
				return
			}
			d.mu.Unlock()
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, item dispatchItem) {
	err := d.handler.HandleMessage(ctx, item.writer, item.msg)
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	logging.Logger().Error(
		"message handling failed",
		"channel", item.msg.Channel,
		"session_id", item.msg.SessionID,
		"err", err,
	)
	if writeErr := item.writer.WriteMessage(d.rootCtx, userVisibleHandlerError); writeErr != nil {
		logging.Logger().Warn("failed to write handler error message", "err", writeErr)
	}
}

func (d *Dispatcher) unreserve(l *lane) {
	d.mu.Lock()
	l.pending--
	d.mu.Unlock()
}

func (d *Dispatcher) isIdle() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		return true
	}
	for _, l := range d.lanes {
		if l.cancel != nil || l.pending > 0 {
			return false
		}
	}
	return true
}
