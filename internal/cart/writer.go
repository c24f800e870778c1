package cart

import (
	"context"
	"sync"
	"time"

	"github.com/jeffersonhds/storefront/internal/domain"
	"github.com/sirupsen/logrus"
)

type opKind int

const (
	opRestore opKind = iota
	opPut
	opDelete
	opClear
	opReconcile
	opBarrier
)

func (k opKind) String() string {
	switch k {
	case opRestore:
		return "restore"
	case opPut:
		return "put"
	case opDelete:
		return "delete"
	case opClear:
		return "clear"
	case opReconcile:
		return "reconcile"
	default:
		return "barrier"
	}
}

type op struct {
	kind opKind
	line domain.CartLine
	id   string
	done chan struct{} // barrier only
}

// writer drains persistence ops in FIFO order on a single goroutine, so writes
// for the same line land in the order the mutations happened. enqueue never
// blocks on I/O.
type writer struct {
	mu      sync.Mutex
	queue   []op
	closed  bool
	signal  chan struct{}
	stopped chan struct{}

	apply    func(ctx context.Context, o op) error
	attempts int
	backoff  time.Duration
	timeout  time.Duration
	log      logrus.FieldLogger

	statsMu sync.Mutex
	stats   Stats
}

type Stats struct {
	Writes       int
	FailedWrites int
	Reconciles   int
	// Dropped counts mutations that arrived after Close and exist in memory only.
	Dropped int
	// Dirty means a write was lost and the stored mirror may differ from memory
	// until the next reconcile succeeds.
	Dirty bool
}

func newWriter(apply func(ctx context.Context, o op) error, attempts int, backoff, timeout time.Duration, log logrus.FieldLogger) *writer {
	w := &writer{
		signal:   make(chan struct{}, 1),
		stopped:  make(chan struct{}),
		apply:    apply,
		attempts: attempts,
		backoff:  backoff,
		timeout:  timeout,
		log:      log,
	}
	go w.loop()
	return w
}

func (w *writer) enqueue(o op) bool {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		if o.done != nil {
			close(o.done)
			return false
		}
		w.statsMu.Lock()
		w.stats.Dropped++
		w.statsMu.Unlock()
		w.log.WithField("op", o.kind.String()).WithField("product_id", o.id).
			Warn("cart store closed, change kept in memory only")
		return false
	}
	w.queue = append(w.queue, o)
	w.mu.Unlock()

	select {
	case w.signal <- struct{}{}:
	default:
	}
	return true
}

func (w *writer) loop() {
	defer close(w.stopped)
	for {
		o, ok, closed := w.next()
		if !ok {
			if closed {
				return
			}
			<-w.signal
			continue
		}
		w.handle(o)
	}
}

func (w *writer) next() (op, bool, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.queue) == 0 {
		return op{}, false, w.closed
	}
	o := w.queue[0]
	w.queue[0] = op{}
	w.queue = w.queue[1:]
	return o, true, false
}

func (w *writer) handle(o op) {
	if o.kind == opBarrier {
		if w.isDirty() {
			w.reconcile()
		}
		close(o.done)
		return
	}

	if err := w.applyWithRetry(o); err != nil {
		if o.kind == opRestore {
			// nothing was written; reconciling now would wipe the saved cart
			w.log.WithError(err).Error("failed to restore persisted cart")
			return
		}
		w.log.WithError(err).WithField("op", o.kind.String()).WithField("product_id", o.id).
			Error("cart persistence failed, mirror marked dirty")
		w.statsMu.Lock()
		w.stats.FailedWrites++
		w.stats.Dirty = true
		w.statsMu.Unlock()
		return
	}

	if o.kind != opRestore {
		w.statsMu.Lock()
		w.stats.Writes++
		w.statsMu.Unlock()
	}

	if w.isDirty() && w.queueEmpty() {
		w.reconcile()
	}
}

func (w *writer) reconcile() {
	if err := w.applyWithRetry(op{kind: opReconcile}); err != nil {
		w.log.WithError(err).Warn("cart reconcile failed, will retry on next write")
		return
	}
	w.statsMu.Lock()
	w.stats.Reconciles++
	w.stats.Dirty = false
	w.statsMu.Unlock()
	w.log.Info("cart mirror reconciled")
}

func (w *writer) applyWithRetry(o op) error {
	var err error
	for attempt := 1; attempt <= w.attempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		err = w.apply(ctx, o)
		cancel()
		if err == nil {
			return nil
		}
		if attempt < w.attempts {
			time.Sleep(w.backoff * time.Duration(attempt))
		}
	}
	return err
}

func (w *writer) isDirty() bool {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	return w.stats.Dirty
}

func (w *writer) queueEmpty() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue) == 0
}

func (w *writer) snapshotStats() Stats {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	return w.stats
}

// flush waits until every op enqueued before the call has been handled.
func (w *writer) flush(ctx context.Context) error {
	done := make(chan struct{})
	if !w.enqueue(op{kind: opBarrier, done: done}) {
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close drains the queue and stops the goroutine.
func (w *writer) close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.stopped
		return
	}
	w.closed = true
	w.mu.Unlock()

	select {
	case w.signal <- struct{}{}:
	default:
	}
	<-w.stopped
}
