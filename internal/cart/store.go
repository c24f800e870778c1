// Package cart holds the shopping cart: an in-memory view that is the source of
// truth for readers, mirrored write-behind into the device store.
package cart

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jeffersonhds/storefront/internal/domain"
	"github.com/jeffersonhds/storefront/internal/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var ErrClosed = errors.New("cart store closed")

const tablePrefix = "cart_items"

// TableFor scopes the persisted cart to one identity.
func TableFor(id domain.Identity) string {
	return fmt.Sprintf("%s:%s", tablePrefix, id.ScopeID())
}

// Snapshot is an immutable copy of the cart at one point in time.
type Snapshot struct {
	Lines []domain.CartLine
	Total decimal.Decimal
	Count int
}

type Store struct {
	mu      sync.RWMutex
	lines   map[string]domain.CartLine
	mutated bool
	subs    map[int]chan Snapshot
	nextSub int

	restored chan struct{}
	table    *store.Table[domain.CartLine]
	w        *writer
	log      logrus.FieldLogger
	now      func() time.Time
}

type Option func(*options)

type options struct {
	attempts int
	backoff  time.Duration
	timeout  time.Duration
	now      func() time.Time
}

// WithWriteRetry sets how often a failed persistence write is retried.
func WithWriteRetry(attempts int, backoff time.Duration) Option {
	return func(o *options) {
		o.attempts = attempts
		o.backoff = backoff
	}
}

func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New builds the cart for table (see TableFor) and starts restoring the
// persisted lines in the background.
func New(s store.Store, table string, log logrus.FieldLogger, opts ...Option) *Store {
	o := options{attempts: 3, backoff: 100 * time.Millisecond, timeout: 5 * time.Second, now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	if o.attempts <= 0 {
		o.attempts = 1
	}

	c := &Store{
		lines:    make(map[string]domain.CartLine),
		subs:     make(map[int]chan Snapshot),
		restored: make(chan struct{}),
		table:    store.NewTable(s, table, func(l domain.CartLine) string { return l.ProductID }),
		log:      log.WithFields(logrus.Fields{"component": "cart", "table": table}),
		now:      o.now,
	}
	c.w = newWriter(c.persist, o.attempts, o.backoff, o.timeout, c.log)
	c.w.enqueue(op{kind: opRestore})
	return c
}

// Add puts qty more units of item in the cart. The unit price is locked to the
// item's discounted price when the line is first created.
func (c *Store) Add(item domain.CatalogItem, qty int) {
	if qty <= 0 {
		qty = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.lines[item.ID]; ok {
		c.setQuantityLocked(item.ID, existing.Quantity+qty)
		return
	}

	line := domain.NewCartLine(item, qty, c.now())
	c.lines[item.ID] = line
	c.mutated = true
	c.w.enqueue(op{kind: opPut, line: line, id: line.ProductID})
	c.publishLocked()
}

// SetQuantity changes a line's quantity; qty <= 0 removes the line. Unknown ids
// are ignored.
func (c *Store) SetQuantity(id string, qty int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setQuantityLocked(id, qty)
}

func (c *Store) setQuantityLocked(id string, qty int) {
	if qty <= 0 {
		c.removeLocked(id)
		return
	}
	line, ok := c.lines[id]
	if !ok {
		return
	}
	line.Quantity = qty
	c.lines[id] = line
	c.mutated = true
	c.w.enqueue(op{kind: opPut, line: line, id: id})
	c.publishLocked()
}

func (c *Store) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(id)
}

func (c *Store) removeLocked(id string) {
	if _, ok := c.lines[id]; !ok {
		return
	}
	delete(c.lines, id)
	c.mutated = true
	c.w.enqueue(op{kind: opDelete, id: id})
	c.publishLocked()
}

// Clear empties the cart, after checkout or on sign-out.
func (c *Store) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = make(map[string]domain.CartLine)
	c.mutated = true
	c.w.enqueue(op{kind: opClear})
	c.publishLocked()
}

func (c *Store) Line(id string) (domain.CartLine, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, ok := c.lines[id]
	return l, ok
}

// Lines returns the lines in the order they were added.
func (c *Store) Lines() []domain.CartLine {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.linesLocked()
}

func (c *Store) Total() decimal.Decimal {
	return c.Snapshot().Total
}

// Count is the number of units, not of lines.
func (c *Store) Count() int {
	return c.Snapshot().Count
}

func (c *Store) IsEmpty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.lines) == 0
}

func (c *Store) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

// Subscribe returns a channel that always holds the newest snapshot; a slow
// reader skips intermediate states. The current snapshot is delivered at once.
// Call the returned func to unsubscribe.
func (c *Store) Subscribe() (<-chan Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan Snapshot, 1)
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.snapshotLocked()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if _, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(ch)
			}
		})
	}
}

// Restored is closed once the first attempt to load the persisted cart has finished.
func (c *Store) Restored() <-chan struct{} {
	return c.restored
}

// Flush waits for every pending persistence write.
func (c *Store) Flush(ctx context.Context) error {
	return c.w.flush(ctx)
}

func (c *Store) Stats() Stats {
	return c.w.snapshotStats()
}

// Close drains pending writes, stops the writer and closes subscriptions.
func (c *Store) Close() error {
	c.w.close()

	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
	return nil
}

func (c *Store) linesLocked() []domain.CartLine {
	out := make([]domain.CartLine, 0, len(c.lines))
	for _, l := range c.lines {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AddedAt.Equal(out[j].AddedAt) {
			return out[i].ProductID < out[j].ProductID
		}
		return out[i].AddedAt.Before(out[j].AddedAt)
	})
	return out
}

func (c *Store) snapshotLocked() Snapshot {
	lines := c.linesLocked()
	total := decimal.Zero
	count := 0
	for _, l := range lines {
		total = total.Add(l.Subtotal())
		count += l.Quantity
	}
	return Snapshot{Lines: lines, Total: total, Count: count}
}

func (c *Store) publishLocked() {
	if len(c.subs) == 0 {
		return
	}
	snap := c.snapshotLocked()
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

// persist runs on the writer goroutine only.
func (c *Store) persist(ctx context.Context, o op) error {
	switch o.kind {
	case opRestore:
		return c.restore(ctx)
	case opPut:
		return c.table.Put(ctx, o.line)
	case opDelete:
		return c.table.Delete(ctx, o.id)
	case opClear:
		return c.table.Clear(ctx)
	case opReconcile:
		lines := c.Lines()
		if err := c.table.Clear(ctx); err != nil {
			return err
		}
		return c.table.PutAll(ctx, lines)
	}
	return nil
}

func (c *Store) restore(ctx context.Context) error {
	defer c.closeRestored()

	loaded, bad, err := c.table.All(ctx)
	if err != nil {
		return fmt.Errorf("load cart: %w", err)
	}

	for _, b := range bad {
		c.log.WithError(b).Warn("skipping unreadable cart line")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mutated {
		// memory already moved on; make the mirror follow it instead
		if len(loaded) > 0 || len(bad) > 0 {
			c.w.enqueue(op{kind: opReconcile})
		}
		c.log.WithField("loaded", len(loaded)).Info("cart mutated before restore, keeping in-memory view")
		return nil
	}

	for _, l := range loaded {
		if l.Quantity <= 0 {
			continue
		}
		c.lines[l.ProductID] = l
	}
	if len(c.lines) > 0 {
		c.publishLocked()
	}
	c.log.WithField("lines", len(c.lines)).Debug("cart restored")
	return nil
}

func (c *Store) closeRestored() {
	select {
	case <-c.restored:
	default:
		close(c.restored)
	}
}
