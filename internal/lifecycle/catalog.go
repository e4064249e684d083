package lifecycle

import (
	"context"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/nft-ticket-protocol/internal/domain"
)

// MemoryCatalog is a process-local Catalog, used when no Mongo catalog is configured.
type MemoryCatalog struct {
	mu     sync.Mutex
	events map[uuid.UUID]domain.Event
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{events: make(map[uuid.UUID]domain.Event)}
}

func (c *MemoryCatalog) CreateEvent(ctx context.Context, event domain.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.events[event.ID]; ok {
		return errors.Wrapf(domain.ErrConflict, "event %s exists", event.ID)
	}
	c.events[event.ID] = event
	return nil
}

func (c *MemoryCatalog) GetEvent(ctx context.Context, id uuid.UUID) (domain.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.events[id]
	if !ok {
		return domain.Event{}, errors.Wrapf(domain.ErrNotFound, "event %s", id)
	}
	return e, nil
}

func (c *MemoryCatalog) ListEvents(ctx context.Context) ([]domain.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Event, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (c *MemoryCatalog) ReserveSerials(ctx context.Context, id uuid.UUID, n int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.events[id]
	if !ok {
		return 0, errors.Wrapf(domain.ErrNotFound, "event %s", id)
	}
	if e.MintedTickets+n > e.TotalTickets {
		return 0, errors.Wrapf(domain.ErrSoldOut, "event %s has %d tickets left", id, e.Available())
	}
	first := e.MintedTickets + 1
	e.MintedTickets += n
	c.events[id] = e
	return first, nil
}

func (c *MemoryCatalog) ReleaseSerials(ctx context.Context, id uuid.UUID, first, n int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.events[id]
	if !ok {
		return false, errors.Wrapf(domain.ErrNotFound, "event %s", id)
	}
	if n <= 0 || e.MintedTickets != first+n-1 {
		return false, nil
	}
	e.MintedTickets -= n
	c.events[id] = e
	return true, nil
}
