package settlement

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/nft-ticket-protocol/internal/domain"
)

type record struct {
	out  Output
	tx   TxHandle
	prev *record
}

// Memory is an in-process ledger. Each ticket is a single-writer slot advanced by
// compare-and-swap on its current record, so of two racing submissions against the same
// state exactly one commits.
type Memory struct {
	mu     sync.RWMutex // guards slots and order, not the slot contents
	slots  map[domain.AssetID]*atomic.Pointer[record]
	order  []domain.AssetID
	now    func() time.Time
	onDone func(Event)
}

type MemoryOption func(*Memory)

// WithClock overrides the commit timestamp source.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// WithNotify registers a callback invoked after each commit.
func WithNotify(fn func(Event)) MemoryOption {
	return func(m *Memory) { m.onDone = fn }
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		slots: make(map[domain.AssetID]*atomic.Pointer[record]),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) slot(id domain.AssetID) (*atomic.Pointer[record], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.slots[id]
	if !ok {
		return nil, errors.Wrapf(domain.ErrNotFound, "ticket %s", id)
	}
	return s, nil
}

func (m *Memory) Mint(ctx context.Context, d domain.TicketDatum) (Output, error) {
	hash, err := MintHash(d)
	if err != nil {
		return Output{}, Failure(err, "hash mint")
	}
	now := m.now().UTC()
	rec := &record{
		out: Output{Ref: StateRef{TxHash: hash}, Datum: d, UpdatedAt: now},
		tx: TxHandle{
			Hash:        hash,
			Action:      "Mint",
			Produced:    StateRef{TxHash: hash},
			Signer:      d.Organizer,
			CommittedAt: now,
		},
	}

	m.mu.Lock()
	id := d.Asset()
	if _, exists := m.slots[id]; exists {
		m.mu.Unlock()
		return Output{}, errors.Wrapf(domain.ErrConflict, "ticket %s already minted", id)
	}
	s := new(atomic.Pointer[record])
	s.Store(rec)
	m.slots[id] = s
	m.order = append(m.order, id)
	m.mu.Unlock()

	m.notify(NewEvent(rec.tx, d, MintedEvent))
	return rec.out, nil
}

func (m *Memory) Fetch(ctx context.Context, id domain.AssetID) (Output, error) {
	s, err := m.slot(id)
	if err != nil {
		return Output{}, err
	}
	return s.Load().out, nil
}

func (m *Memory) Submit(ctx context.Context, sub Submission) (TxHandle, error) {
	if err := ctx.Err(); err != nil {
		return TxHandle{}, Failure(err, "submit")
	}
	s, err := m.slot(sub.Datum.Asset())
	if err != nil {
		return TxHandle{}, err
	}
	cur := s.Load()
	if err := CheckSubmission(cur.out, sub); err != nil {
		return TxHandle{}, err
	}
	hash, err := TxHash(sub)
	if err != nil {
		return TxHandle{}, Failure(err, "hash transaction")
	}

	now := m.now().UTC()
	produced := StateRef{TxHash: hash}
	next := &record{
		out: Output{Ref: produced, Datum: sub.Datum, UpdatedAt: now},
		tx: TxHandle{
			Hash:        hash,
			Action:      sub.Redeemer.Kind.String(),
			Consumed:    sub.Consumed,
			Produced:    produced,
			Payments:    sub.Plan,
			Signer:      sub.Signer,
			CommittedAt: now,
		},
		prev: cur,
	}
	if !s.CompareAndSwap(cur, next) {
		return TxHandle{}, conflict(sub.Consumed, s.Load().out.Ref)
	}

	m.notify(NewEvent(next.tx, sub.Datum, EventType(sub.Redeemer.Kind)))
	return next.tx, nil
}

func (m *Memory) Query(ctx context.Context, f Filter) ([]Output, error) {
	m.mu.RLock()
	slots := make([]*atomic.Pointer[record], 0, len(m.order))
	for _, id := range m.order {
		slots = append(slots, m.slots[id])
	}
	m.mu.RUnlock()

	var outs []Output
	for _, s := range slots {
		out := s.Load().out
		if f.Match(out.Datum) {
			outs = append(outs, out)
		}
	}
	if f.ListedOnly {
		sort.SliceStable(outs, func(i, j int) bool { return outs[i].UpdatedAt.Before(outs[j].UpdatedAt) })
	}
	if f.Limit > 0 && len(outs) > f.Limit {
		outs = outs[:f.Limit]
	}
	return outs, nil
}

// History returns committed transactions for a ticket, oldest first.
func (m *Memory) History(ctx context.Context, id domain.AssetID) ([]TxHandle, error) {
	s, err := m.slot(id)
	if err != nil {
		return nil, err
	}
	var txs []TxHandle
	for r := s.Load(); r != nil; r = r.prev {
		txs = append(txs, r.tx)
	}
	for i, j := 0, len(txs)-1; i < j; i, j = i+1, j-1 {
		txs[i], txs[j] = txs[j], txs[i]
	}
	return txs, nil
}

func (m *Memory) notify(e Event) {
	if m.onDone != nil {
		m.onDone(e)
	}
}
