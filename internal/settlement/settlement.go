package settlement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robertarktes/nft-ticket-protocol/internal/domain"
)

// StateRef points at the output currently holding a ticket, like a UTxO reference.
type StateRef struct {
	TxHash string `json:"tx_hash"`
	Index  uint32 `json:"index"`
}

func (r StateRef) String() string {
	return fmt.Sprintf("%s#%d", r.TxHash, r.Index)
}

func (r StateRef) IsZero() bool {
	return r.TxHash == ""
}

// Output is the current ticket state as held by the ledger.
type Output struct {
	Ref       StateRef           `json:"ref"`
	Datum     domain.TicketDatum `json:"datum"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Submission is one transition ready for commit: it consumes Consumed and produces the
// successor datum plus every payment leg.
type Submission struct {
	Consumed StateRef
	Redeemer domain.Action
	Datum    domain.TicketDatum
	Plan     domain.PaymentPlan
	Signer   string
}

func NewSubmission(consumed StateRef, tr domain.Transition) Submission {
	return Submission{
		Consumed: consumed,
		Redeemer: tr.Action,
		Datum:    tr.Next,
		Plan:     tr.Plan,
		Signer:   tr.Signer,
	}
}

// TxHandle identifies a committed transaction.
type TxHandle struct {
	Hash        string             `json:"tx_hash"`
	Action      string             `json:"action"`
	Consumed    StateRef           `json:"consumed"`
	Produced    StateRef           `json:"produced"`
	Payments    domain.PaymentPlan `json:"payments"`
	Signer      string             `json:"signer"`
	CommittedAt time.Time          `json:"committed_at"`
}

// Adapter commits transitions atomically. Either the successor output and every payment leg
// commit together or nothing does. A submission whose Consumed ref is no longer current fails
// with domain.ErrSettlementConflict.
type Adapter interface {
	Submit(ctx context.Context, sub Submission) (TxHandle, error)
}

type Filter struct {
	Owner      string
	PolicyID   string
	ListedOnly bool
	Limit      int
}

func (f Filter) Match(d domain.TicketDatum) bool {
	if f.Owner != "" && d.CurrentOwner != f.Owner {
		return false
	}
	if f.PolicyID != "" && d.PolicyID != f.PolicyID {
		return false
	}
	if f.ListedOnly && (!d.IsListed || d.IsUsed) {
		return false
	}
	return true
}

// Ledger is the full settlement surface: reads, mints and atomic transitions.
type Ledger interface {
	Adapter
	Mint(ctx context.Context, d domain.TicketDatum) (Output, error)
	Fetch(ctx context.Context, id domain.AssetID) (Output, error)
	Query(ctx context.Context, f Filter) ([]Output, error)
	History(ctx context.Context, id domain.AssetID) ([]TxHandle, error)
}

// Event is the message emitted for every committed mint or transition.
type Event struct {
	Type        string             `json:"type"`
	TxHash      string             `json:"tx_hash"`
	Asset       domain.AssetID     `json:"asset"`
	Action      string             `json:"action"`
	Signer      string             `json:"signer"`
	Consumed    StateRef           `json:"consumed"`
	Produced    StateRef           `json:"produced"`
	Datum       domain.TicketDatum `json:"datum"`
	Payments    domain.PaymentPlan `json:"payments"`
	CommittedAt time.Time          `json:"committed_at"`
}

const MintedEvent = "ticket.minted"

// EventType is the routing key for a committed action, e.g. ticket.list_for_resale.
func EventType(kind domain.ActionKind) string {
	name := kind.String()
	var b strings.Builder
	b.WriteString("ticket.")
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func NewEvent(tx TxHandle, d domain.TicketDatum, eventType string) Event {
	return Event{
		Type:        eventType,
		TxHash:      tx.Hash,
		Asset:       d.Asset(),
		Action:      tx.Action,
		Signer:      tx.Signer,
		Consumed:    tx.Consumed,
		Produced:    tx.Produced,
		Datum:       d,
		Payments:    tx.Payments,
		CommittedAt: tx.CommittedAt,
	}
}

// CheckSubmission applies the structural rules every ledger enforces before commit.
func CheckSubmission(cur Output, sub Submission) error {
	if sub.Consumed.IsZero() {
		return failure("transaction consumes no state")
	}
	if cur.Ref != sub.Consumed {
		return conflict(sub.Consumed, cur.Ref)
	}
	if sub.Datum.Asset() != cur.Datum.Asset() {
		return failure("successor datum belongs to %s, consumed output holds %s", sub.Datum.Asset(), cur.Datum.Asset())
	}
	if field := changedImmutable(cur.Datum, sub.Datum); field != "" {
		return failure("successor datum changes immutable field %s of %s", field, cur.Datum.Asset())
	}
	if sub.Signer == "" {
		return failure("transaction has no signer")
	}
	for _, leg := range sub.Plan {
		if leg.Amount <= 0 || leg.Payee == "" {
			return failure("invalid payment leg %+v", leg)
		}
	}
	return nil
}

// changedImmutable names the first field fixed at mint that next differs on, or "".
func changedImmutable(cur, next domain.TicketDatum) string {
	switch {
	case next.Organizer != cur.Organizer:
		return "organizer"
	case next.Platform != cur.Platform:
		return "platform"
	case next.OriginalPrice != cur.OriginalPrice:
		return "original_price"
	case next.EventDate != cur.EventDate:
		return "event_date"
	case next.SerialNumber != cur.SerialNumber:
		return "serial_number"
	}
	return ""
}
