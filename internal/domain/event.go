package domain

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// Event is a catalog entry tickets are minted against.
type Event struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Venue         string    `json:"venue"`
	Category      string    `json:"category"`
	Date          time.Time `json:"date"`
	Organizer     string    `json:"organizer"`
	PolicyID      string    `json:"policy_id"`
	TicketPrice   Lovelace  `json:"ticket_price"`
	TotalTickets  int64     `json:"total_tickets"`
	MintedTickets int64     `json:"minted_tickets"`
	CreatedAt     time.Time `json:"created_at"`
}

func (e Event) Available() int64 {
	return e.TotalTickets - e.MintedTickets
}

var Categories = []string{"Concert", "Sports", "Theater", "Festival", "Conference", "Workshop", "Other"}

type EventInput struct {
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Venue        string    `json:"venue"`
	Category     string    `json:"category"`
	Date         time.Time `json:"date"`
	TicketPrice  Lovelace  `json:"ticket_price"`
	TotalTickets int64     `json:"total_tickets"`
}

// NewEvent validates in and derives the collection policy id from the event id.
func NewEvent(in EventInput, organizer string, now time.Time) (Event, error) {
	if strings.TrimSpace(in.Name) == "" {
		return Event{}, errors.Wrap(ErrInvalidInput, "event name required")
	}
	if in.TotalTickets <= 0 {
		return Event{}, errors.Wrap(ErrInvalidInput, "total tickets must be positive")
	}
	if !ValidTicketPrice(in.TicketPrice) {
		return Event{}, errors.Wrapf(ErrInvalidInput, "ticket price %d outside [%d, %d]", in.TicketPrice, MinTicketPrice, MaxTicketPrice)
	}
	if in.Date.IsZero() {
		return Event{}, errors.Wrap(ErrInvalidInput, "event date required")
	}
	category := "Other"
	for _, c := range Categories {
		if strings.EqualFold(c, in.Category) {
			category = c
		}
	}

	id := uuid.New()
	return Event{
		ID:           id,
		Name:         strings.TrimSpace(in.Name),
		Description:  in.Description,
		Venue:        in.Venue,
		Category:     category,
		Date:         in.Date.UTC(),
		Organizer:    organizer,
		PolicyID:     PolicyIDFor(id),
		TicketPrice:  in.TicketPrice,
		TotalTickets: in.TotalTickets,
		CreatedAt:    now.UTC(),
	}, nil
}

// PolicyIDFor is the 28-byte blake2b digest of the event id, hex encoded.
func PolicyIDFor(id uuid.UUID) string {
	h, _ := blake2b.New(28, nil)
	h.Write(id[:])
	return hex.EncodeToString(h.Sum(nil))
}
