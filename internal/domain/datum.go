package domain

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
)

// AssetID identifies one ticket asset: the collection policy plus the asset name.
type AssetID struct {
	PolicyID  string `json:"policy_id"`
	AssetName string `json:"asset_name"`
}

func (a AssetID) String() string {
	return a.PolicyID + "." + a.AssetName
}

// TicketDatum is the ledger-resident state of one ticket asset. Values are superseded by
// transitions, never edited in place.
type TicketDatum struct {
	PolicyID      string   `json:"policy_id"`
	AssetName     string   `json:"asset_name"`
	Organizer     string   `json:"organizer"`
	Platform      string   `json:"platform"`
	OriginalPrice Lovelace `json:"original_price"`
	ResalePrice   Lovelace `json:"resale_price"`
	CurrentOwner  string   `json:"current_owner"`
	IsListed      bool     `json:"is_listed"`
	IsUsed        bool     `json:"is_used"`
	EventDate     int64    `json:"event_date"` // POSIX milliseconds
	SerialNumber  int64    `json:"serial_number"`
}

func (d TicketDatum) Asset() AssetID {
	return AssetID{PolicyID: d.PolicyID, AssetName: d.AssetName}
}

func (d TicketDatum) EventTime() time.Time {
	return time.UnixMilli(d.EventDate).UTC()
}

// State is the lifecycle state derived from the datum flags.
type State string

const (
	StateOwned  State = "OWNED"
	StateListed State = "LISTED"
	StateUsed   State = "USED"
)

func (d TicketDatum) State() State {
	switch {
	case d.IsUsed:
		return StateUsed
	case d.IsListed:
		return StateListed
	default:
		return StateOwned
	}
}

// AssetName for the given serial, e.g. TICKET007.
func AssetNameFor(serial int64) string {
	return fmt.Sprintf("TICKET%03d", serial)
}

// MintParams carries the immutable fields fixed when a ticket is minted.
type MintParams struct {
	PolicyID      string
	Organizer     string
	Platform      string
	OriginalPrice Lovelace
	EventDate     time.Time
	SerialNumber  int64
}

// NewTicketDatum returns the initial datum of a freshly minted ticket, owned by its organizer.
func NewTicketDatum(p MintParams) (TicketDatum, error) {
	switch {
	case p.PolicyID == "":
		return TicketDatum{}, errors.Wrap(ErrInvalidInput, "policy id required")
	case p.Organizer == "" || p.Platform == "":
		return TicketDatum{}, errors.Wrap(ErrInvalidInput, "organizer and platform addresses required")
	case p.SerialNumber <= 0:
		return TicketDatum{}, errors.Wrap(ErrInvalidInput, "serial number must be positive")
	case !ValidTicketPrice(p.OriginalPrice):
		return TicketDatum{}, errors.Wrapf(ErrInvalidInput, "price %d outside [%d, %d]", p.OriginalPrice, MinTicketPrice, MaxTicketPrice)
	}
	return TicketDatum{
		PolicyID:      p.PolicyID,
		AssetName:     AssetNameFor(p.SerialNumber),
		Organizer:     p.Organizer,
		Platform:      p.Platform,
		OriginalPrice: p.OriginalPrice,
		CurrentOwner:  p.Organizer,
		EventDate:     p.EventDate.UnixMilli(),
		SerialNumber:  p.SerialNumber,
	}, nil
}
