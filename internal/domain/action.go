package domain

import "github.com/cockroachdb/errors"

// ActionKind enumerates the redeemers. The numeric value is the on-chain constructor index.
type ActionKind int

const (
	BuyFromResale ActionKind = iota
	BuyFromOrganizer
	ListForResale
	CancelListing
	UseTicket
)

var actionNames = [...]string{
	BuyFromResale:    "BuyFromResale",
	BuyFromOrganizer: "BuyFromOrganizer",
	ListForResale:    "ListForResale",
	CancelListing:    "CancelListing",
	UseTicket:        "UseTicket",
}

func (k ActionKind) Valid() bool {
	return k >= BuyFromResale && k <= UseTicket
}

func (k ActionKind) String() string {
	if !k.Valid() {
		return "Unknown"
	}
	return actionNames[k]
}

func ParseActionKind(s string) (ActionKind, error) {
	for i, name := range actionNames {
		if name == s {
			return ActionKind(i), nil
		}
	}
	return 0, errors.Wrapf(ErrInvalidAction, "unknown action %q", s)
}

// Action is a transition request. Only ListForResale carries a payload.
type Action struct {
	Kind     ActionKind
	NewPrice Lovelace
}

func ListAt(price Lovelace) Action {
	return Action{Kind: ListForResale, NewPrice: price}
}

func Do(kind ActionKind) Action {
	return Action{Kind: kind}
}

func (a Action) String() string {
	return a.Kind.String()
}

// Validate checks the request format only. State rules belong to the engine.
func (a Action) Validate() error {
	if !a.Kind.Valid() {
		return errors.Wrapf(ErrInvalidAction, "unknown action kind %d", int(a.Kind))
	}
	if a.Kind == ListForResale {
		if a.NewPrice <= 0 {
			return errors.Wrapf(ErrInvalidAction, "resale price must be positive, got %d", a.NewPrice)
		}
	} else if a.NewPrice != 0 {
		return errors.Wrapf(ErrInvalidAction, "%s takes no price", a.Kind)
	}
	return nil
}
