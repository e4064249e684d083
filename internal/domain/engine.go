package domain

import "github.com/cockroachdb/errors"

type PayeeRole string

const (
	PayeeSeller    PayeeRole = "seller"
	PayeeOrganizer PayeeRole = "organizer"
	PayeePlatform  PayeeRole = "platform"
)

// Payment is one output of a settlement transaction.
type Payment struct {
	Payee  string    `json:"payee"`
	Role   PayeeRole `json:"role"`
	Amount Lovelace  `json:"amount"`
}

// PaymentPlan lists the payment outputs a transition requires, all funded by the signer.
type PaymentPlan []Payment

func (p PaymentPlan) Total() Lovelace {
	var total Lovelace
	for _, leg := range p {
		total += leg.Amount
	}
	return total
}

func (p PaymentPlan) To(role PayeeRole) Lovelace {
	var total Lovelace
	for _, leg := range p {
		if leg.Role == role {
			total += leg.Amount
		}
	}
	return total
}

func (p PaymentPlan) add(payee string, role PayeeRole, amount Lovelace) PaymentPlan {
	if amount <= 0 {
		return p
	}
	return append(p, Payment{Payee: payee, Role: role, Amount: amount})
}

// Transition is an accepted action: the successor datum and the payments that must commit
// with it.
type Transition struct {
	Action Action
	Signer string
	Prev   TicketDatum
	Next   TicketDatum
	Plan   PaymentPlan
}

// Engine validates actions against datums. It holds no mutable state and performs no I/O.
type Engine struct {
	caps Capabilities
}

func NewEngine(caps Capabilities) *Engine {
	return &Engine{caps: caps}
}

// Apply checks, in order: request format, terminal state, state precondition, price bound,
// signer capability. The first failure is returned and d is left untouched.
func (e *Engine) Apply(d TicketDatum, a Action, caller string) (Transition, error) {
	if err := a.Validate(); err != nil {
		return Transition{}, err
	}
	if d.IsUsed {
		return Transition{}, errors.Wrapf(ErrTicketAlreadyUsed, "%s on %s", a.Kind, d.Asset())
	}
	if err := checkState(d, a); err != nil {
		return Transition{}, err
	}
	if a.Kind == ListForResale && !ValidateResalePrice(d.OriginalPrice, a.NewPrice) {
		return Transition{}, errors.Wrapf(ErrPriceExceedsCeiling, "price %d exceeds maximum %d", a.NewPrice, MaxResalePrice(d.OriginalPrice))
	}
	if err := e.checkSigner(d, a, caller); err != nil {
		return Transition{}, err
	}

	next := d
	var plan PaymentPlan
	switch a.Kind {
	case BuyFromOrganizer:
		next.CurrentOwner = caller
		next.IsListed = false
		plan = plan.add(d.Organizer, PayeeOrganizer, d.OriginalPrice)
		plan = plan.add(d.Platform, PayeePlatform, PlatformFee(d.OriginalPrice))
	case BuyFromResale:
		fee := PlatformFee(d.ResalePrice)
		royalty := OrganizerRoyalty(d.ResalePrice)
		next.CurrentOwner = caller
		next.IsListed = false
		plan = plan.add(d.CurrentOwner, PayeeSeller, d.ResalePrice-fee-royalty)
		plan = plan.add(d.Organizer, PayeeOrganizer, royalty)
		plan = plan.add(d.Platform, PayeePlatform, fee)
	case ListForResale:
		next.ResalePrice = a.NewPrice
		next.IsListed = true
	case CancelListing:
		next.IsListed = false
	case UseTicket:
		next.IsUsed = true
		next.IsListed = false
	}

	return Transition{Action: a, Signer: caller, Prev: d, Next: next, Plan: plan}, nil
}

func checkState(d TicketDatum, a Action) error {
	switch a.Kind {
	case BuyFromOrganizer:
		if d.IsListed || d.CurrentOwner != d.Organizer {
			return errors.Wrapf(ErrNotForPrimarySale, "%s is held by %s", d.Asset(), d.CurrentOwner)
		}
	case BuyFromResale:
		if !d.IsListed || d.ResalePrice <= 0 {
			return errors.Wrapf(ErrNotListed, "%s cannot be bought from resale", d.Asset())
		}
	case ListForResale:
		if d.IsListed {
			return errors.Wrapf(ErrAlreadyListed, "%s listed at %d", d.Asset(), d.ResalePrice)
		}
	case CancelListing:
		if !d.IsListed {
			return errors.Wrapf(ErrNotListed, "%s has no listing to cancel", d.Asset())
		}
	}
	return nil
}

func (e *Engine) checkSigner(d TicketDatum, a Action, caller string) error {
	switch a.Kind {
	case BuyFromOrganizer, BuyFromResale:
		if caller == "" {
			return errors.Wrap(ErrUnauthorized, "purchase requires a buyer signature")
		}
		if caller == d.CurrentOwner {
			return errors.Wrapf(ErrUnauthorized, "%s already owns %s", caller, d.Asset())
		}
	case ListForResale, CancelListing:
		if !e.caps.IsCurrentOwner(caller, d) {
			return errors.Wrapf(ErrUnauthorized, "%s requires the current owner", a.Kind)
		}
	case UseTicket:
		if !e.caps.IsOrganizer(caller, d.Organizer) {
			return errors.Wrapf(ErrUnauthorized, "%s requires the event organizer", a.Kind)
		}
	}
	return nil
}
