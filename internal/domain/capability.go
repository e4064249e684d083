package domain

import "strings"

// Capabilities answers identity questions for the engine. The engine never resolves identity
// itself.
type Capabilities interface {
	IsOrganizer(address, ticketOrganizer string) bool
	IsCurrentOwner(address string, d TicketDatum) bool
}

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleOrganizer Role = "organizer"
	RoleUser      Role = "user"
)

// AllowList resolves roles from a static set of addresses.
type AllowList struct {
	admin      string
	organizers map[string]struct{}
}

func NewAllowList(admin string, organizers []string) *AllowList {
	set := make(map[string]struct{}, len(organizers))
	for _, o := range organizers {
		o = strings.TrimSpace(o)
		if o != "" {
			set[o] = struct{}{}
		}
	}
	return &AllowList{admin: strings.TrimSpace(admin), organizers: set}
}

// Role reports the highest role held by address. An admin that is also allow-listed as
// an organizer reports RoleAdmin but keeps its organizer capabilities.
func (a *AllowList) Role(address string) Role {
	if address == "" {
		return RoleUser
	}
	if address == a.admin {
		return RoleAdmin
	}
	if _, ok := a.organizers[address]; ok {
		return RoleOrganizer
	}
	return RoleUser
}

func (a *AllowList) IsOrganizer(address, ticketOrganizer string) bool {
	if address == "" || address != ticketOrganizer {
		return false
	}
	_, ok := a.organizers[address]
	return ok
}

func (a *AllowList) IsCurrentOwner(address string, d TicketDatum) bool {
	return address != "" && address == d.CurrentOwner
}

// CapabilityFuncs adapts plain predicates to Capabilities.
type CapabilityFuncs struct {
	Organizer func(address, ticketOrganizer string) bool
	Owner     func(address string, d TicketDatum) bool
}

func (c CapabilityFuncs) IsOrganizer(address, ticketOrganizer string) bool {
	return c.Organizer != nil && c.Organizer(address, ticketOrganizer)
}

func (c CapabilityFuncs) IsCurrentOwner(address string, d TicketDatum) bool {
	return c.Owner != nil && c.Owner(address, d)
}
