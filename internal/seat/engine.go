// Package seat derives per role-class seat accounting for a company.
package seat

import "time"

type Class string

const (
	ClassManager Class = "manager"
	ClassTech    Class = "tech"
)

// ClassOf is the only place roles map to seat classes. admin and manager share
// the manager pool; tech has its own. Unknown roles fall back to tech and
// report ok=false.
func ClassOf(role string) (Class, bool) {
	switch role {
	case "admin", "manager":
		return ClassManager, true
	case "tech":
		return ClassTech, true
	}
	return ClassTech, false
}

type Counts struct {
	Manager int `json:"manager"`
	Tech    int `json:"tech"`
}

func (c Counts) Get(class Class) int {
	if class == ClassManager {
		return c.Manager
	}
	return c.Tech
}

func (c *Counts) add(class Class, n int) {
	if class == ClassManager {
		c.Manager += n
		return
	}
	c.Tech += n
}

// Ceilings are the purchased seats of a company.
type Ceilings struct {
	Manager int
	Tech    int
}

// Member is a user bound to the company.
type Member struct {
	Role string
}

type Invitation struct {
	Role      string
	Status    string
	ExpiresAt time.Time
}

type Breakdown struct {
	Purchased Counts `json:"purchased"`
	Used      Counts `json:"used"`
	Pending   Counts `json:"pending"`
	Available Counts `json:"available"`
	// Unclassified counts members and invitations whose role is not a known
	// role. They are accounted as tech.
	Unclassified int `json:"unclassified,omitempty"`
}

func (b Breakdown) AvailableFor(class Class) int {
	return b.Available.Get(class)
}

// Compute is pure and deterministic. Only invitations with status pending
// count; expiry is applied by LiveInvitations beforehand.
func Compute(ceilings Ceilings, members []Member, invitations []Invitation) Breakdown {
	b := Breakdown{
		Purchased: Counts{Manager: ceilings.Manager, Tech: ceilings.Tech},
	}
	for _, m := range members {
		class, ok := ClassOf(m.Role)
		if !ok {
			b.Unclassified++
		}
		b.Used.add(class, 1)
	}
	for _, inv := range invitations {
		if inv.Status != "pending" {
			continue
		}
		class, ok := ClassOf(inv.Role)
		if !ok {
			b.Unclassified++
		}
		b.Pending.add(class, 1)
	}
	b.Available = Counts{
		Manager: available(b.Purchased.Manager, b.Used.Manager, b.Pending.Manager),
		Tech:    available(b.Purchased.Tech, b.Used.Tech, b.Pending.Tech),
	}
	return b
}

// LiveInvitations drops pending invitations whose expiry has passed when lazy
// expiry is on. Without it the input is returned unchanged and such rows keep
// consuming a seat until swept.
func LiveInvitations(invitations []Invitation, now time.Time, lazy bool) []Invitation {
	if !lazy {
		return invitations
	}
	out := make([]Invitation, 0, len(invitations))
	for _, inv := range invitations {
		if inv.Status == "pending" && !now.Before(inv.ExpiresAt) {
			continue
		}
		out = append(out, inv)
	}
	return out
}

func available(purchased, used, pending int) int {
	if n := purchased - used - pending; n > 0 {
		return n
	}
	return 0
}
