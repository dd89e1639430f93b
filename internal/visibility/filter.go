// Package visibility decides which placement updates a caller may observe.
// It has no dependencies on storage and never fails: lacking permission
// shows up as a smaller (possibly empty) result, not as an error.
package visibility

import (
	"sort"

	"github.com/iliyamo/campus-placement/internal/model"
)

// FilterUpdates returns the subset of p.Updates observable by actor, newest
// first.  reg is the actor's own registration for p, or nil when the actor
// never applied.
//
//   - superadmin or the delegated admin: every update
//   - shortlisted registration:          every update
//   - any other registration:            common updates only
//   - no registration:                   nothing
//
// The returned slice is never nil and never aliases p.Updates.
func FilterUpdates(actor model.Actor, p *model.Placement, reg *model.Registration) []model.Update {
	if p == nil {
		return []model.Update{}
	}
	var keep func(model.Update) bool
	switch {
	case actor.Manages(p):
		keep = all
	case reg != nil && reg.PlacementID == p.ID && reg.StudentID == actor.ID:
		if reg.Status == model.RegistrationShortlisted {
			keep = all
		} else {
			keep = commonOnly
		}
	default:
		return []model.Update{}
	}

	out := make([]model.Update, 0, len(p.Updates))
	for _, u := range p.Updates {
		if keep(u) {
			out = append(out, u)
		}
	}
	SortNewestFirst(out)
	return out
}

// SortNewestFirst orders updates by PostedAt descending, breaking ties by
// descending ID so equal timestamps keep insertion order reversed.
func SortNewestFirst(us []model.Update) {
	sort.SliceStable(us, func(i, j int) bool {
		if !us[i].PostedAt.Equal(us[j].PostedAt) {
			return us[i].PostedAt.After(us[j].PostedAt)
		}
		return us[i].ID > us[j].ID
	})
}

func all(model.Update) bool          { return true }
func commonOnly(u model.Update) bool { return u.RoundType == model.RoundCommon }
