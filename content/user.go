package content

import "github.com/google/uuid"

// interaction tracks one user's running history with a single article.
// Committed counters only ever grow; pending values stage the current
// round's exposure until the outcome (click or confirmed impression) is
// known.
type interaction struct {
	observed float64 // committed cumulative observed prominence
	pending  float64 // staged prominence from not-yet-confirmed allocations
	clicks   int     // committed click count
	staged   int     // staged clicks awaiting commit
}

// UserState is the per-user session record used to bucket (user, item)
// pairs into reward-model grid cells. It is owned by the caller and passed
// by reference into visit processing.
type UserState struct {
	ID      uuid.UUID
	history map[int]*interaction
}

// NewUserState creates an empty session record with a fresh identity.
func NewUserState() *UserState {
	return &UserState{ID: uuid.New(), history: make(map[int]*interaction)}
}

func (u *UserState) entry(itemID int) *interaction {
	e, ok := u.history[itemID]
	if !ok {
		e = &interaction{}
		u.history[itemID] = e
	}
	return e
}

// NotePendingProminence stages prominence exposure for an item that was
// just allocated. It becomes visible to ObservedProminence only after
// CommitProminence.
func (u *UserState) NotePendingProminence(itemID int, prominence float64) {
	e := u.entry(itemID)
	e.pending += prominence
}

// CommitProminence promotes the staged prominence for an item, raising the
// committed counter to the staged level.
func (u *UserState) CommitProminence(itemID int) {
	e := u.entry(itemID)
	e.observed += e.pending
	e.pending = 0
}

// NotePendingClick stages a click on an item.
func (u *UserState) NotePendingClick(itemID int) {
	u.entry(itemID).staged++
}

// CommitClicks promotes staged clicks to the committed counter.
func (u *UserState) CommitClicks(itemID int) {
	e := u.entry(itemID)
	e.clicks += e.staged
	e.staged = 0
}

// ObservedProminence returns the committed cumulative prominence the user
// has been exposed to for an item.
func (u *UserState) ObservedProminence(itemID int) float64 {
	if e, ok := u.history[itemID]; ok {
		return e.observed
	}
	return 0
}

// ClickCount returns the committed number of clicks on an item.
func (u *UserState) ClickCount(itemID int) int {
	if e, ok := u.history[itemID]; ok {
		return e.clicks
	}
	return 0
}

// Reset clears the session history, keeping the identity.
func (u *UserState) Reset() {
	u.history = make(map[int]*interaction)
}
