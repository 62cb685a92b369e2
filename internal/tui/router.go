package tui

import (
	"context"

	"github.com/prpo-labs/prpo/internal/state"
)

// StateRouter persists the navigable location so the next launch reopens
// the same chat. It satisfies session.Router.
type StateRouter struct {
	DB      *state.DB
	Profile string
}

func (r *StateRouter) Navigate(id string) {
	if r == nil || r.DB == nil {
		return
	}
	// Best effort; a failed write only loses the restore-on-launch nicety.
	_ = r.DB.SetLastRoute(context.Background(), r.Profile, id)
}
