package session

import "strings"

// Synchronizer keeps the navigable route segment and the active
// conversation id converged. Route observations arriving before the
// authentication status is known are deferred, not dropped.
type Synchronizer struct {
	ctrl *Controller

	authReady bool
	deferred  string
	hasDefer  bool
}

func NewSynchronizer(ctrl *Controller) *Synchronizer {
	return &Synchronizer{ctrl: ctrl}
}

// SetAuthReady marks the authentication status as resolved and replays a
// deferred route observation, if any. The returned request, when ok, must
// be performed and finished like any selection.
func (s *Synchronizer) SetAuthReady() (SelectRequest, bool) {
	s.authReady = true
	if !s.hasDefer {
		return SelectRequest{}, false
	}
	route := s.deferred
	s.hasDefer = false
	s.deferred = ""
	return s.Observe(route)
}

// Observe reconciles an observed route segment against the session. Each
// divergence triggers exactly one reconciling action:
//
//   - segment present and different from the active id: select it;
//   - segment absent while an id is set: reset locally, no network call;
//   - otherwise: already converged, nothing to do.
func (s *Synchronizer) Observe(route string) (SelectRequest, bool) {
	route = strings.TrimSpace(route)
	if !s.authReady {
		s.deferred = route
		s.hasDefer = true
		return SelectRequest{}, false
	}

	if route != "" && route != s.ctrl.ConversationID() {
		return s.ctrl.StartSelect(route)
	}
	if route == "" && s.ctrl.ConversationID() != "" {
		s.ctrl.ResetLocal()
	}
	return SelectRequest{}, false
}
