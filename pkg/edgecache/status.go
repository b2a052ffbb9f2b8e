package edgecache

import "strings"

const (
	statusMiss        = "Miss"
	statusHit         = "Hit"
	statusReload      = "Bypass for Reload"
	statusBypass      = "Bypass Cookie"
	statusReadFailure = "Cache Read Exception: "

	statusPurged    = "Purged"
	statusCached    = "Cached"
	statusRefreshed = "Refreshed"
	statusWriteFail = "Cache Write Exception: "
)

// statusTrail accumulates the human-readable X-HTML-Edge-Cache-Status
// value: the lookup outcome followed by what happened afterwards.
type statusTrail struct {
	parts []string
}

func newStatusTrail() statusTrail {
	return statusTrail{parts: []string{statusMiss}}
}

// set replaces the lookup outcome.
func (s *statusTrail) set(outcome string) {
	s.parts[0] = outcome
}

// add appends a follow-up step.
func (s *statusTrail) add(step string) {
	s.parts = append(s.parts, step)
}

func (s *statusTrail) String() string {
	return strings.Join(s.parts, ", ")
}
