// Package bootphase tracks the short window after a payment or sign-in
// return during which redirect decisions are suspended.
package bootphase

import (
	"net/url"
	"sync"
	"time"
)

type Phase string

const (
	PhaseNormal                  Phase = "normal"
	PhaseStabilizingAfterPayment Phase = "stabilizing_after_payment"
	PhaseStabilizingAfterAuth    Phase = "stabilizing_after_auth"
)

// IsStabilizing reports whether redirects are suspended in this phase.
func (p Phase) IsStabilizing() bool {
	return p == PhaseStabilizingAfterPayment || p == PhaseStabilizingAfterAuth
}

type entry struct {
	phase    Phase
	deadline time.Time
}

// Controller owns the phase of every client. A phase whose window has
// elapsed reads as PhaseNormal, so enforcement always resumes.
type Controller struct {
	window time.Duration
	now    func() time.Time

	mu     sync.Mutex
	phases map[string]entry
}

func NewController(window time.Duration) *Controller {
	return &Controller{
		window: window,
		now:    time.Now,
		phases: make(map[string]entry),
	}
}

// Begin starts or restarts the stabilizing window for clientID. Beginning
// PhaseNormal is the same as Clear.
func (c *Controller) Begin(clientID string, phase Phase) {
	if !phase.IsStabilizing() {
		c.Clear(clientID)
		return
	}
	c.mu.Lock()
	c.phases[clientID] = entry{phase: phase, deadline: c.now().Add(c.window)}
	c.mu.Unlock()
}

func (c *Controller) Clear(clientID string) {
	c.mu.Lock()
	delete(c.phases, clientID)
	c.mu.Unlock()
}

func (c *Controller) Current(clientID string) Phase {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.phases[clientID]
	if !ok {
		return PhaseNormal
	}
	if !c.now().Before(e.deadline) {
		delete(c.phases, clientID)
		return PhaseNormal
	}
	return e.phase
}

// Prune drops elapsed windows and returns how many were removed.
func (c *Controller) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for id, e := range c.phases {
		if !now.Before(e.deadline) {
			delete(c.phases, id)
			removed++
		}
	}
	return removed
}

// DetectFromURL maps the success markers a payment or OAuth return leaves
// in the query string to the phase they start.
func DetectFromURL(u *url.URL) Phase {
	if u == nil {
		return PhaseNormal
	}
	q := u.Query()

	switch {
	case q.Get("payment") == "success",
		q.Get("checkout_session_id") != "",
		q.Get("subscription") == "activated":
		return PhaseStabilizingAfterPayment
	case q.Get("code") != "" && q.Get("state") != "":
		return PhaseStabilizingAfterAuth
	}
	return PhaseNormal
}
