// Package session holds the per-session state shared across the Gate
// Pipeline, Async Auditor, and Handoff Orchestrator: the escalation
// flag the auditor raises and the orchestrator checks, and the
// bounded registry of agents participating in a session.
package session

import (
	"sync"
	"sync/atomic"
)

// ThreatState is a session-lifetime escalation flag. The first
// escalation wins: once set, it never de-escalates and its reason is
// never overwritten by a later call.
type ThreatState struct {
	escalated atomic.Bool
	once      sync.Once
	reason    atomic.Value
}

// NewThreatState returns a fresh, non-escalated state.
func NewThreatState() *ThreatState {
	return &ThreatState{}
}

// Escalate raises the flag with reason. Only the first call across
// the state's lifetime has any effect.
func (t *ThreatState) Escalate(reason string) {
	t.once.Do(func() {
		t.reason.Store(reason)
		t.escalated.Store(true)
	})
}

// Escalated reports whether the state has ever been escalated.
func (t *ThreatState) Escalated() bool {
	return t.escalated.Load()
}

// Reason returns the first escalation's reason, or "" if never
// escalated.
func (t *ThreatState) Reason() string {
	v := t.reason.Load()
	if v == nil {
		return ""
	}
	return v.(string)
}
