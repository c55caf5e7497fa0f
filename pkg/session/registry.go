package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/docker/admission-core/pkg/concurrent"
)

// defaultMaxAgents is the registry's default capacity.
const defaultMaxAgents = 10

// ErrRegistryFull is returned by Register when the registry is at
// capacity.
var ErrRegistryFull = errors.New("session: agent registry full")

// ErrAgentExists is returned by Register when role is already
// registered.
var ErrAgentExists = errors.New("session: role already registered")

// ErrAgentNotFound is returned when a role has no registered agent.
var ErrAgentNotFound = errors.New("session: role not registered")

// AgentInfo is one registered agent's identity and status.
type AgentInfo struct {
	ID      string
	Role    string
	Status  string
	Spawned time.Time
}

// SessionAgentRegistry is a bounded role -> AgentInfo mapping, scoped
// to one session's lifetime.
type SessionAgentRegistry struct {
	maxAgents int
	agents    *concurrent.Map[string, AgentInfo]
}

// NewSessionAgentRegistry builds a registry bounded at maxAgents
// (defaulting to 10 when maxAgents <= 0).
func NewSessionAgentRegistry(maxAgents int) *SessionAgentRegistry {
	if maxAgents <= 0 {
		maxAgents = defaultMaxAgents
	}
	return &SessionAgentRegistry{
		maxAgents: maxAgents,
		agents:    concurrent.NewMap[string, AgentInfo](),
	}
}

// Register adds a new agent under role. It fails if role is already
// registered or the registry is at capacity.
func (r *SessionAgentRegistry) Register(id, role string) error {
	if _, exists := r.agents.Load(role); exists {
		return fmt.Errorf("session: role %q: %w", role, ErrAgentExists)
	}
	if r.agents.Length() >= r.maxAgents {
		return fmt.Errorf("session: role %q: %w", role, ErrRegistryFull)
	}

	r.agents.Store(role, AgentInfo{ID: id, Role: role, Status: "active", Spawned: time.Now()})
	return nil
}

// Unregister removes role, if present.
func (r *SessionAgentRegistry) Unregister(role string) {
	r.agents.Delete(role)
}

// Get returns the agent registered under role.
func (r *SessionAgentRegistry) Get(role string) (AgentInfo, error) {
	info, ok := r.agents.Load(role)
	if !ok {
		return AgentInfo{}, fmt.Errorf("session: role %q: %w", role, ErrAgentNotFound)
	}
	return info, nil
}

// Size reports the number of currently registered agents.
func (r *SessionAgentRegistry) Size() int {
	return r.agents.Length()
}

// Shutdown clears every registered agent.
func (r *SessionAgentRegistry) Shutdown() {
	r.agents.Clear()
}
