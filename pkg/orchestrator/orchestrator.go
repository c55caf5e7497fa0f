// Package orchestrator implements the Handoff Orchestrator (spec.md
// §4.7): every inter-agent message is dispatched through the Gate
// Pipeline before delivery, and a successful dispatch is recorded in
// the decision ledger, the swarm audit trail, and a provenance witness
// — all as fire-and-forget side effects that can never turn a
// successful dispatch into a failed one.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/docker/admission-core/pkg/audit"
	"github.com/docker/admission-core/pkg/auditor"
	"github.com/docker/admission-core/pkg/concurrent"
	"github.com/docker/admission-core/pkg/gate"
	"github.com/docker/admission-core/pkg/session"
	"github.com/docker/admission-core/pkg/witness"
)

// maxRecentHandoffs bounds the in-memory ring of recently dispatched
// handoffs kept for RecentHandoffs; older entries are evicted, the
// durable record lives in the audit store and witness log instead.
const maxRecentHandoffs = 200

// Message is an inter-agent message submitted for dispatch.
type Message struct {
	ID       string
	FromRole string
	ToRole   string
	Content  string
}

// Handoff is a single dispatched message's record (spec.md §3).
type Handoff struct {
	MessageID       string             `json:"message_id"`
	FromRole        string             `json:"from_role"`
	ToRole          string             `json:"to_role"`
	DeliveredText   string             `json:"delivered_text"`
	ContentHash     string             `json:"content_hash"`
	DefenceResult   *gate.DefenceResult `json:"defence_result"`
	Timestamp       time.Time          `json:"timestamp"`
	WitnessRecorded bool               `json:"witness_recorded"`
}

// ledgerRow is the decision_ledger namespace's value shape (spec.md
// §6).
type ledgerRow struct {
	MessageID   string    `json:"messageId"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	ContentHash string    `json:"contentHash"`
	Verdict     string    `json:"verdict"`
	Timestamp   time.Time `json:"timestamp"`
}

// SecurityViolation is raised when a dispatch's content is BLOCKED.
// The message is never delivered.
type SecurityViolation struct {
	MessageID   string
	BlockReason string
	Result      *gate.DefenceResult
}

func (e *SecurityViolation) Error() string {
	return fmt.Sprintf("orchestrator: security violation on message %s: %s", e.MessageID, e.BlockReason)
}

// Pipeline is the subset of gate.Pipeline the orchestrator needs. It
// is an interface so tests can stub the pipeline's verdicts without
// building a full gate.Pipeline.
type Pipeline interface {
	Process(ctx context.Context, text string) *gate.DefenceResult
}

// Auditor is the subset of auditor.Auditor the orchestrator needs to
// trigger a background consensus check on a delivered handoff's
// content. It is an interface so tests can stub verdicts without
// constructing a real vector index.
type Auditor interface {
	Audit(ctx context.Context, text string) (auditor.Verdict, error)
}

// Orchestrator dispatches messages through a Pipeline and records the
// resulting Handoffs.
type Orchestrator struct {
	pipeline Pipeline
	registry *session.SessionAgentRegistry
	store    audit.Store
	witness  *witness.Log
	auditor  Auditor

	lastMessage *concurrent.Map[string, string] // role -> last outbound message id
	recent      *concurrent.Slice[*Handoff]      // ring of recently dispatched handoffs
}

// New builds an Orchestrator. store, witnessLog, and auditor may all
// be nil: a nil store/witnessLog skips the corresponding side effect,
// a nil auditor skips the background consensus audit entirely.
func New(pipeline Pipeline, registry *session.SessionAgentRegistry, store audit.Store, witnessLog *witness.Log, asyncAuditor Auditor) *Orchestrator {
	return &Orchestrator{
		pipeline:    pipeline,
		registry:    registry,
		store:       store,
		witness:     witnessLog,
		auditor:     asyncAuditor,
		lastMessage: concurrent.NewMap[string, string](),
		recent:      concurrent.NewSlice[*Handoff](),
	}
}

// RegisterAgent adds id under role to the session's bounded agent
// registry.
func (o *Orchestrator) RegisterAgent(id, role string) error {
	return o.registry.Register(id, role)
}

// Dispatch runs message.Content through the Gate Pipeline. On BLOCKED
// it returns a *SecurityViolation and never delivers the message. On
// SAFE or FLAGGED it builds a Handoff, records it as the sender's
// last message, and fires the three best-effort side effects (spec.md
// §4.7: ledger entry, swarm audit entry, provenance witness).
func (o *Orchestrator) Dispatch(ctx context.Context, message Message) (*Handoff, error) {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}

	result := o.pipeline.Process(ctx, message.Content)
	if result.IsBlocked {
		return nil, &SecurityViolation{
			MessageID:   message.ID,
			BlockReason: result.BlockReason,
			Result:      result,
		}
	}

	contentHash := gate.ContentHash(result.SafeText)
	handoff := &Handoff{
		MessageID:     message.ID,
		FromRole:      message.FromRole,
		ToRole:        message.ToRole,
		DeliveredText: result.SafeText,
		ContentHash:   contentHash,
		DefenceResult: result,
		Timestamp:     time.Now(),
	}

	o.lastMessage.Store(message.FromRole, message.ID)
	o.recent.AppendBounded(handoff, maxRecentHandoffs)

	o.recordSideEffects(handoff, string(result.Verdict))
	o.triggerAudit(ctx, handoff)

	return handoff, nil
}

// triggerAudit runs the Async Auditor's consensus check on a delivered
// handoff's content on a detached goroutine (spec.md §4.5: the audit
// never blocks the handoff already returned to the caller). A
// consensus escalation flips the shared ThreatState, which the Gate
// Pipeline checks at its next phase boundary.
func (o *Orchestrator) triggerAudit(ctx context.Context, h *Handoff) {
	if o.auditor == nil {
		return
	}
	go func() {
		verdict, err := o.auditor.Audit(context.WithoutCancel(ctx), h.DeliveredText)
		if err != nil {
			slog.Warn("orchestrator: async audit failed", "message_id", h.MessageID, "error", err)
			return
		}
		if verdict.Escalate {
			slog.Warn("orchestrator: async auditor escalated", "message_id", h.MessageID, "reason", verdict.Reason)
		}
	}()
}

// LastMessageID returns the id of the most recent outbound message
// dispatched by role.
func (o *Orchestrator) LastMessageID(role string) (string, bool) {
	return o.lastMessage.Load(role)
}

// RecentHandoffs returns the most recently dispatched handoffs, oldest
// first, bounded by maxRecentHandoffs. It's a cheap in-memory view for
// inspection/debugging; the durable record is the audit store and
// witness log.
func (o *Orchestrator) RecentHandoffs() []*Handoff {
	return o.recent.All()
}

// Shutdown clears the session's agent registry.
func (o *Orchestrator) Shutdown() {
	o.registry.Shutdown()
}

// recordSideEffects fires the ledger write, swarm-audit write, and
// provenance witness for a delivered handoff. Any of the three may
// fail independently without affecting the handoff already returned
// to the caller (spec.md §4.7, §7 AuditWriteError).
func (o *Orchestrator) recordSideEffects(h *Handoff, verdict string) {
	if o.store != nil {
		row := ledgerRow{
			MessageID:   h.MessageID,
			From:        h.FromRole,
			To:          h.ToRole,
			ContentHash: h.ContentHash,
			Verdict:     verdict,
			Timestamp:   h.Timestamp,
		}
		if blob, err := json.Marshal(row); err != nil {
			slog.Warn("orchestrator: marshal ledger row failed", "message_id", h.MessageID, "error", err)
		} else {
			audit.FireAndForget(o.store, audit.NamespaceDecisionLedger, "ledger:"+h.ContentHash, blob)
		}

		if blob, err := json.Marshal(h); err != nil {
			slog.Warn("orchestrator: marshal handoff failed", "message_id", h.MessageID, "error", err)
		} else {
			audit.FireAndForget(o.store, audit.NamespaceSwarmAudit, "handoff:"+h.MessageID, blob)
		}
	}

	if o.witness != nil {
		go func() {
			o.witness.Record(witness.Provenance, h.ContentHash, map[string]string{
				"message_id": h.MessageID,
				"from":       h.FromRole,
				"to":         h.ToRole,
				"verdict":    verdict,
			})
		}()
		h.WitnessRecorded = true
	}
}
