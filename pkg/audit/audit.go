// Package audit provides the best-effort audit store consumed by the
// Handoff Orchestrator: decision-ledger and swarm-audit rows keyed by
// (namespace, key). Writes are fire-and-forget by contract — a write
// failure here must never affect a dispatch's success or a request's
// verdict.
package audit

import (
	"context"
	"log/slog"
)

// Namespaces used by the Handoff Orchestrator.
const (
	NamespaceDecisionLedger = "decision_ledger"
	NamespaceSwarmAudit     = "swarm_audit"
)

// Store is the audit store capability: a namespaced key-value blob
// store.
type Store interface {
	Put(ctx context.Context, namespace, key string, value []byte) error
	Get(ctx context.Context, namespace, key string) (value []byte, found bool, err error)
}

// FireAndForget writes value under (namespace, key) on a detached
// goroutine, logging but otherwise swallowing any error. Callers that
// need the write's outcome must call store.Put directly instead.
func FireAndForget(store Store, namespace, key string, value []byte) {
	go func() {
		if err := store.Put(context.Background(), namespace, key, value); err != nil {
			slog.Warn("audit: fire-and-forget write failed", "namespace", namespace, "key", key, "error", err)
		}
	}()
}
