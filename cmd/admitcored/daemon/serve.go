package daemon

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/docker/admission-core/pkg/audit"
	"github.com/docker/admission-core/pkg/auditor"
	"github.com/docker/admission-core/pkg/coherence"
	"github.com/docker/admission-core/pkg/config"
	"github.com/docker/admission-core/pkg/embed"
	"github.com/docker/admission-core/pkg/gate"
	"github.com/docker/admission-core/pkg/healthserver"
	"github.com/docker/admission-core/pkg/orchestrator"
	"github.com/docker/admission-core/pkg/session"
	"github.com/docker/admission-core/pkg/transport"
	"github.com/docker/admission-core/pkg/vectorindex"
	"github.com/docker/admission-core/pkg/witness"
)

// charCodeDim and ngramDim are the two embedding spaces the daemon
// wires: L2 Analyze and the Coherence Gate run over the scanner's cheap
// char-code proxy, while the Async Auditor's discriminants run over a
// separate hashed word n-gram proxy, matching spec.md §1's requirement
// that no component confuse the two embedding spaces. Neither index
// pair is interchangeable with the other's embedder; a production
// deployment swaps either embed.Embedder independently without
// touching the other space's wiring.
const (
	charCodeDim = 64
	ngramDim    = 96
)

// runServe loads configuration, builds every package's runtime
// instance, and serves the transport and health endpoints until the
// process receives an interrupt.
func runServe(ctx context.Context, flags rootFlags) error {
	cfg, err := loadConfig(flags.configPath)
	if err != nil {
		return err
	}

	if err := setupOtel(ctx); err != nil {
		slog.Warn("admitcored: otel setup failed, spans will be no-op", "error", err)
	}

	if err := os.MkdirAll(flags.dataDir, 0o755); err != nil {
		return err
	}

	params := vectorindex.Params{
		M:              cfg.HNSW.M,
		EfConstruction: cfg.HNSW.EfConstruction,
		EfSearch:       cfg.HNSW.EfSearch,
		MaxElements:    cfg.HNSW.MaxElements,
	}

	attackIndex := vectorindex.OpenOrEmpty(filepath.Join(flags.dataDir, "attack-patterns.idx"), charCodeDim, params)
	coherenceIndex := vectorindex.OpenOrEmpty(filepath.Join(flags.dataDir, "coherence.idx"), charCodeDim, params)
	auditCoherenceIndex := vectorindex.OpenOrEmpty(filepath.Join(flags.dataDir, "audit-coherence.idx"), ngramDim, params)
	cleanIndex := vectorindex.OpenOrEmpty(filepath.Join(flags.dataDir, "clean-reference.idx"), ngramDim, params)

	store, err := audit.OpenSQLiteStore(filepath.Join(flags.dataDir, "audit.db"))
	if err != nil {
		slog.Warn("admitcored: audit store unavailable, writes will be dropped", "error", err)
		store = nil
	}

	witnessLog := witness.NewLog(0)
	threat := session.NewThreatState()
	registry := session.NewSessionAgentRegistry(0)

	embedder := embed.NewCachedEmbedder(embed.NewCharCodeEmbedder(), 30*time.Second, time.Minute)
	auditEmbedder := embed.NewCachedEmbedder(embed.NewNgramEmbedder(), 30*time.Second, time.Minute)
	coherenceGate := coherence.NewGate(coherenceIndex)

	pipeline := gate.New(*cfg, attackIndex, coherenceGate, embedder, threat, witnessLog)
	semanticAuditor := auditor.New(auditEmbedder, auditCoherenceIndex, cleanIndex, cfg.Auditor, threat)

	orch := orchestrator.New(pipeline, registry, storeOrNil(store), witnessLog, semanticAuditor)

	transportServer := transport.New(pipeline, transport.WithDispatcher(dispatchAdapter{orch: orch}))
	healthServer := healthserver.New(pipeline)

	slog.Info("admitcored: ready",
		"attack_patterns", attackIndex.Len(),
		"coherence_exemplars", coherenceIndex.Len(),
		"audit_coherence_exemplars", auditCoherenceIndex.Len(),
		"clean_exemplars", cleanIndex.Len(),
		"session_agents", registry.Size(),
	)

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancel := signal.NotifyContext(gctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g.Go(func() error {
		return serveHealth(runCtx, healthServer, flags.healthAddr)
	})

	g.Go(func() error {
		if flags.mcpAddr == "" {
			return transportServer.StartStdio(runCtx)
		}
		ln, err := net.Listen("tcp", flags.mcpAddr)
		if err != nil {
			return err
		}
		return transportServer.StartHTTP(runCtx, ln)
	})

	g.Go(func() error {
		<-runCtx.Done()
		slog.Info("admitcored: shutdown signal received")
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg := config.Default()
		return &cfg, nil
	}
	return config.Load(path)
}

func storeOrNil(s *audit.SQLiteStore) audit.Store {
	if s == nil {
		return nil
	}
	return s
}

func serveHealth(ctx context.Context, server *healthserver.Server, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return server.Serve(ctx, ln)
}
