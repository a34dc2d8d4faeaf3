// Package application wires the core: configuration, persistence, memory,
// cognition, routing, federation and the per-session orchestrators. External
// surfaces (CLI, dashboard) talk to App, never to the internals directly.
package application

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/chitragupta/chitragupta/gateway/internal/domain/chetana"
	"github.com/chitragupta/chitragupta/gateway/internal/domain/entity"
	"github.com/chitragupta/chitragupta/gateway/internal/domain/rta"
	"github.com/chitragupta/chitragupta/gateway/internal/domain/service"
	"github.com/chitragupta/chitragupta/gateway/internal/domain/smriti/akasha"
	"github.com/chitragupta/chitragupta/gateway/internal/domain/smriti/compactor"
	"github.com/chitragupta/chitragupta/gateway/internal/domain/smriti/vidhi"
	domaintool "github.com/chitragupta/chitragupta/gateway/internal/domain/tool"
	"github.com/chitragupta/chitragupta/gateway/internal/infrastructure/config"
	"github.com/chitragupta/chitragupta/gateway/internal/infrastructure/embedding"
	"github.com/chitragupta/chitragupta/gateway/internal/infrastructure/eventbus"
	"github.com/chitragupta/chitragupta/gateway/internal/infrastructure/persistence"
	"github.com/chitragupta/chitragupta/gateway/internal/infrastructure/tantra"
	"github.com/chitragupta/chitragupta/gateway/internal/infrastructure/tool"
	"github.com/chitragupta/chitragupta/gateway/internal/infrastructure/vectorstore"
)

// App owns the long-lived core components.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	bus        eventbus.Bus
	db         *persistence.Manager
	index      *vectorstore.Index
	field      *akasha.Field
	streams    *compactor.Manager
	marga      *service.Marga
	router     *service.TaskRouter
	pool       *service.SlotPool
	dispatcher *service.Dispatcher
	bandit     *service.StrategyBandit
	registry   *domaintool.InMemoryRegistry
	tools      *tool.Executor
	aggregator *tantra.Aggregator
	clients    []*tantra.Client
	watcher    *config.Watcher
	miner      *vidhi.Miner
	matcher    *vidhi.Matcher

	providers service.ProviderRegistry
	locals    map[service.TaskType]service.LocalHandler
	rtaEngine *rta.Engine
	deviceID  string
}

// Options carries the CLI-supplied collaborators the core cannot construct
// itself.
type Options struct {
	Providers service.ProviderRegistry
	// ExtraTools registers CLI-owned tools (shell, editor, browser...).
	ExtraTools []domaintool.Tool
	DeviceID   string
}

// New builds the full core from configuration.
func New(cfg *config.Config, logger *zap.Logger, opts Options) (*App, error) {
	a := &App{
		cfg:       cfg,
		logger:    logger,
		providers: opts.Providers,
		deviceID:  opts.DeviceID,
	}
	if a.deviceID == "" {
		host, _ := os.Hostname()
		if host == "" {
			host = "local"
		}
		a.deviceID = host
	}

	if err := os.MkdirAll(cfg.SmritiHome, 0o755); err != nil {
		return nil, fmt.Errorf("create smriti home: %w", err)
	}

	// Events: chetana and tool events persist to the WAL for replay.
	pbus, err := eventbus.NewPersistentBus(eventbus.PersistentBusConfig{
		WALDir: filepath.Join(cfg.SmritiHome, "events"),
	}, logger)
	if err != nil {
		logger.Warn("Persistent event bus unavailable, using in-memory", zap.Error(err))
		a.bus = eventbus.NewInMemoryBus(logger, 256)
	} else {
		a.bus = pbus
	}

	// Persistence + vector index.
	a.db = persistence.NewManager(cfg.Database, cfg.SmritiHome, logger)
	vectorstore.SetLegacyHome(cfg.SmritiHome)

	embedder := a.buildEmbedder()
	if vdb, err := a.db.Vector(); err == nil {
		writer, _ := a.db.VectorWriter()
		repo := persistence.NewEmbeddingRepository(vdb, writer)
		a.index = vectorstore.NewIndex(repo, embedder, logger)
	} else {
		logger.Warn("Vector store disabled", zap.Error(err))
	}

	// Stigmergic field + streams.
	a.field = akasha.NewField(akashaConfig(cfg.Akasha), logger)
	a.streams, err = compactor.NewManager(cfg.SmritiHome, a.deviceID, cfg.Compactor.TotalTokenBudget, logger)
	if err != nil {
		return nil, fmt.Errorf("stream manager: %w", err)
	}

	// Routing tables.
	slots, rules := a.loadRoutingTables()
	a.pool = service.NewSlotPool(slots)
	a.dispatcher = service.NewDispatcher(a.pool)
	a.router, err = service.NewTaskRouter(slots, rules, logger)
	if err != nil {
		return nil, fmt.Errorf("task router: %w", err)
	}

	bindings := a.loadBindings()
	a.marga = service.NewMarga(bindings, a.providers, logger)

	// Bandit with persisted state.
	a.bandit = service.NewStrategyBandit(service.BanditMode(cfg.Router.Bandit), time.Now().UnixNano())
	a.loadBanditState()

	// Tools: registry, federation, executor.
	a.registry = domaintool.NewInMemoryRegistry()
	for _, t := range opts.ExtraTools {
		if err := a.registry.Register(t); err != nil {
			logger.Warn("Tool registration failed", zap.String("tool", t.Name()), zap.Error(err))
		}
	}
	a.aggregator = tantra.NewAggregator(logger)
	a.tools = tool.NewExecutor(a.registry, nil, logger)

	a.rtaEngine = rta.NewEngine(logger)
	a.locals = tool.NewLocalHandlers(tool.LocalDeps{
		Index:            a.index,
		Field:            a.field,
		WorkingDirectory: cfg.WorkingDirectory,
		Logger:           logger,
	})

	a.miner = vidhi.NewMiner(vidhi.MinerConfig{
		MinN:           cfg.Vidhi.MinN,
		MaxN:           cfg.Vidhi.MaxN,
		MinSessions:    cfg.Vidhi.MinSessions,
		MinSuccessRate: cfg.Vidhi.MinSuccessRate,
	}, logger)
	a.matcher = vidhi.NewMatcher(time.Now().UnixNano())

	a.watchRoutingTables()

	return a, nil
}

// Start connects the federation. Server failures degrade, never abort.
func (a *App) Start(ctx context.Context) error {
	for _, server := range a.cfg.Tantra.Servers {
		if err := a.connectServer(ctx, server); err != nil {
			a.logger.Warn("MCP server unavailable",
				zap.String("server", server.Name),
				zap.Error(err),
			)
		}
	}
	tool.RegisterFederatedTools(a.registry, a.aggregator)
	return nil
}

func (a *App) connectServer(ctx context.Context, spec config.MCPServerConfig) error {
	var transport tantra.Transport
	var err error
	switch spec.Transport {
	case "sse":
		transport, err = tantra.DialSSE(ctx, spec.URL, nil)
	default:
		transport, err = tantra.SpawnStdioTransport(spec.Command, spec.Args...)
	}
	if err != nil {
		return err
	}

	client := tantra.NewClient(spec.Name, transport, a.cfg.Tantra.RequestTimeout, a.logger)
	if err := client.Connect(ctx); err != nil {
		_ = client.Close()
		return err
	}

	tools, err := client.ListTools(ctx)
	if err != nil {
		a.logger.Warn("Tool discovery failed", zap.String("server", spec.Name), zap.Error(err))
	}
	resources, err := client.ListResources(ctx)
	if err != nil {
		resources = nil // resource support is optional
	}

	id := a.aggregator.AddServer(spec.Name, client, tools, resources)
	client.OnNotification(tantra.NotifyToolsListChanged, func(*tantra.Request) {
		refreshCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Tantra.RequestTimeout)
		defer cancel()
		if updated, err := client.ListTools(refreshCtx); err == nil {
			a.aggregator.UpdateServerTools(id, updated)
		}
	})

	a.clients = append(a.clients, client)
	return nil
}

// NewSession builds a per-session orchestrator. Cognitive state is owned by
// the session and never shared across sessions.
func (a *App) NewSession(sessionID, project string) *service.Orchestrator {
	mind := chetana.NewController(sessionID, a.chetanaConfig(), a.bus, a.logger)

	var recorder service.TurnRecorder
	if agentDB, err := a.db.Agent(); err == nil {
		recorder = persistence.NewSessionRepository(agentDB)
	}

	return service.NewOrchestrator(service.OrchestratorDeps{
		Config: service.OrchestratorConfig{
			SessionID:        sessionID,
			Project:          project,
			WorkingDirectory: a.cfg.WorkingDirectory,
			CostBudgetUSD:    a.cfg.Rta.CostBudgetUSD,
			AllowedDomains:   a.cfg.Rta.AllowedDomains,
			Retry: service.RetryConfig{
				MaxRetries:        a.cfg.Retry.MaxRetries,
				BaseDelay:         a.cfg.Retry.BaseDelay,
				MaxDelay:          a.cfg.Retry.MaxDelay,
				BackoffMultiplier: a.cfg.Retry.BackoffMultiplier,
			},
		},
		Marga:      a.marga,
		Rta:        a.rtaEngine,
		Router:     a.router,
		Dispatcher: a.dispatcher,
		Pool:       a.pool,
		Bandit:     a.bandit,
		Providers:  a.providers,
		Tools:      a.tools,
		Chetana:    mind,
		Recorder:   recorder,
		Bus:        a.bus,
		Locals:     a.locals,
		Logger:     a.logger,
	})
}

// MineProcedures runs the offline vidhi pass for a project and returns the
// mined procedures.
func (a *App) MineProcedures(project string) ([]vidhi.Vidhi, error) {
	agentDB, err := a.db.Agent()
	if err != nil {
		return nil, err
	}
	sessions, err := persistence.NewSessionRepository(agentDB).LoadToolCallSequences(project)
	if err != nil {
		return nil, err
	}
	return a.miner.Mine(project, sessions), nil
}

// MatchProcedure Thompson-samples the best vidhi for a query.
func (a *App) MatchProcedure(vidhis []vidhi.Vidhi, query string) *vidhi.Vidhi {
	return a.matcher.Match(vidhis, query)
}

// Index exposes the vector index to collaborators (consolidation jobs).
func (a *App) Index() *vectorstore.Index { return a.index }

// Field exposes the stigmergic field.
func (a *App) Field() *akasha.Field { return a.field }

// Streams exposes the stream manager.
func (a *App) Streams() *compactor.Manager { return a.streams }

// Bus exposes the event bus for subscribers.
func (a *App) Bus() eventbus.Bus { return a.bus }

// Rta exposes the invariant engine (audit log readers).
func (a *App) Rta() *rta.Engine { return a.rtaEngine }

// Aggregator exposes the federation view.
func (a *App) Aggregator() *tantra.Aggregator { return a.aggregator }

// Stop persists learned state and closes everything.
func (a *App) Stop() {
	a.saveBanditState()
	for _, c := range a.clients {
		_ = c.Close()
	}
	if a.watcher != nil {
		_ = a.watcher.Close()
	}
	a.db.Close()
	a.bus.Close()
}

// ── construction helpers ──

func (a *App) buildEmbedder() embedding.Provider {
	fallback := embedding.NewHashEmbedder(a.cfg.Embedding.Dimension)
	if a.cfg.Embedding.Endpoint == "" {
		return embedding.NewCachedProvider(fallback, 4096)
	}
	httpEmb, err := embedding.NewHTTPEmbedder(a.cfg.Embedding.Endpoint, a.cfg.Embedding.Model, a.cfg.Embedding.Timeout, a.logger)
	if err != nil {
		a.logger.Warn("Embedding endpoint unavailable, using hash fallback", zap.Error(err))
		return embedding.NewCachedProvider(fallback, 4096)
	}
	return embedding.NewCachedProvider(httpEmb, 4096)
}

func (a *App) chetanaConfig() chetana.ControllerConfig {
	c := a.cfg.Chetana
	return chetana.ControllerConfig{
		Bhava: chetana.BhavaConfig{
			FrustrationDelta:    c.FrustrationDelta,
			CorrectionDelta:     c.CorrectionDelta,
			FrustrationRecovery: c.FrustrationRecovery,
			ConfidenceDecay:     c.ConfidenceDecay,
			ConfidenceSuccess:   c.ConfidenceSuccess,
			ArousalSpawnDelta:   c.ArousalSpawnDelta,
			AlertThreshold:      c.AffectAlertThreshold,
		},
		Dhyana: chetana.DhyanaConfig{
			SalienceLambda:  c.SalienceLambda,
			ErrorBoost:      c.ErrorBoost,
			CorrectionBoost: c.CorrectionBoost,
			FocusWindow:     c.FocusWindow,
			MaxConcepts:     100,
		},
		Sankalpa: chetana.SankalpaConfig{
			MaxIntentions:        c.MaxIntentions,
			AbandonmentThreshold: c.AbandonmentThreshold,
		},
		AutonomyThreshold: c.AutonomyThreshold,
	}
}

func akashaConfig(c config.AkashaConfig) akasha.Config {
	return akasha.Config{
		InitialStrength: c.InitialStrength,
		MinStrength:     c.MinStrength,
		BaseBoost:       c.BaseBoost,
		DiminishAlpha:   c.DiminishAlpha,
		HalfLife:        c.HalfLife,
		ReinforceBeta:   c.ReinforceBeta,
		MaxTraces:       c.MaxTraces,
		ResultBoost:     c.ResultBoost,
		ResultBoostCap:  c.ResultBoostCap,
	}
}

// defaultSlots serves single-device setups without a slots.yaml.
func defaultSlots() ([]entity.AgentSlot, []config.RuleSpec) {
	slots := []entity.AgentSlot{
		{ID: "general", Role: "generalist", Capabilities: []string{"code", "search", "files"}, MaxConcurrent: 4},
	}
	rules := []config.RuleSpec{
		{Name: "fallback", Type: "always", Priority: 0, TargetSlot: "general"},
	}
	return slots, rules
}

func (a *App) loadRoutingTables() ([]entity.AgentSlot, []config.RuleSpec) {
	if a.cfg.Router.SlotsPath == "" {
		return defaultSlots()
	}
	file, err := config.LoadSlots(a.cfg.Router.SlotsPath)
	if err != nil {
		a.logger.Warn("Slots file unreadable, using defaults", zap.Error(err))
		return defaultSlots()
	}
	slots := make([]entity.AgentSlot, 0, len(file.Slots))
	for _, s := range file.Slots {
		slots = append(slots, entity.AgentSlot{
			ID: s.ID, Role: s.Role, Capabilities: s.Capabilities,
			MaxConcurrent: s.MaxConcurrent, AutoScale: s.AutoScale,
			MinInstances: s.MinInstances, MaxInstances: s.MaxInstances,
		})
	}
	return slots, file.Rules
}

func (a *App) loadBindings() []config.BindingSpec {
	if a.cfg.Marga.BindingsPath == "" {
		return nil
	}
	file, err := config.LoadBindings(a.cfg.Marga.BindingsPath)
	if err != nil {
		a.logger.Warn("Bindings file unreadable", zap.Error(err))
		return nil
	}
	return file.Bindings
}

// watchRoutingTables hot-reloads slots.yaml and bindings.yaml.
func (a *App) watchRoutingTables() {
	if a.cfg.Router.SlotsPath == "" && a.cfg.Marga.BindingsPath == "" {
		return
	}
	w, err := config.NewWatcher(a.logger)
	if err != nil {
		a.logger.Warn("Config watcher unavailable", zap.Error(err))
		return
	}
	a.watcher = w

	if path := a.cfg.Router.SlotsPath; path != "" {
		_ = w.Watch(path, func(string) {
			slots, rules := a.loadRoutingTables()
			a.router.ReplaceSlots(slots)
			if err := a.router.ReplaceRules(rules); err != nil {
				a.logger.Warn("Rule reload rejected", zap.Error(err))
			}
		})
	}
	if path := a.cfg.Marga.BindingsPath; path != "" {
		_ = w.Watch(path, func(string) {
			a.marga.ReplaceBindings(a.loadBindings())
		})
	}
}

func (a *App) banditStatePath() string {
	if a.cfg.Router.StatePath != "" {
		return a.cfg.Router.StatePath
	}
	return filepath.Join(a.cfg.SmritiHome, "bandit.json")
}

func (a *App) loadBanditState() {
	data, err := os.ReadFile(a.banditStatePath())
	if err != nil {
		return
	}
	if err := a.bandit.Deserialize(data); err != nil {
		a.logger.Warn("Bandit state corrupt, starting fresh", zap.Error(err))
	}
}

func (a *App) saveBanditState() {
	data, err := a.bandit.Serialize()
	if err != nil {
		return
	}
	if err := os.WriteFile(a.banditStatePath(), data, 0o644); err != nil {
		a.logger.Warn("Bandit state write failed", zap.Error(err))
	}
}
