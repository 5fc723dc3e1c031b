package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"adjutant/internal/adapter/llm"
	"adjutant/internal/adapter/memory"
	"adjutant/internal/adapter/tool"
	"adjutant/internal/domain"
	"adjutant/internal/infra/config"
	"adjutant/internal/plugin"
	"adjutant/internal/security"
	"adjutant/internal/usecase"
	"adjutant/internal/usecase/eventbus"
	"adjutant/internal/usecase/multiagent"
	"adjutant/internal/usecase/records"
	"adjutant/internal/usecase/specialist"
)

// engine holds the assembled core: everything except channels, gateway,
// and scheduler, which the serve/chat paths wire themselves.
type engine struct {
	cfg      *config.Config
	log      *slog.Logger
	bus      domain.EventBus
	store    *records.Store
	sessions *usecase.SessionManager
	orch     *usecase.Orchestrator
	archive  domain.Archive

	closers []func(context.Context) error
}

// buildEngine assembles the full cycle from configuration. Callers must
// call close when done.
func buildEngine(ctx context.Context, cfg *config.Config, log *slog.Logger) (*engine, error) {
	e := &engine{cfg: cfg, log: log}

	bus := eventbus.New(log)
	e.bus = bus
	e.addCloser(func(context.Context) error { bus.Close(); return nil })

	store, err := records.NewStore(cfg.Records.DataDir, log, bus)
	if err != nil {
		return nil, e.fail(ctx, fmt.Errorf("record store: %w", err))
	}
	e.store = store

	agentReg := multiagent.NewRegistry(log)
	if err := multiagent.Seed(agentReg, store); err != nil {
		return nil, e.fail(ctx, fmt.Errorf("seed agents: %w", err))
	}

	llmReg, err := llm.NewRegistryFromConfig(cfg.LLM, log)
	if err != nil {
		return nil, e.fail(ctx, fmt.Errorf("llm providers: %w", err))
	}
	def, aux := llmReg.Default(), llmReg.Aux()

	toolReg, err := e.buildTools(ctx, store)
	if err != nil {
		return nil, e.fail(ctx, err)
	}

	intake := specialist.NewIntake(def, 0, log)
	planner := specialist.NewPlanner(def, cfg.Records.StaleDays, log)
	analyst := specialist.NewAnalyst(def, cfg.Records.AnalysisCorpusLimit, cfg.Records.MinRequestsForAnalysis, log)
	runner := specialist.NewRunner(def, toolReg, cfg.Engine.MaxToolRounds, bus, log)

	exec := usecase.NewExecutor(intake, planner, analyst, runner, log)
	table := multiagent.NewRoundTable(exec, bus, multiagent.RoundTableOptions{
		Timeout:    cfg.Engine.AgentTimeout,
		RetryOnce:  cfg.Engine.RetryOnce,
		RetryDelay: cfg.Engine.RetryDelay,
	}, log)

	router := multiagent.NewRouter(agentReg, specialist.NewTopicClassifier(aux, log), multiagent.RouterOptions{
		ClassifierTimeout: cfg.Router.ClassifierTimeout,
		ExtraAliases:      cfg.Router.ExtraAliases,
	}, log)

	var cipher *security.SessionCipher
	if cfg.Session.Encrypt {
		cipher, err = security.NewSessionCipher(os.Getenv("ADJUTANT_SESSION_KEY"))
		if err != nil {
			return nil, e.fail(ctx, fmt.Errorf("session cipher: %w", err))
		}
	}
	sessions := usecase.NewSessionManager(cfg.Session.Dir, cipher, usecase.SessionDefaults{
		ActiveAgents:        cfg.Engine.ActiveAgents,
		FacilitatorEnabled:  cfg.Engine.Facilitator.Enabled,
		FacilitatorInterval: cfg.Engine.Facilitator.Interval,
	})
	e.sessions = sessions

	var fac *specialist.Facilitator
	if cfg.Engine.Facilitator.Enabled {
		fac = specialist.NewFacilitator(aux, cfg.Engine.Facilitator.Window, log)
	}

	e.orch = usecase.NewOrchestrator(
		store,
		agentReg,
		router,
		table,
		sessions,
		usecase.NewSecretScanner(),
		usecase.NewContextBuilder(cfg.Session.TokenBudget, cfg.Session.TokenModel, log),
		fac,
		intake,
		usecase.NewOutputGenerator(def, log),
		bus,
		usecase.OrchestratorOptions{
			MaxSessionMessages:  cfg.Session.MaxMessages,
			FacilitatorInterval: cfg.Engine.Facilitator.Interval,
		},
		log,
	)

	if err := e.buildArchive(); err != nil {
		return nil, e.fail(ctx, err)
	}

	return e, nil
}

// buildTools assembles the tool registry: builtin record tools, the
// optional browser tool, MCP server bridges, and Wasm plugins.
func (e *engine) buildTools(ctx context.Context, store *records.Store) (*tool.Registry, error) {
	reg := tool.NewRegistry(e.log)

	if err := tool.RegisterRecordTools(reg, store, e.cfg.Tools.SearchLimit, e.log); err != nil {
		return nil, fmt.Errorf("record tools: %w", err)
	}
	if err := tool.RegisterBrowserTools(reg, e.cfg.Tools.Browser, e.log); err != nil {
		return nil, fmt.Errorf("browser tools: %w", err)
	}

	if len(e.cfg.MCP.Servers) > 0 {
		bridge, err := tool.NewMCPBridge(ctx, e.cfg.MCP.Servers, e.log)
		if err != nil {
			return nil, fmt.Errorf("mcp bridge: %w", err)
		}
		e.addCloser(func(context.Context) error { bridge.Close(); return nil })
		for _, t := range bridge.Tools() {
			if err := reg.Register(t); err != nil {
				e.log.Warn("skipping mcp tool", "tool", t.Name(), "error", err)
			}
		}
	}

	if e.cfg.Plugins.Enabled {
		host, err := plugin.NewHost(ctx, e.cfg.Plugins, e.bus, e.log)
		if err != nil {
			return nil, fmt.Errorf("plugin host: %w", err)
		}
		e.addCloser(host.Close)
		for _, t := range host.Tools() {
			if err := reg.Register(t); err != nil {
				e.log.Warn("skipping plugin tool", "tool", t.Name(), "error", err)
			}
		}
	}

	return reg, nil
}

// buildArchive wires the activity archive and its event recorder. The
// "none" provider leaves e.archive nil.
func (e *engine) buildArchive() error {
	if e.cfg.Archive.Provider == "" || e.cfg.Archive.Provider == "none" {
		return nil
	}
	archive, err := memory.New(e.cfg.Archive, e.log)
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	e.archive = archive
	e.addCloser(func(context.Context) error { return archive.Close() })

	recorder := memory.NewRecorder(e.bus, archive, e.log)
	e.addCloser(func(context.Context) error { recorder.Close(); return nil })
	return nil
}

func (e *engine) addCloser(fn func(context.Context) error) {
	e.closers = append(e.closers, fn)
}

// close shuts components down in reverse build order.
func (e *engine) close(ctx context.Context) {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](ctx); err != nil {
			e.log.Warn("shutdown error", "error", err)
		}
	}
}

func (e *engine) fail(ctx context.Context, err error) error {
	e.close(ctx)
	return err
}
