package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"adjutant/internal/adapter/gateway"
	"adjutant/internal/adapter/tui/chat"
	"adjutant/internal/domain"
	"adjutant/internal/infra/config"
	"adjutant/internal/infra/logger"
	"adjutant/internal/infra/tracer"
	"adjutant/internal/usecase/cronjob"
	"adjutant/internal/usecase/scheduling"
)

const defaultConfigPath = "adjutant.yaml"

// loadConfig parses shared flags and loads the config file. A missing
// default file falls back to built-in defaults plus env overrides.
func loadConfig(args []string) (*config.Config, error) {
	fs := flag.NewFlagSet("adjutant", flag.ContinueOnError)
	path := fs.String("config", "", "config file path")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	p := *path
	if p == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			p = defaultConfigPath
		}
	}
	return config.Load(p)
}

// runServe is the daemon path: configured channels, the gateway, and the
// scheduled jobs, all over one engine.
func runServe(args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return err
	}
	defer shutdownTracer(context.Background())

	eng, err := buildEngine(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer eng.close(context.Background())

	if cfg.Scheduler.Enabled {
		sched := scheduling.NewScheduler(cfg.Scheduler.Timezone, log)
		jobs := cronjob.NewJobs(eng.store, eng.bus, cfg.Records.StaleDays, log)
		if err := jobs.Register(sched, cfg.Scheduler.StaleSweep, cfg.Scheduler.MorningBriefing); err != nil {
			return err
		}
		if cfg.Session.StaleAfter > 0 {
			err := sched.AddJob("session-reaper", "@hourly", func(context.Context) error {
				if n := eng.sessions.ReapStale(cfg.Session.StaleAfter); n > 0 {
					log.Info("reaped stale sessions", "count", n)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		sched.Start(ctx)
		defer sched.Stop()
	}

	if cfg.Gateway.Enabled {
		srv := gateway.NewServer(cfg.Gateway, eng.bus, nil, log)
		gateway.RegisterDefaultHandlers(srv, gateway.HandlerDeps{
			Chat:     eng.orch,
			Store:    eng.store,
			Sessions: eng.sessions,
			Archive:  eng.archive,
			Logger:   log,
		})
		go func() {
			if err := srv.Start(ctx); err != nil {
				log.Error("gateway stopped", "error", err)
			}
		}()
	}

	channels, err := buildChannels(cfg, log)
	if err != nil {
		return err
	}
	if len(channels) == 0 && !cfg.Gateway.Enabled {
		return fmt.Errorf("no channels configured and gateway disabled; nothing to serve")
	}

	for _, ch := range channels {
		if err := ch.Start(ctx, makeHandler(ch, eng)); err != nil {
			return fmt.Errorf("start channel %s: %w", ch.Name(), err)
		}
		log.Info("channel started", "channel", ch.Name())
	}

	log.Info("adjutant serving", "channels", len(channels), "gateway", cfg.Gateway.Enabled)
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, ch := range channels {
		if err := ch.Stop(stopCtx); err != nil {
			log.Warn("channel stop", "channel", ch.Name(), "error", err)
		}
	}
	return nil
}

// runChat is the interactive path: one TUI over the same engine.
func runChat(args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	// The TUI owns the terminal; keep engine logs out of it.
	if cfg.Logger.Output == "" || cfg.Logger.Output == "stdout" || cfg.Logger.Output == "stderr" {
		cfg.Logger.Output = "adjutant-chat.log"
	}
	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := buildEngine(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer eng.close(context.Background())

	ch := chat.NewTUIChannel(log, chat.WithTUIEventBus(eng.bus))
	return ch.Start(ctx, makeHandler(ch, eng))
}

// runSnapshot prints the record store state without starting the engine
// loop. Useful for scripting and debugging.
func runSnapshot(args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	log, closeLog, err := logger.New(config.LoggerConfig{Level: "error", Format: "text", Output: "stderr"})
	if err != nil {
		return err
	}
	defer closeLog()

	store, err := newSnapshotStore(cfg, log)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(store.Snapshot(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// makeHandler routes one inbound message through the orchestrator and
// sends the merged reply back on the originating channel.
func makeHandler(ch domain.Channel, eng *engine) domain.MessageHandler {
	return func(ctx context.Context, in domain.InboundMessage) error {
		out, err := eng.orch.HandleMessage(ctx, in)
		if err != nil {
			sendErr := ch.Send(ctx, domain.OutboundMessage{
				SessionID: in.SessionID,
				Content:   err.Error(),
				IsError:   true,
			})
			if sendErr != nil {
				eng.log.Error("failed to deliver error reply", "channel", ch.Name(), "error", sendErr)
			}
			return err
		}
		return ch.Send(ctx, *out)
	}
}
