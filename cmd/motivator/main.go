package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"github.com/EckmanTechLLC/nyx-sub001/internal/api"
	"github.com/EckmanTechLLC/nyx-sub001/internal/integration"
	"github.com/EckmanTechLLC/nyx-sub001/internal/motivation"
	"github.com/EckmanTechLLC/nyx-sub001/internal/observability"
	"github.com/EckmanTechLLC/nyx-sub001/internal/signals"
	"github.com/EckmanTechLLC/nyx-sub001/internal/store"
	"github.com/EckmanTechLLC/nyx-sub001/internal/temporal"
	"github.com/EckmanTechLLC/nyx-sub001/internal/temporal/activities"
	"github.com/EckmanTechLLC/nyx-sub001/internal/temporal/workflows"
	"github.com/EckmanTechLLC/nyx-sub001/pkg/config"
	"github.com/EckmanTechLLC/nyx-sub001/pkg/models"
)

const version = "0.1.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	showHelp := flag.Bool("help", false, "Show help message")
	hashToken := flag.Bool("hash-token", false, "Prompt for an API token and print its bcrypt hash")
	flag.Parse()

	if *showHelp {
		printHelp()
		return
	}
	if *showVersion {
		fmt.Printf("Motivator v%s\n", version)
		return
	}
	if *hashToken {
		if err := runHashToken(); err != nil {
			log.Fatalf("failed to hash token: %v", err)
		}
		return
	}

	cfg := loadConfig(*configPath)
	applyEnvOverrides(cfg)

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("failed to open store at %s: %v", cfg.Database.Path, err)
	}
	defer st.Close()

	tracker := signals.NewActivityTracker()
	orchestrator := signals.NewOrchestratorClient(&cfg.Orchestrator)

	var provider motivation.SignalProvider = tracker
	if orchestrator != nil {
		provider = orchestrator
	}

	states := motivation.NewStateManager(st)
	arb := motivation.NewArbitrationEngine(st, states, provider, cfg.Engine.FastIteration, cfg.Engine.StartupGracePeriod)
	spawner := motivation.NewTaskSpawner(st, states, arb)
	feedback := motivation.NewFeedbackLoop(st, states)
	engine := motivation.NewEngine(st, states, arb, spawner, feedback, provider, motivation.EngineConfig{
		EvaluationInterval:          cfg.Engine.EvaluationInterval,
		MaxConcurrentMotivatedTasks: cfg.Engine.MaxConcurrentMotivatedTasks,
		MinArbitrationThreshold:     cfg.Engine.MinArbitrationThreshold,
		FastIteration:               cfg.Engine.FastIteration,
		StartupGracePeriod:          cfg.Engine.StartupGracePeriod,
	})

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := states.InitializeDefaultStates(runCtx); err != nil {
		log.Fatalf("failed to initialize motivation states: %v", err)
	}

	executor := setupExecutor(cfg, engine, orchestrator, tracker)
	if executor != nil {
		poller := integration.NewPoller(st, spawner, executor, tracker, cfg.Engine.PollingInterval)
		go func() {
			if err := poller.Start(runCtx); err != nil && err != context.Canceled {
				log.Printf("Task poller stopped: %v", err)
			}
		}()
		defer poller.Stop()
	} else {
		log.Printf("No executor configured; spawned tasks will stay queued until one is")
	}

	go func() {
		if err := engine.Start(runCtx); err != nil && err != context.Canceled {
			log.Printf("Motivation engine stopped: %v", err)
		}
	}()
	defer engine.Stop()

	apiServer := api.NewServer(cfg, st, engine, states, feedback)
	httpSrv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      apiServer.SetupRoutes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Printf("Motivator API listening on %s", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	observability.Info("daemon.started", map[string]interface{}{
		"version":          version,
		"http_port":        cfg.Server.HTTPPort,
		"temporal_enabled": cfg.Temporal.Enabled,
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	cancel()
	observability.Info("daemon.shutdown", map[string]interface{}{"signal": sig.String()})

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
}

// setupExecutor picks the execution backend: Temporal workflows when enabled,
// otherwise direct orchestrator dispatch, otherwise none.
func setupExecutor(cfg *config.Config, engine *motivation.Engine, orchestrator *signals.OrchestratorClient, tracker *signals.ActivityTracker) motivation.Executor {
	if cfg.Temporal.Enabled {
		tc, err := temporal.Connect(&cfg.Temporal)
		if err != nil {
			log.Fatalf("failed to connect to temporal: %v", err)
		}

		acts := activities.NewTaskActivities(engine, &orchestratorRunner{client: orchestrator}, tracker)
		w := temporal.NewWorker(tc, cfg.Temporal.TaskQueue, acts)
		if err := w.Start(); err != nil {
			log.Fatalf("failed to start temporal worker: %v", err)
		}
		log.Printf("Temporal worker started on queue %s", cfg.Temporal.TaskQueue)
		return temporal.NewExecutor(tc, cfg.Temporal.TaskQueue)
	}
	if orchestrator != nil {
		return orchestrator
	}
	return nil
}

// orchestratorRunner adapts the orchestrator's synchronous prompt execution
// to the Temporal activity's PromptRunner contract.
type orchestratorRunner struct {
	client *signals.OrchestratorClient
}

func (r *orchestratorRunner) Run(ctx context.Context, task models.TaskSnapshot) (*workflows.ExecutePromptResult, error) {
	if r.client == nil {
		return nil, fmt.Errorf("no orchestrator configured for prompt execution")
	}
	result, err := r.client.RunPrompt(ctx, task)
	if err != nil {
		return nil, err
	}
	return &workflows.ExecutePromptResult{
		Success:        result.Success,
		OutcomeScore:   result.OutcomeScore,
		QualityMetrics: result.QualityMetrics,
		Output:         result.Output,
	}, nil
}

// loadConfig loads the config file, falling back to defaults when the default
// path does not exist.
func loadConfig(path string) *config.Config {
	cfg, err := config.LoadConfigFromFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && path == "config.yaml" {
			log.Printf("No config file at %s, using defaults", path)
			return config.DefaultConfig()
		}
		log.Fatalf("failed to load config from %s: %v", path, err)
	}
	return cfg
}

// applyEnvOverrides lets deployment environments override the connection
// settings without editing the config file.
func applyEnvOverrides(cfg *config.Config) {
	if v := os.Getenv("TEMPORAL_HOST"); v != "" {
		cfg.Temporal.Host = v
	}
	if v := os.Getenv("TEMPORAL_NAMESPACE"); v != "" {
		cfg.Temporal.Namespace = v
	}
	if v := os.Getenv("ORCHESTRATOR_URL"); v != "" {
		cfg.Orchestrator.BaseURL = v
	}
	if v := os.Getenv("ORCHESTRATOR_TOKEN"); v != "" {
		cfg.Orchestrator.AuthToken = v
	}
	if v := os.Getenv("MOTIVATOR_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
}

// runHashToken reads a token without echo and prints its bcrypt hash for the
// auth_token_hash config field.
func runHashToken() error {
	fmt.Fprint(os.Stderr, "Token: ")
	token, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}
	if len(token) == 0 {
		return fmt.Errorf("empty token")
	}

	hash, err := bcrypt.GenerateFromPassword(token, bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	fmt.Println(string(hash))
	return nil
}

func printHelp() {
	fmt.Println("Usage: motivator [flags]")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  -config      Path to configuration file (default: config.yaml)")
	fmt.Println("  -hash-token  Prompt for an API token and print its bcrypt hash")
	fmt.Println("  -version     Show version information")
	fmt.Println("  -help        Show help message")
}
