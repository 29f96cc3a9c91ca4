package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/codeready-toolchain/deepsoc/pkg/api"
	"github.com/codeready-toolchain/deepsoc/pkg/config"
	"github.com/codeready-toolchain/deepsoc/pkg/database"
	"github.com/codeready-toolchain/deepsoc/pkg/events"
	"github.com/codeready-toolchain/deepsoc/pkg/llm"
	"github.com/codeready-toolchain/deepsoc/pkg/promptbuilder"
	"github.com/codeready-toolchain/deepsoc/pkg/queue"
	"github.com/codeready-toolchain/deepsoc/pkg/roles/captain"
	"github.com/codeready-toolchain/deepsoc/pkg/roles/executor"
	"github.com/codeready-toolchain/deepsoc/pkg/roles/expert"
	"github.com/codeready-toolchain/deepsoc/pkg/roles/manager"
	"github.com/codeready-toolchain/deepsoc/pkg/roles/operator"
	"github.com/codeready-toolchain/deepsoc/pkg/services"
	"github.com/codeready-toolchain/deepsoc/pkg/soar"
)

// core bundles the shared dependencies every subcommand wires against.
type core struct {
	cfg       *config.Config
	db        *database.Client
	llm       *llm.Client
	soar      *soar.Client
	prompts   *promptbuilder.Builder
	publisher *events.Publisher
}

func setupCore(ctx context.Context, configPath string) (*core, error) {
	cfg, err := config.Initialize(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	db, err := database.NewClient(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	prompts := promptbuilder.NewBuilder(services.NewPromptService(db.Client))

	return &core{
		cfg:       cfg,
		db:        db,
		llm:       llm.NewClient(cfg.LLM),
		soar:      soar.NewClient(cfg.SOAR),
		prompts:   prompts,
		publisher: events.NewPublisher(db.DB()),
	}, nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func runServe(ctx context.Context, configPath string) error {
	c, err := setupCore(ctx, configPath)
	if err != nil {
		return err
	}
	defer c.db.Close()

	listener := events.NewListener(c.cfg.Database.DSN())
	if err := listener.Start(ctx); err != nil {
		return fmt.Errorf("start listener: %w", err)
	}
	defer listener.Stop(context.Background())

	server := api.NewServer(c.db, listener, nil)

	ctx, cancel := signalContext(ctx)
	defer cancel()

	addr := ":" + getEnv("DEEPSOC_HTTP_PORT", "8080")
	slog.Info("deepsoc api starting", "addr", addr)
	return server.Start(ctx, addr)
}

func runCaptain(ctx context.Context, configPath string) error {
	c, err := setupCore(ctx, configPath)
	if err != nil {
		return err
	}
	defer c.db.Close()

	worker := captain.New(c.db.Client, c.llm, c.prompts, c.publisher)
	return runPool(ctx, "captain", c.cfg.PodID, c.cfg.CaptainQueue, worker, worker)
}

func runManager(ctx context.Context, configPath string) error {
	c, err := setupCore(ctx, configPath)
	if err != nil {
		return err
	}
	defer c.db.Close()

	worker := manager.New(c.db.Client, c.llm, c.prompts, c.publisher)
	return runPool(ctx, "manager", c.cfg.PodID, c.cfg.ManagerQueue, worker, nil)
}

func runOperator(ctx context.Context, configPath string) error {
	c, err := setupCore(ctx, configPath)
	if err != nil {
		return err
	}
	defer c.db.Close()

	worker := operator.New(c.db.Client, c.llm, c.prompts, c.publisher)
	return runPool(ctx, "operator", c.cfg.PodID, c.cfg.OperatorQueue, worker, nil)
}

func runExecutor(ctx context.Context, configPath string) error {
	c, err := setupCore(ctx, configPath)
	if err != nil {
		return err
	}
	defer c.db.Close()

	worker := executor.New(c.db.Client, c.soar, c.publisher)
	return runPool(ctx, "executor", c.cfg.PodID, c.cfg.ExecutorQueue, worker, nil)
}

// runExpert runs both Expert components in one process: the summarizer
// worker pool (claims `completed` Executions and summarizes them into
// Messages) and the lifecycle manager (advances Events/rounds, writes
// round Summaries). The lifecycle manager enforces its own single-active-
// instance lock, so it is safe to run alongside multiple Expert pods.
func runExpert(ctx context.Context, configPath string) error {
	c, err := setupCore(ctx, configPath)
	if err != nil {
		return err
	}
	defer c.db.Close()

	ctx, cancel := signalContext(ctx)
	defer cancel()

	summarizer := expert.NewSummarizer(c.db.Client, c.llm, c.prompts, c.publisher)
	pool := queue.NewWorkerPool("expert", c.cfg.PodID, c.cfg.ExpertQueue, summarizer, summarizer)
	pool.Start(ctx)
	defer pool.Stop()

	lifecycle := expert.NewLifecycle(c.db.DB(), c.db.Client, c.llm, c.prompts, c.publisher, c.cfg.EventMaxRound)

	slog.Info("deepsoc expert started", "pod_id", c.cfg.PodID)
	return lifecycle.Run(ctx)
}

func runPool(ctx context.Context, role, podID string, cfg config.QueueConfig, exec queue.RoleExecutor, orphans queue.OrphanScanner) error {
	ctx, cancel := signalContext(ctx)
	defer cancel()

	pool := queue.NewWorkerPool(role, podID, cfg, exec, orphans)
	pool.Start(ctx)

	slog.Info("deepsoc worker pool started", "role", role, "pod_id", podID)
	<-ctx.Done()
	slog.Info("deepsoc worker pool shutting down", "role", role)

	pool.Stop()
	return nil
}

func runInit(ctx context.Context, configPath, username, password string) error {
	if password == "" {
		return fmt.Errorf("--admin-password is required")
	}

	c, err := setupCore(ctx, configPath)
	if err != nil {
		return err
	}
	defer c.db.Close()

	users := services.NewUserService(c.db.Client)
	admin, err := users.EnsureAdmin(ctx, username, password)
	if err != nil {
		return fmt.Errorf("bootstrap admin user: %w", err)
	}
	if admin == nil {
		fmt.Fprintln(os.Stdout, "an admin user already exists, skipping")
	} else {
		fmt.Fprintf(os.Stdout, "created admin user %q\n", admin.Username)
	}

	settings := services.NewGlobalSettingService(c.db.Client)
	existing, err := settings.Get(ctx, services.DrivingModeKey)
	if err != nil {
		return fmt.Errorf("read driving mode: %w", err)
	}
	if existing == "" {
		if err := settings.Set(ctx, services.DrivingModeKey, c.cfg.DrivingMode); err != nil {
			return fmt.Errorf("seed driving mode: %w", err)
		}
		fmt.Fprintf(os.Stdout, "driving mode seeded to %q\n", c.cfg.DrivingMode)
	} else {
		fmt.Fprintf(os.Stdout, "driving mode already set to %q, leaving unchanged\n", existing)
	}

	promptService := services.NewPromptService(c.db.Client)
	if err := promptbuilder.SeedDefaults(ctx, promptService); err != nil {
		return fmt.Errorf("seed default prompts: %w", err)
	}
	fmt.Fprintln(os.Stdout, "default prompts seeded")

	return nil
}
