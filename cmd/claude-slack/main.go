package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/theo-nash/claude-slack/internal/config"
	"github.com/theo-nash/claude-slack/internal/domain/identity"
	"github.com/theo-nash/claude-slack/internal/domain/membership"
	"github.com/theo-nash/claude-slack/internal/domain/messaging"
	"github.com/theo-nash/claude-slack/internal/hooks"
	"github.com/theo-nash/claude-slack/internal/sqlite"
	"github.com/theo-nash/claude-slack/internal/transport"
)

func main() {
	root := &cobra.Command{
		Use:          "claude-slack",
		Short:        "Messaging and coordination substrate for coding agent fleets",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd(), sessionStartCmd(), preToolUseCmd(), statusCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// newLogger builds a slog logger writing to a size-capped file under the
// logs directory, falling back to stderr.
func newLogger(env config.Env, component string) (*slog.Logger, func()) {
	level := slog.LevelInfo
	if env.Debug {
		level = slog.LevelDebug
	}

	var writer io.Writer = os.Stderr
	closer := func() {}
	logPath := filepath.Join(env.LogsDir, component+".log")
	if fileWriter, file, err := newLogFileWriter(logPath); err == nil {
		writer = fileWriter
		closer = func() { file.Close() }
	}

	logger := slog.New(slog.NewTextHandler(writer, &slog.HandlerOptions{Level: level}))
	return logger, closer
}

func serveCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the writer service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := config.LoadEnv()
			if err != nil {
				return err
			}
			if port != 0 {
				env.Port = port
			}
			logger, closeLog := newLogger(env, "server")
			defer closeLog()

			cfg, err := config.Load(env.ConfigPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			if err := os.MkdirAll(filepath.Dir(env.DBPath), 0o755); err != nil {
				return fmt.Errorf("preparing database dir: %w", err)
			}
			db, err := sqlite.New(env.DBPath)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer db.Close()
			if err := db.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrating database: %w", err)
			}

			identitySvc := identity.NewService(
				sqlite.NewProjectRepository(db),
				sqlite.NewAgentRepository(db),
				sqlite.NewSessionRepository(db),
				logger,
			)
			membershipSvc := membership.NewService(
				sqlite.NewChannelRepository(db),
				sqlite.NewMemberRepository(db),
				identitySvc,
				logger,
			)
			messagingSvc := messaging.NewService(
				sqlite.NewMessageRepository(db),
				membershipSvc,
				nil,
				messaging.Settings{
					MaxMessageLength:     cfg.Settings.MaxMessageLength,
					MessageRetentionDays: cfg.Settings.MessageRetentionDays,
				},
				logger,
			)

			var handler http.Handler = transport.NewServer(transport.Services{
				Identity:   identitySvc,
				Membership: membershipSvc,
				Messaging:  messagingSvc,
			}, logger)
			if env.Perf {
				handler = transport.WithTiming(logger, handler)
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			go runRetentionSweeper(ctx, messagingSvc, logger)

			addr := fmt.Sprintf("127.0.0.1:%d", env.Port)
			httpServer := &http.Server{Addr: addr, Handler: handler}

			go func() {
				logger.Info("writer service listening", "addr", addr)
				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("server error", "error", err)
				}
			}()

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			<-stop
			cancel()

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			logger.Info("shutting down")
			return httpServer.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (default from CLAUDE_SLACK_PORT or 8000)")
	return cmd
}

// runRetentionSweeper prunes expired messages once at startup and then
// hourly.
func runRetentionSweeper(ctx context.Context, svc *messaging.Service, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		if _, err := svc.PruneExpired(ctx); err != nil {
			logger.Warn("retention sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func sessionStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "session-start",
		Short: "SessionStart hook: register the session and reconcile",
		Run: func(cmd *cobra.Command, _ []string) {
			// Hooks exit zero on any failure so the host never blocks.
			env, err := config.LoadEnv()
			if err != nil {
				fmt.Fprintf(os.Stderr, "claude-slack: %v\n", err)
				return
			}
			logger, closeLog := newLogger(env, "session_start")
			defer closeLog()

			payload, err := hooks.ReadPayload(os.Stdin)
			if err != nil {
				logger.Error("invalid hook input", "error", err)
				return
			}

			runner := &hooks.Runner{Env: env, Logger: logger}
			result, err := runner.SessionStart(cmd.Context(), payload)
			if err != nil {
				logger.Error("session start failed", "error", err)
				return
			}
			if result.Reconciliation != nil {
				logger.Info("session start complete",
					"session_registered", result.SessionRegistered,
					"project_id", result.ProjectID,
					"fallbacks_ingested", result.FallbacksIngested,
					"actions_total", result.Reconciliation.Total,
					"actions_executed", result.Reconciliation.Executed)
			}
		},
	}
}

func preToolUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pre-tool-use",
		Short: "PreToolUse hook: record claude-slack tool calls",
		Run: func(cmd *cobra.Command, _ []string) {
			env, err := config.LoadEnv()
			if err != nil {
				fmt.Fprintf(os.Stderr, "claude-slack: %v\n", err)
				return
			}
			logger, closeLog := newLogger(env, "pre_tool_use")
			defer closeLog()

			payload, err := hooks.ReadPayload(os.Stdin)
			if err != nil {
				logger.Error("invalid hook input", "error", err)
				return
			}

			runner := &hooks.Runner{Env: env, Logger: logger}
			if err := runner.PreToolUse(cmd.Context(), payload); err != nil {
				logger.Error("pre-tool-use failed", "error", err)
			}
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print store summary counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := config.LoadEnv()
			if err != nil {
				return err
			}
			db, err := sqlite.New(env.DBPath)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer db.Close()
			if err := db.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrating database: %w", err)
			}

			for _, table := range []string{"projects", "agents", "channels", "channel_members", "messages", "sessions"} {
				var count int
				if err := db.QueryRowContext(cmd.Context(),
					"SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
					return fmt.Errorf("counting %s: %w", table, err)
				}
				fmt.Printf("%-16s %d\n", table, count)
			}
			return nil
		},
	}
}
