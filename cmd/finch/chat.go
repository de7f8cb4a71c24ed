package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/finch/internal/agent"
	"github.com/haasonsaas/finch/internal/config"
	"github.com/haasonsaas/finch/internal/conversation"
	"github.com/haasonsaas/finch/internal/observability"
	"github.com/haasonsaas/finch/internal/providers"
	"github.com/haasonsaas/finch/internal/sessions"
	"github.com/haasonsaas/finch/internal/tools/builtin"
	"github.com/haasonsaas/finch/pkg/models"
)

func buildChatCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runChat(cfg, sessionID)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Resume an existing session by ID")
	return cmd
}

func loadConfig() (*config.Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

func runChat(cfg *config.Config, sessionID string) error {
	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	metrics := observability.NewMetrics()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := openStore(cfg, metrics)
	if err != nil {
		return err
	}
	defer store.Close()

	provider, err := buildProvider(cfg)
	if err != nil {
		return err
	}

	registry := agent.NewRegistry()
	for _, tool := range []agent.Tool{
		builtin.NewClockTool(),
		builtin.NewCalculatorTool(),
		builtin.NewReportTool(100 * time.Millisecond),
	} {
		if err := registry.Register(tool); err != nil {
			return fmt.Errorf("register tool %s: %w", tool.Name(), err)
		}
	}

	runner := agent.NewRunner(registry, agent.RunnerConfig{
		DefaultTimeout: cfg.Tools.DefaultTimeout,
		ToolTimeouts:   cfg.Tools.Timeouts,
	}, logger, metrics)

	executor := agent.NewExecutor(runner, agent.ExecutorConfig{
		Concurrency: cfg.Tools.Concurrency,
		Mode:        agent.ExecMode(cfg.Tools.Mode),
		Truncate: agent.TruncateConfig{
			MaxBytes:  cfg.Tools.Truncation.MaxBytes,
			ArrayKeep: cfg.Tools.Truncation.ArrayKeep,
		},
	}, logger, metrics)

	session, history, err := openSession(ctx, store, sessionID, cfg)
	if err != nil {
		return err
	}
	state := conversation.NewState(session.ID, history, logger)

	loop, err := agent.NewLoop(provider, registry, executor, store, state, agent.LoopConfig{
		Model:         cfg.Agent.Model,
		SystemPrompt:  cfg.Agent.SystemPrompt,
		MaxIterations: cfg.Agent.MaxIterations,
		MaxTokens:     cfg.Agent.MaxTokens,
		HistoryLimit:  cfg.Agent.HistoryLimit,
	}, logger, metrics)
	if err != nil {
		return err
	}

	fmt.Printf("session %s (provider: %s). Type a message, or /quit to exit.\n", session.ID, provider.Name())

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			break
		}

		events, err := loop.Run(ctx, line)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			continue
		}
		printEvents(events)

		if ctx.Err() != nil {
			break
		}
	}
	return scanner.Err()
}

// printEvents renders one run's event stream to the terminal.
func printEvents(events <-chan models.StreamEvent) {
	for ev := range events {
		switch ev.Type {
		case models.EventMessageDelta:
			fmt.Print(ev.Text)

		case models.EventToolCallStart:
			fmt.Printf("\n[%s] running %s\n", ev.ToolName, compactArgs(ev.Arguments))

		case models.EventToolStatus:
			fmt.Printf("[%s] %s\n", ev.ToolName, ev.Status)

		case models.EventToolProgress:
			fmt.Printf("[%s] %.0f%%\n", ev.ToolName, ev.Progress*100)

		case models.EventToolLog:
			fmt.Printf("[%s] %s\n", ev.ToolName, ev.Log)

		case models.EventToolCallComplete:
			if ev.IsError {
				fmt.Printf("[%s] failed: %s\n", ev.ToolName, ev.Summary)
			} else {
				fmt.Printf("[%s] done\n", ev.ToolName)
			}

		case models.EventTurnEnd:
			if ev.Message != "" {
				fmt.Printf("\n(%s)\n", ev.Message)
			} else {
				fmt.Println()
			}

		case models.EventError:
			fmt.Fprintf(os.Stderr, "\nrun error: %s\n", ev.Message)
		}
	}
}

func compactArgs(raw []byte) string {
	s := string(raw)
	if len(s) > 120 {
		s = s[:120] + "..."
	}
	return s
}

func openStore(cfg *config.Config, metrics *observability.Metrics) (sessions.Store, error) {
	switch cfg.Store.Type {
	case "sqlite":
		return sessions.NewSQLiteStore(cfg.Store.Path, metrics)
	default:
		return sessions.NewMemoryStore(), nil
	}
}

func openSession(ctx context.Context, store sessions.Store, sessionID string, cfg *config.Config) (*models.Session, []models.Message, error) {
	if sessionID != "" {
		session, err := store.Get(ctx, sessionID)
		if err != nil {
			return nil, nil, fmt.Errorf("resume session %s: %w", sessionID, err)
		}
		history, err := store.GetHistory(ctx, sessionID, 0)
		if err != nil {
			return nil, nil, fmt.Errorf("load history for %s: %w", sessionID, err)
		}
		return session, history, nil
	}

	session := &models.Session{
		Title: "chat " + time.Now().Format("2006-01-02 15:04"),
		Model: cfg.Agent.Model,
	}
	if err := store.Create(ctx, session); err != nil {
		return nil, nil, fmt.Errorf("create session: %w", err)
	}
	return session, nil, nil
}

func buildProvider(cfg *config.Config) (agent.LLMProvider, error) {
	name := cfg.LLM.DefaultProvider
	pc := cfg.Provider(name)

	switch name {
	case "anthropic":
		if pc.APIKey == "" {
			pc.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		return providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:       pc.APIKey,
			BaseURL:      pc.BaseURL,
			DefaultModel: pc.DefaultModel,
		})
	case "openai":
		if pc.APIKey == "" {
			pc.APIKey = os.Getenv("OPENAI_API_KEY")
		}
		return providers.NewOpenAIProvider(providers.OpenAIConfig{
			APIKey:       pc.APIKey,
			BaseURL:      pc.BaseURL,
			DefaultModel: pc.DefaultModel,
		})
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}
