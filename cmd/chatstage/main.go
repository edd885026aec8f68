// Package main provides the chatstage CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"chatstage/internal/config"
	"chatstage/internal/gateway"
	"chatstage/internal/logging"
	"chatstage/internal/lorebook"
	"chatstage/internal/orchestrator"
	"chatstage/internal/store"
	"chatstage/internal/types"
)

var (
	// Global flags
	verbose    bool
	configPath string
	dbPath     string
)

var rootCmd = &cobra.Command{
	Use:   "chatstage",
	Short: "chatstage - multi-participant roleplay conversation engine",
	Long: `chatstage runs simulated chat conversations between a user persona and
LLM-driven characters. Each turn assembles conversation context, requests one
completion, splits it into per-character messages, and delivers them with a
typing-speed cadence.

Run without arguments to open the interactive feed.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := logging.Initialize(verbose || cfg.Logging.Debug); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd.Context())
	},
}

// loadConfig resolves the config file and applies CLI overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.DatabasePath = dbPath
	}
	return cfg, nil
}

// app bundles the collaborators every command needs.
type app struct {
	cfg   *config.Config
	store *store.LocalStore
	orch  *orchestrator.Orchestrator
}

// openApp opens the store and builds the orchestrator against the configured
// gateway. Close the returned app when done.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := store.NewLocalStore(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store at %s: %w", cfg.DatabasePath, err)
	}

	client, err := gateway.NewClientFromConfig(ctx, cfg)
	if err != nil {
		st.Close()
		return nil, err
	}

	if cfg.LorebookPath != "" {
		if _, err := lorebook.Import(ctx, st, cfg.LorebookPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.Get(logging.CategoryLorebook).Warnf("Lorebook import skipped: %v", err)
		}
	}

	return &app{
		cfg:   cfg,
		store: st,
		orch:  orchestrator.NewFromConfig(st, client, cfg, nil),
	}, nil
}

// openStore opens just the store, for commands that never hit the gateway.
func openStore() (*config.Config, *store.LocalStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	st, err := store.NewLocalStore(cfg.DatabasePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store at %s: %w", cfg.DatabasePath, err)
	}
	return cfg, st, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		logging.Get(logging.CategoryStore).Errorf("Failed to close store: %v", err)
	}
}

// resolveConversation accepts an id or a unique name.
func resolveConversation(ctx context.Context, st *store.LocalStore, ref string) (types.Conversation, error) {
	if c, err := st.GetConversation(ctx, ref); err == nil {
		return c, nil
	}
	all, err := st.ListConversations(ctx)
	if err != nil {
		return types.Conversation{}, err
	}
	var match *types.Conversation
	for i, c := range all {
		if c.Name == ref {
			if match != nil {
				return types.Conversation{}, fmt.Errorf("conversation name %q is ambiguous, use the id", ref)
			}
			match = &all[i]
		}
	}
	if match == nil {
		return types.Conversation{}, fmt.Errorf("conversation %q: %w", ref, types.ErrNotFound)
	}
	return *match, nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "Config file path")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Override database path")

	rootCmd.AddCommand(replyCmd)
	rootCmd.AddCommand(compactCmd)
	rootCmd.AddCommand(participantCmd)
	rootCmd.AddCommand(conversationCmd)
	rootCmd.AddCommand(factCmd)
	rootCmd.AddCommand(lorebookCmd)
	rootCmd.AddCommand(seedCmd)
}

func defaultConfigPath() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home + "/.chatstage/config.yaml"
	}
	return ".chatstage.yaml"
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
