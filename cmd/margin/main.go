// Command margin chats with a language model about the document being
// edited, keeping per-document sessions on disk.
//
// Usage:
//
//	OPENROUTER_API_KEY=sk-... margin chat notes.md --seed-file selection.txt
//	margin send notes.md "What is the main argument?"
//	margin act rewrite notes.md --selection "Draft paragraph" --instructions "more formal"
//	margin sessions notes.md
//
// Configuration is read from $XDG_CONFIG_HOME/margin/config.yaml and
// overridden by MARGIN_* environment variables and flags.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/fwojciec/margin"
	marginjson "github.com/fwojciec/margin/json"
	"github.com/fwojciec/margin/sqlite"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := execute(ctx, os.LookupEnv, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "margin: %v\n", err)
		os.Exit(1)
	}
}

// execute runs the command line args and releases the store and log file
// whether or not the command succeeded.
func execute(ctx context.Context, lookup lookupFunc, args []string, stdout, stderr io.Writer) error {
	a := &app{lookup: lookup}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if cerr := a.teardown(); err == nil {
		err = cerr
	}
	return err
}

// app holds the state shared by all subcommands. It is populated in the
// root command's PersistentPreRunE.
type app struct {
	lookup lookupFunc
	cfg    Config
	logger *slog.Logger
	store  *margin.Store
	close  []func() error

	// Flag values.
	configPath string
	provider   string
	apiKey     string
	model      string
	storeKind  string
	dataDir    string
	logLevel   string
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "margin",
		Short:         "Chat with a language model about a document",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&a.configPath, "config", "", "Path to config file (default $XDG_CONFIG_HOME/margin/config.yaml)")
	f.StringVar(&a.provider, "provider", "", "Provider: openrouter, anthropic, gemini, ollama, openai")
	f.StringVar(&a.apiKey, "api-key", "", "API key (overrides config and environment)")
	f.StringVar(&a.model, "model", "", "Model ID (provider-specific)")
	f.StringVar(&a.storeKind, "store", "", "Session store: json or sqlite")
	f.StringVar(&a.dataDir, "data-dir", "", "Directory holding the session store and log")
	f.StringVar(&a.logLevel, "log-level", "", "Log level: DEBUG, INFO, WARN, ERROR")

	root.AddCommand(
		chatCmd(a),
		sendCmd(a),
		actCmd(a),
		listCmd(a),
		sessionsCmd(a),
		newCmd(a),
		renameCmd(a),
		deleteCmd(a),
		exportCmd(a),
	)
	return root
}

// setup resolves the config, builds the logger and opens the store.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := loadConfig(a.configPath, a.lookup)
	if err != nil {
		return err
	}
	apply := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	apply(&cfg.Provider, a.provider)
	apply(&cfg.APIKey, a.apiKey)
	apply(&cfg.Model, a.model)
	apply(&cfg.Store, a.storeKind)
	apply(&cfg.LogLevel, a.logLevel)
	if a.dataDir != "" {
		cfg.DataDir = a.dataDir
		if a.configPath == "" {
			cfg.LogFile = filepath.Join(cfg.DataDir, "margin.log")
		}
	}
	if cfg.Store != storeJSON && cfg.Store != storeSQLite {
		return fmt.Errorf("unknown store %q: must be %q or %q", cfg.Store, storeJSON, storeSQLite)
	}
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	a.cfg = cfg

	// The TUI owns the terminal; log to the file only.
	var stderr io.Writer = cmd.ErrOrStderr()
	if cmd.Name() == "chat" {
		stderr = io.Discard
	}
	logger, closeLog := setupLogger(stderr, cfg.LogFile, level)
	a.logger = logger
	a.close = append(a.close, closeLog)

	b, closeStore, err := openBackend(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	a.close = append(a.close, closeStore)
	a.store = margin.NewStore(b, margin.WithStoreLogger(logger))
	return nil
}

func (a *app) teardown() error {
	var first error
	for i := len(a.close) - 1; i >= 0; i-- {
		if err := a.close[i](); err != nil && first == nil {
			first = err
		}
	}
	a.close = nil
	return first
}

// openBackend opens the configured session registry backend.
func openBackend(ctx context.Context, cfg Config) (margin.Backend, func() error, error) {
	switch cfg.Store {
	case storeSQLite:
		db, err := sqlite.Open(ctx, filepath.Join(cfg.DataDir, sqlite.FileName))
		if err != nil {
			return nil, nil, fmt.Errorf("open session store: %w", err)
		}
		return db, db.Close, nil
	default:
		f := marginjson.NewFile(filepath.Join(cfg.DataDir, marginjson.FileName))
		return f, func() error { return nil }, nil
	}
}

// newChat resolves the provider and builds a Chat over the store.
func (a *app) newChat(ctx context.Context) (*margin.Chat, error) {
	b, err := resolveProvider(ctx, a.cfg)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("provider resolved", "provider", b.name, "model", b.settings.ChatModelID(), "summary_model", b.summaryModel)

	builder := margin.NewContextBuilder(
		margin.NewSummarizer(b.completer, b.summaryModel),
		margin.WithPolicy(margin.Policy{
			Threshold: a.cfg.TokenThreshold,
			TailSize:  a.cfg.TailSize,
		}),
		margin.WithBuilderLogger(a.logger),
	)
	return margin.NewChat(a.store, b.completer, b.settings,
		margin.WithContextBuilder(builder),
		margin.WithChatLogger(a.logger),
	), nil
}

// newActor resolves the provider and builds an Actor for one-shot actions.
func (a *app) newActor(ctx context.Context) (*margin.Actor, error) {
	b, err := resolveProvider(ctx, a.cfg)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("provider resolved", "provider", b.name, "model", b.settings.Model)
	return margin.NewActor(b.completer, b.settings), nil
}
