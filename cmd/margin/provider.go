package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/fwojciec/margin"
	"github.com/fwojciec/margin/anthropic"
	"github.com/fwojciec/margin/gemini"
	"github.com/fwojciec/margin/langchaingo"
	"github.com/fwojciec/margin/openrouter"
)

const (
	providerOpenRouter = "openrouter"
	providerAnthropic  = "anthropic"
	providerGemini     = "gemini"
	providerOllama     = "ollama"
	providerOpenAI     = "openai"
)

// providerKeyEnv maps each keyed provider to its credential variable.
var providerKeyEnv = map[string]string{
	providerOpenRouter: "OPENROUTER_API_KEY",
	providerAnthropic:  "ANTHROPIC_API_KEY",
	providerGemini:     "GEMINI_API_KEY",
	providerOpenAI:     "OPENAI_API_KEY",
}

// defaultModels holds the chat and summary models used when the config
// names none. OpenRouter uses the margin package defaults.
var defaultModels = map[string][2]string{
	providerOpenRouter: {margin.DefaultModel, margin.DefaultSummaryModel},
	providerAnthropic:  {"claude-3-5-sonnet-latest", "claude-3-5-haiku-latest"},
	providerGemini:     {"gemini-2.5-flash", "gemini-2.5-flash-lite"},
	providerOllama:     {"llama3.2", "llama3.2"},
	providerOpenAI:     {"gpt-4o-mini", "gpt-4o-mini"},
}

// backend is a resolved completion backend.
type backend struct {
	name         string
	completer    margin.Completer
	settings     margin.Settings
	summaryModel string
}

// resolveProvider selects and constructs the completion backend. The
// provider is auto-detected from credential variables when the config
// names none.
func resolveProvider(ctx context.Context, cfg Config) (backend, error) {
	name := cfg.Provider
	if name == "" {
		var found []string
		for p := range cfg.keys {
			found = append(found, p)
		}
		sort.Strings(found)
		switch len(found) {
		case 0:
			if cfg.APIKey != "" {
				name = providerOpenRouter
				break
			}
			return backend{}, fmt.Errorf("no API key found: set OPENROUTER_API_KEY, ANTHROPIC_API_KEY or GEMINI_API_KEY (or configure provider and api_key)")
		case 1:
			name = found[0]
		default:
			return backend{}, fmt.Errorf("multiple API keys found (%s): set provider to select one", strings.Join(found, ", "))
		}
	}

	models, ok := defaultModels[name]
	if !ok {
		return backend{}, fmt.Errorf("unknown provider %q: must be one of openrouter, anthropic, gemini, ollama, openai", name)
	}
	b := backend{
		name: name,
		settings: margin.Settings{
			Model:     cfg.Model,
			ChatModel: cfg.ChatModel,
		},
		summaryModel: cfg.SummaryModel,
	}
	if b.settings.Model == "" {
		b.settings.Model = models[0]
	}
	if b.summaryModel == "" {
		b.summaryModel = models[1]
	}

	if name == providerOllama {
		client, err := langchaingo.NewOllama(b.settings.ChatModelID(), cfg.OllamaHost)
		if err != nil {
			return backend{}, err
		}
		b.completer = client
		b.settings.Keyless = true
		return b, nil
	}

	key := cfg.APIKey
	if key == "" {
		key = cfg.keys[name]
	}
	if key == "" {
		return backend{}, fmt.Errorf("%s not set (configure api_key or set the environment variable)", providerKeyEnv[name])
	}
	b.settings.APIKey = key

	switch name {
	case providerOpenRouter:
		var opts []openrouter.Option
		if cfg.BaseURL != "" {
			opts = append(opts, openrouter.WithBaseURL(cfg.BaseURL))
		}
		b.completer = openrouter.New(key, opts...)
	case providerAnthropic:
		var opts []anthropic.Option
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		b.completer = anthropic.New(key, opts...)
	case providerGemini:
		client, err := gemini.New(ctx, key, cfg.BaseURL, gemini.WithModel(b.settings.ChatModelID()))
		if err != nil {
			return backend{}, err
		}
		b.completer = client
	case providerOpenAI:
		client, err := langchaingo.NewOpenAI(key, b.settings.ChatModelID(), cfg.BaseURL)
		if err != nil {
			return backend{}, err
		}
		b.completer = client
	}
	return b, nil
}
