package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/relaynote/internal/conflict"
	"github.com/starford/relaynote/internal/embedding"
	"github.com/starford/relaynote/internal/matcher"
	"github.com/starford/relaynote/internal/models"
	"github.com/starford/relaynote/internal/noteservice"
	"github.com/starford/relaynote/internal/relay"
	"github.com/starford/relaynote/internal/store"
	"github.com/starford/relaynote/internal/syncer"
	"github.com/starford/relaynote/internal/vault"
)

// components are the long-lived parts shared by every command.
type components struct {
	logger *slog.Logger
	db     *store.DB
	pool   *relay.Pool
	orch   *syncer.Orchestrator
	notes  *noteservice.Service
}

// setup builds the components; noteOpts are applied after the defaults.
func (a *application) setup(noteOpts ...noteservice.Option) (*components, error) {
	if a.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := a.config

	logger := a.logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: cfg.App.LogLevel,
		}))
	}
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("vault_path", cfg.Vault.Path),
		slog.Int("relays", len(cfg.Relay.URLs)),
		slog.Bool("ai_enabled", cfg.AI.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	embedder, err := newEmbedder(cfg.AI)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init embeddings: %w", err)
	}

	prefs := models.Preferences{
		AIEnabled:             cfg.AI.Enabled,
		AIMatchingSensitivity: cfg.AI.Sensitivity,
		Relays:                cfg.Relay.URLs,
	}

	clients := make([]relay.Client, 0, len(cfg.Relay.URLs))
	for _, url := range cfg.Relay.URLs {
		clients = append(clients, relay.NewWSClient(url, cfg.Relay.Timeout, logger))
	}
	pool := relay.NewPool(logger, clients...)

	orch := syncer.New(db, pool, cfg.Identity.PublicKey,
		syncer.WithConnectivity(pool),
		syncer.WithSanitizer(conflict.NewHTMLSanitizer()),
		syncer.WithMatcher(matcher.NewEngine(prefs)),
		syncer.WithEmbedder(embedder),
		syncer.WithMaxMatchesPerNote(cfg.Matcher.MaxMatchesPerNote),
		syncer.WithLogger(logger),
	)

	notes := noteservice.NewService(db, append([]noteservice.Option{
		noteservice.WithPreferences(prefs),
		noteservice.WithEmbedder(embedder),
		noteservice.WithLogger(logger),
	}, noteOpts...)...)

	return &components{
		logger: logger,
		db:     db,
		pool:   pool,
		orch:   orch,
		notes:  notes,
	}, nil
}

// newImporter opens the configured vault, creating the directory if needed.
func (c *components) newImporter(cfg VaultConfig) (*vault.Importer, error) {
	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}
	fs, err := vault.NewFS(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("init vault: %w", err)
	}
	return vault.NewImporter(fs, c.notes, c.db, c.logger), nil
}

func (c *components) Close() error {
	return errors.Join(c.pool.Close(), c.db.Close())
}

func newEmbedder(cfg AIConfig) (embedding.Provider, error) {
	var p embedding.Provider
	switch cfg.Provider {
	case ProviderOllama:
		o, err := embedding.NewOllama(cfg.Ollama.Host, cfg.Ollama.Model, cfg.Dimensions)
		if err != nil {
			return nil, err
		}
		p = o
	default:
		p = embedding.NewHash(cfg.Dimensions)
	}
	if cfg.CacheSize > 0 {
		p = embedding.NewCached(p, cfg.CacheSize)
	}
	return p, nil
}
