package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/custodia-labs/bastion/internal/adapters/driven/ai"
	auditfile "github.com/custodia-labs/bastion/internal/adapters/driven/audit/file"
	"github.com/custodia-labs/bastion/internal/adapters/driven/config/file"
	"github.com/custodia-labs/bastion/internal/adapters/driven/loader"
	"github.com/custodia-labs/bastion/internal/adapters/driven/sealing"
	"github.com/custodia-labs/bastion/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/bastion/internal/adapters/driven/vector/flat"
	"github.com/custodia-labs/bastion/internal/adapters/driving/cli"
	"github.com/custodia-labs/bastion/internal/core/domain"
	"github.com/custodia-labs/bastion/internal/core/ports/driven"
	"github.com/custodia-labs/bastion/internal/core/services"
	"github.com/custodia-labs/bastion/internal/logger"
	"github.com/custodia-labs/bastion/internal/normalisers"
	"github.com/custodia-labs/bastion/internal/postprocessors"
)

// homeEnv relocates config.toml. The data directory itself is a setting.
const homeEnv = "BASTION_HOME"

// indexDir is the vector index directory inside the data directory.
const indexDir = "index"

// bootstrap builds the services a command scope needs.
func bootstrap(ctx context.Context, scope cli.Scope) (*cli.Services, error) {
	settingsService, settings, err := loadSettings()
	if err != nil {
		return nil, err
	}

	gate := services.NewGate(nil)
	if err := gate.RegisterUsers(settings.Users); err != nil {
		return nil, fmt.Errorf("register users: %w", err)
	}

	keyPath := resolvePath(settings.DataDir, settings.Security.KeyFile)

	if scope == cli.ScopeKeys {
		// The audit log is sealed under the key being replaced, so key
		// commands run without one.
		return &cli.Services{
			Settings: settingsService,
			Access:   gate,
			Keys:     services.NewKeyService(gate, sealing.NewKeyFile(keyPath), nil),
		}, nil
	}
	return buildFull(ctx, settingsService, settings, gate, keyPath)
}

// loadSettings opens the config store and resolves the effective settings.
func loadSettings() (*services.SettingsService, *domain.AppSettings, error) {
	store, err := file.NewConfigStore(os.Getenv(homeEnv))
	if err != nil {
		return nil, nil, fmt.Errorf("open config: %w", err)
	}
	settingsService := services.NewSettingsService(store)
	settings, err := settingsService.Get()
	if err != nil {
		return nil, nil, fmt.Errorf("load settings: %w", err)
	}
	return settingsService, settings, nil
}

// buildFull wires every adapter. Resources opened before a failure are
// closed again.
func buildFull(
	ctx context.Context,
	settingsService *services.SettingsService,
	settings *domain.AppSettings,
	gate *services.Gate,
	keyPath string,
) (_ *cli.Services, err error) {
	if err := settingsService.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	var closers []func() error
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				_ = closers[i]()
			}
		}
	}()

	var indexSealer, auditSealer driven.Sealer
	if settings.Security.Encryption {
		keyring, created, err := sealing.LoadOrCreateKeyFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("load master key: %w", err)
		}
		if created {
			logger.Warn("Generated a new master key at %s; keep it private", keyPath)
		}
		if indexSealer, err = keyring.Sealer(sealing.PurposeIndex); err != nil {
			return nil, err
		}
		if auditSealer, err = keyring.Sealer(sealing.PurposeAudit); err != nil {
			return nil, err
		}
	} else {
		logger.Warn("Encryption is disabled; the index and audit log are stored in plaintext")
	}

	aiServices, err := ai.Create(ctx, settings)
	if err != nil {
		return nil, err
	}
	closers = append(closers, func() error { aiServices.Close(); return nil })

	index, err := flat.New(flat.Config{
		Dir:       filepath.Join(settings.DataDir, indexDir),
		Dimension: aiServices.Embedding.Dimensions(),
		OverFetch: settings.Retrieval.OverFetch,
		Sealer:    indexSealer,
	})
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	closers = append(closers, index.Close)

	store, err := sqlite.NewStore(settings.DataDir)
	if err != nil {
		return nil, err
	}
	chunks := store.ChunkStore()
	closers = append(closers, chunks.Close)

	auditLog, err := auditfile.Open(auditfile.Config{
		Path:   filepath.Join(settings.DataDir, auditfile.DefaultFile),
		Sealer: auditSealer,
	})
	if err != nil {
		return nil, err
	}
	closers = append(closers, auditLog.Close)
	gate.SetAuditLog(auditLog)

	semantic := services.NewSemanticRetriever(aiServices.Embedding, index, chunks)
	hybrid := services.NewHybridRetriever(semantic, chunks, settings.Retrieval.SemanticWeight)
	pipeline := services.NewPipeline(semantic, hybrid, aiServices.LLM, auditLog,
		services.NewSafetyFilter(settings.Safety),
		services.PipelineOptions{
			DefaultClassification: settings.Security.DefaultClassification,
			Enforcement:           settings.Security.Enforcement,
			MaxTokens:             settings.LLM.MaxTokens,
			Temperature:           settings.LLM.Temperature,
		})
	prompts, err := file.NewPromptStore(filepath.Join(settings.DataDir, "prompts"))
	if err != nil {
		logger.Warn("Prompt overrides unavailable, using built-in prompts: %v", err)
	} else {
		pipeline.SetPromptStore(prompts)
	}

	processors := postprocessors.NewRegistry()
	postprocessors.RegisterDefaults(processors)
	chunker, err := postprocessors.BuildPipeline(processors, domain.PipelineConfigFor(settings.Chunking))
	if err != nil {
		return nil, fmt.Errorf("build chunker: %w", err)
	}

	formats := normalisers.NewRegistry()
	normalisers.RegisterDefaults(formats)
	ingestService := services.NewIngestService(gate, chunker, aiServices.Embedding, index, chunks, auditLog)
	ingestService.SetLoader(loader.New(formats))

	settingsService.SetAccess(gate, auditLog)

	systemService := services.NewSystemService(index, auditLog, "system")
	if _, err := systemService.Start(ctx); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	return &cli.Services{
		Query:    services.NewQueryService(gate, pipeline, auditLog, settings.Retrieval, settings.Safety),
		Ingest:   ingestService,
		Audit:    services.NewAuditService(gate, auditLog),
		Access:   gate,
		Settings: settingsService,
		System:   systemService,
		Keys:     services.NewKeyService(gate, sealing.NewKeyFile(keyPath), auditLog),
		Shutdown: func(ctx context.Context) error {
			errs := []error{systemService.Stop(ctx)}
			for i := len(closers) - 1; i >= 0; i-- {
				errs = append(errs, closers[i]())
			}
			return errors.Join(errs...)
		},
	}, nil
}

// resolvePath makes a relative path relative to the data directory.
func resolvePath(dataDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dataDir, path)
}
