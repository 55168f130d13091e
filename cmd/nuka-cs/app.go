package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/nuka-cs/internal/analysis"
	"github.com/nidhogg/nuka-cs/internal/config"
	"github.com/nidhogg/nuka-cs/internal/conversation"
	"github.com/nidhogg/nuka-cs/internal/embedding"
	"github.com/nidhogg/nuka-cs/internal/knowledge"
	"github.com/nidhogg/nuka-cs/internal/memory"
	"github.com/nidhogg/nuka-cs/internal/orchestrator"
	"github.com/nidhogg/nuka-cs/internal/sentiment"
	"github.com/nidhogg/nuka-cs/internal/tagging"
)

// app is the wired engine shared by serve, analyze and chat.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	assistant *orchestrator.Assistant
	scorer    *tagging.Scorer
	fusion    *sentiment.Fusion
	publisher *orchestrator.StreamPublisher
	closers   []func()
}

// buildApp wires memory, analyzers, knowledge sources and the outcome
// publisher from cfg. Optional backends that fail to connect are skipped.
func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, publish bool) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	memRules := memory.DefaultRules()
	if cfg.Memory.RulesPath != "" {
		r, err := memory.LoadRules(cfg.Memory.RulesPath)
		if err != nil {
			return nil, err
		}
		memRules = r
	}
	store := memory.NewStore(memory.Config{
		ShortMemoryMax: cfg.Memory.ShortMemoryMax,
		LongMemoryMax:  cfg.Memory.LongMemoryMax,
		ContextWindow:  cfg.Memory.ContextWindow,
		DecayHours:     cfg.Memory.MemoryDecayHours,
	}, memRules, logger)

	tagRules := tagging.DefaultRuleSet()
	if cfg.Tagging.RulesPath != "" {
		rs, err := tagging.LoadRules(cfg.Tagging.RulesPath)
		if err != nil {
			return nil, err
		}
		tagRules = rs
	}
	scorer, err := tagging.NewScorer(tagRules, cfg.Tagging.TagConfidenceThreshold, logger)
	if err != nil {
		return nil, fmt.Errorf("build tag scorer: %w", err)
	}
	a.scorer = scorer
	a.fusion = sentiment.NewFusion(logger)

	source, err := a.buildKnowledge(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	reg := orchestrator.NewRegistry(logger)
	analyzers := []struct {
		name string
		an   analysis.Analyzer
	}{
		{analysis.AgentSentiment, analysis.NewSentimentAnalyzer(a.fusion)},
		{analysis.AgentMemory, analysis.NewMemoryAnalyzer(store, cfg.Memory.ContextWindow)},
		{analysis.AgentTag, analysis.NewTagAnalyzer(scorer)},
		{analysis.AgentKnowledge, analysis.NewKnowledgeAnalyzer(
			knowledge.NewRanker(cfg.Knowledge.KnowledgeTopK, logger), source, cfg.Knowledge.SimilarityThreshold)},
	}
	for _, an := range analyzers {
		if err := reg.Register(an.name, an.an); err != nil {
			a.Close()
			return nil, fmt.Errorf("register %s: %w", an.name, err)
		}
	}

	var pub orchestrator.Publisher
	if publish && cfg.Redis.URL != "" {
		p, err := orchestrator.NewStreamPublisher(cfg.Redis.URL, cfg.Redis.Stream, cfg.Redis.MaxLen, logger)
		if err != nil {
			logger.Warn("Redis unavailable, running without outcome stream", zap.Error(err))
		} else {
			a.publisher = p
			a.closers = append(a.closers, func() { p.Close() })
			pub = p
		}
	}

	timeout := time.Duration(cfg.Pipeline.PerAgentTimeoutMs) * time.Millisecond
	orch := orchestrator.New(reg, timeout, logger)
	a.assistant = orchestrator.NewAssistant(orch, store, conversation.NewMachine(logger), pub, logger)
	return a, nil
}

// buildKnowledge opens every configured source and returns them behind one
// MultiSource, or nil when none is available.
func (a *app) buildKnowledge(ctx context.Context) (knowledge.Source, error) {
	cfg := a.cfg
	if len(cfg.Knowledge.Sources) == 0 {
		return nil, nil
	}

	embedder, err := embedding.New(embedding.Config{
		Provider:  cfg.Embedding.Provider,
		Endpoint:  cfg.Embedding.Endpoint,
		Model:     cfg.Embedding.Model,
		APIKey:    cfg.Embedding.APIKey,
		Dimension: cfg.Embedding.Dimension,
	})
	if err != nil {
		return nil, fmt.Errorf("build embedder: %w", err)
	}

	var seed []knowledge.Document
	if cfg.Knowledge.SeedPath != "" {
		if seed, err = loadSeed(cfg.Knowledge.SeedPath); err != nil {
			return nil, err
		}
	}

	var named []knowledge.NamedSource
	for _, kind := range cfg.Knowledge.Sources {
		switch kind {
		case "chromem":
			cs, err := knowledge.NewChromemSource("knowledge", embedder)
			if err != nil {
				return nil, err
			}
			if err := cs.Add(ctx, seed...); err != nil {
				return nil, fmt.Errorf("seed chromem: %w", err)
			}
			named = append(named, knowledge.NamedSource{Name: kind, Source: cs})
			a.logger.Info("chromem knowledge source ready", zap.Int("documents", cs.Count()))

		case "qdrant":
			qs, err := knowledge.NewQdrantSource(knowledge.QdrantConfig{
				Host:       cfg.Qdrant.Host,
				Port:       cfg.Qdrant.Port,
				Collection: cfg.Qdrant.Collection,
			}, embedder, a.logger)
			if err != nil {
				a.logger.Warn("Qdrant unavailable, skipping source", zap.Error(err))
				continue
			}
			if err := qs.EnsureCollection(ctx); err != nil {
				a.logger.Warn("Qdrant collection unavailable, skipping source", zap.Error(err))
				qs.Close()
				continue
			}
			if len(seed) > 0 {
				if err := qs.Upsert(ctx, seed...); err != nil {
					a.logger.Warn("seed qdrant failed", zap.Error(err))
				}
			}
			a.closers = append(a.closers, func() { qs.Close() })
			named = append(named, knowledge.NamedSource{Name: kind, Source: qs})

		case "postgres":
			if cfg.Database.Postgres.DSN == "" {
				a.logger.Warn("postgres source configured without a DSN, skipping")
				continue
			}
			ps, err := knowledge.NewPostgresSource(ctx, cfg.Database.Postgres.DSN, a.logger)
			if err != nil {
				a.logger.Warn("PostgreSQL unavailable, skipping source", zap.Error(err))
				continue
			}
			if err := ps.Migrate(ctx, cfg.Database.Postgres.MigrationsDir); err != nil {
				ps.Close()
				return nil, fmt.Errorf("migrate knowledge tables: %w", err)
			}
			a.closers = append(a.closers, ps.Close)
			named = append(named, knowledge.NamedSource{Name: kind, Source: ps})
		}
	}

	if len(named) == 0 {
		return nil, nil
	}
	return knowledge.NewMultiSource(a.logger, named...), nil
}

// loadSeed reads a JSON array of knowledge documents.
func loadSeed(path string) ([]knowledge.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read knowledge seed %s: %w", path, err)
	}
	var docs []knowledge.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("parse knowledge seed %s: %w", path, err)
	}
	return docs, nil
}

// Close releases backend connections in reverse order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
