package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dotsetgreg/studiogm/pkg/commands"
	"github.com/dotsetgreg/studiogm/pkg/config"
	"github.com/dotsetgreg/studiogm/pkg/embedding"
	"github.com/dotsetgreg/studiogm/pkg/gamestate"
	"github.com/dotsetgreg/studiogm/pkg/gm"
	"github.com/dotsetgreg/studiogm/pkg/logger"
	"github.com/dotsetgreg/studiogm/pkg/memory"
	"github.com/dotsetgreg/studiogm/pkg/providers"
	"github.com/dotsetgreg/studiogm/pkg/saves"
)

// appRuntime holds the services shared by every command once config is loaded.
type appRuntime struct {
	cfg      *config.Config
	saves    *saves.Store
	memStore *memory.SQLiteStore
	embedder embedding.Embedder
	summary  memory.SummaryFunc
	prompts  gm.Library
}

type globalFlags struct {
	configPath string
	debug      bool
}

func (f *globalFlags) path() string {
	if strings.TrimSpace(f.configPath) != "" {
		return f.configPath
	}
	return config.DefaultConfigPath()
}

func (f *globalFlags) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(f.path())
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", f.path(), err)
	}
	return cfg, nil
}

// openRuntime loads config, starts file logging and opens both databases.
func openRuntime(flags *globalFlags) (*appRuntime, error) {
	cfg, err := flags.loadConfig()
	if err != nil {
		return nil, err
	}
	level := logger.INFO
	if flags.debug {
		level = logger.DEBUG
	}
	if err := logger.Init(logger.Options{Level: level, FilePath: cfg.LogPath(), Console: flags.debug}); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	rt := &appRuntime{cfg: cfg}
	if rt.prompts, err = gm.LoadLibrary(cfg.GM.PromptsFile); err != nil {
		logger.WarnCF("cli", "Using built-in prompts", map[string]interface{}{"error": err.Error()})
	}
	if rt.saves, err = saves.Open(cfg.SavesDBPath()); err != nil {
		return nil, err
	}
	if rt.memStore, err = memory.NewSQLiteStore(cfg.MemoryDBPath()); err != nil {
		_ = rt.saves.Close()
		return nil, fmt.Errorf("open memory db: %w", err)
	}

	if cfg.EmbeddingEnabled() {
		rt.embedder, err = embedding.New(embedding.Config{
			URL:      cfg.Embedding.URL,
			APIKey:   cfg.Embedding.APIKey,
			Model:    cfg.Embedding.Model,
			Dialect:  embedding.Dialect(strings.ToLower(strings.TrimSpace(cfg.Embedding.Dialect))),
			TaskType: cfg.Embedding.TaskType,
		})
		if err != nil {
			logger.WarnCF("cli", "Embedding disabled, using local vectors", map[string]interface{}{"error": err.Error()})
			rt.embedder = nil
		}
	}
	if providers.SummaryStatus(cfg).Configured {
		client, err := providers.CreateSummaryClient(cfg)
		if err != nil {
			logger.WarnCF("cli", "Remote summarization disabled", map[string]interface{}{"error": err.Error()})
		} else {
			rt.summary = client.Summarize
		}
	}
	return rt, nil
}

func (rt *appRuntime) Close() {
	if rt.memStore != nil {
		_ = rt.memStore.Close()
	}
	if rt.saves != nil {
		_ = rt.saves.Close()
	}
	logger.Sync()
}

func (rt *appRuntime) policy() memory.Policy {
	vm, ms := rt.cfg.VectorMemory, rt.cfg.MemorySum
	return memory.Policy{
		Enabled:          vm.Enabled,
		AutoIndex:        vm.AutoIndex,
		MaxRetrieveCount: vm.MaxRetrieveCount,
		MinSimilarity:    vm.MinSimilarity,
		TagWeight:        vm.TagWeight,
		VectorWeight:     vm.VectorWeight,
		AutoSummarize:    ms.AutoSummarize,
		MidTermThreshold: ms.MidTermThreshold,
		BatchSize:        ms.BatchSize,
	}
}

// index opens the memory index of one save. The index is built even when
// vector memory is disabled so mid-term summarization keeps running.
func (rt *appRuntime) index(saveID string) (*memory.Index, error) {
	opts := []memory.IndexOption{memory.WithPolicy(rt.policy())}
	if rt.embedder != nil {
		opts = append(opts, memory.WithEmbedder(rt.embedder))
	}
	if rt.summary != nil {
		opts = append(opts, memory.WithSummaryFunc(rt.summary))
	}
	return memory.NewIndex(rt.memStore, saveID, opts...)
}

// engine wires a loaded save to the configured generator and memory index.
// A save whose index is empty gets its long-term memories imported.
func (rt *appRuntime) engine(ctx context.Context, gs *gamestate.GameState, extra ...gm.Option) (*gm.Engine, *memory.Index, error) {
	if err := providers.ValidateProviderConfig(rt.cfg); err != nil {
		return nil, nil, err
	}
	gen, err := providers.CreateGenerator(rt.cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create generator: %w", err)
	}
	idx, err := rt.index(gs.SaveID())
	if err != nil {
		return nil, nil, err
	}
	if idx.Enabled() && len(gs.Memory.LongTerm) > 0 {
		if stats, err := idx.Stats(ctx); err == nil && stats.Total == 0 {
			if _, err := idx.ImportLongTerm(ctx, gs.Memory.LongTerm); err != nil {
				logger.WarnCF("cli", "Long-term import failed", map[string]interface{}{"error": err.Error()})
			}
		}
	}

	var interp *commands.Interpreter
	if rt.cfg.GM.StrictValues {
		interp = commands.NewInterpreter(commands.WithRules(commands.StrictRules()...))
	} else {
		interp = commands.NewInterpreter()
	}
	opts := append([]gm.Option{
		gm.WithIndex(idx),
		gm.WithInterpreter(interp),
		gm.WithPrompts(rt.prompts),
		gm.WithSettings(gm.SettingsFromConfig(rt.cfg)),
	}, extra...)
	eng, err := gm.New(gen, gs, opts...)
	if err != nil {
		_ = idx.Close()
		return nil, nil, err
	}
	return eng, idx, nil
}

// resolveSave loads the save named by args, or the most recent one.
func (rt *appRuntime) resolveSave(ctx context.Context, args []string) (*gamestate.GameState, error) {
	id := ""
	if len(args) > 0 {
		id = strings.TrimSpace(args[0])
	}
	if id == "" {
		latest, err := rt.saves.Latest(ctx)
		if errors.Is(err, saves.ErrNotFound) {
			return nil, fmt.Errorf("no saves yet; start one with `%s new`", appName)
		}
		if err != nil {
			return nil, err
		}
		id = latest.ID
	}
	return rt.saves.Load(ctx, id)
}

func (rt *appRuntime) persist(ctx context.Context, gs *gamestate.GameState) error {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	_, err := rt.saves.Save(saveCtx, gs)
	return err
}
