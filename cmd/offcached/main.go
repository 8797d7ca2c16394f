// offcached runs the offline delivery agent as a local intercepting proxy
// in front of the origin app: install/activate at startup, then serve every
// request through the policy layer so the UI and the inference model stay
// available when the origin is unreachable.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/offcache"
	"github.com/unkn0wn-root/offcache/generation"
	"github.com/unkn0wn-root/offcache/httpadapter"
	zaplog "github.com/unkn0wn-root/offcache/log/zap"
	"github.com/unkn0wn-root/offcache/provider"
	"github.com/unkn0wn-root/offcache/provider/bigcache"
	"github.com/unkn0wn-root/offcache/provider/kioshun"
	"github.com/unkn0wn-root/offcache/provider/ristretto"
	"github.com/unkn0wn-root/offcache/provider/sqlite"
	"github.com/unkn0wn-root/offcache/registry"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:     "offcached",
		Short:   "offcached - offline asset and inference model delivery agent",
		Version: version,
	}

	root.AddCommand(
		newServeCmd(),
		newInstallCmd(),
		newCachesCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Install, activate, and serve intercepted requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := Load(cfgPath)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "offcached.yaml", "config file")
	return cmd
}

func newInstallCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Precache the manifest into a new version and activate it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := Load(cfgPath)
			if err != nil {
				return err
			}
			zl, err := buildZap(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer zl.Sync()

			agent, err := buildAgent(cfg, zl)
			if err != nil {
				return err
			}
			defer agent.Close(cmd.Context())

			v, err := agent.OnInstall(cmd.Context())
			if err != nil {
				return err
			}
			if err := agent.OnActivate(cmd.Context()); err != nil {
				return err
			}
			fmt.Printf("installed and activated %s\n", v.Name())
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "offcached.yaml", "config file")
	return cmd
}

func newCachesCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "caches",
		Short: "List versioned cache stores",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := Load(cfgPath)
			if err != nil {
				return err
			}
			reg, _, err := buildRegistry(cfg)
			if err != nil {
				return err
			}
			defer reg.Close(cmd.Context())

			names, err := reg.Names(cmd.Context())
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Println(n)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "offcached.yaml", "config file")
	return cmd
}

func runServe(ctx context.Context, cfg *Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	zl, err := buildZap(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer zl.Sync()

	agent, err := buildAgent(cfg, zl)
	if err != nil {
		return err
	}
	defer agent.Close(context.Background())

	// adopt a persisted store first so an offline boot can still serve
	if v, ok, err := agent.Resume(ctx); err != nil {
		zl.Warn("resume failed", zap.Error(err))
	} else if ok {
		zl.Info("resumed from persisted store", zap.String("store", v.Name()))
	}

	// then try a fresh deployment; failure keeps the resumed version
	if v, err := agent.OnInstall(ctx); err != nil {
		zl.Warn("install failed; serving prior version if any", zap.Error(err))
	} else if err := agent.OnActivate(ctx); err != nil {
		zl.Error("activate failed", zap.String("store", v.Name()), zap.Error(err))
	} else {
		zl.Info("serving version", zap.String("store", v.Name()))
	}

	handler := httpadapter.New(agent, zaplog.ZapLogger{L: zl})
	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		zl.Info("offcached listening", zap.String("addr", cfg.Listen))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

func buildZap(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	lvl, err := zap.ParseAtomicLevel(coalesceStr(level, "info"))
	if err != nil {
		return nil, fmt.Errorf("log_level: %w", err)
	}
	cfg.Level = lvl
	return cfg.Build()
}

func buildAgent(cfg *Config, zl *zap.Logger) (*offcache.Agent, error) {
	reg, gens, err := buildRegistry(cfg)
	if err != nil {
		return nil, err
	}
	return offcache.New(offcache.Options{
		App:                   cfg.App,
		Manifest:              cfg.Manifest,
		Registry:              reg,
		Generations:           gens,
		Fetcher:               &offcache.HTTPFetcher{Base: cfg.Upstream},
		Logger:                zaplog.ZapLogger{L: zl},
		DeferTakeover:         cfg.DeferTakeover,
		PersistRevalidateMiss: cfg.PersistRevalidateMiss,
	})
}

func buildRegistry(cfg *Config) (registry.Registry, generation.Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return registry.NewLocal(nil), generation.NewLocal(), nil

	case "bigcache":
		return registry.NewLocal(func(string) (provider.Provider, error) {
			return bigcache.New(bigcache.Config{
				// entries must outlive a deployment cycle
				LifeWindow: 30 * 24 * time.Hour,
			})
		}), generation.NewLocal(), nil

	case "ristretto":
		return registry.NewLocal(func(string) (provider.Provider, error) {
			return ristretto.New(ristretto.Config{
				NumCounters: 1e6,
				MaxCost:     512 << 20, // 512 MB per store
				BufferItems: 64,
			})
		}), generation.NewLocal(), nil

	case "kioshun":
		return registry.NewLocal(func(string) (provider.Provider, error) {
			return kioshun.New(kioshun.Config{
				MaxItems:   100_000,
				ShardCount: 0, // auto
			}), nil
		}), generation.NewLocal(), nil

	case "sqlite":
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("data_dir: %w", err)
		}
		mk := sqlite.InDir(cfg.DataDir)
		reg := registry.NewLocal(func(name string) (provider.Provider, error) {
			return mk(name)
		})
		// generations must also survive restarts; derive from a tiny
		// bookkeeping store
		gens, err := newSQLiteGenerations(cfg.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return reg, gens, nil

	case "redis":
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		reg, err := registry.NewRedis(registry.RedisConfig{
			Client:      client,
			Namespace:   cfg.Redis.Namespace,
			CloseClient: true,
		})
		if err != nil {
			return nil, nil, err
		}
		gens, err := generation.NewRedis(generation.RedisConfig{
			Client:    client,
			Namespace: cfg.Redis.Namespace,
		})
		if err != nil {
			return nil, nil, err
		}
		return reg, gens, nil

	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

func coalesceStr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
