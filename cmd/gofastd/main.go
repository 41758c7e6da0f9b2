// Command gofastd runs the cache server: it loads configuration, wires up
// the store and protocol dispatcher, and drives one of the two runtime
// backends across a pool of SO_REUSEPORT workers, the way the teacher's
// cmd.go wires GoFastServer together but generalized to multiple workers
// and protocols.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/armandparser/gofast-cache/internal/bufpool"
	"github.com/armandparser/gofast-cache/internal/config"
	"github.com/armandparser/gofast-cache/internal/dispatch"
	"github.com/armandparser/gofast-cache/internal/logging"
	"github.com/armandparser/gofast-cache/internal/netio"
	"github.com/armandparser/gofast-cache/internal/netio/completion"
	"github.com/armandparser/gofast-cache/internal/netio/readiness"
	"github.com/armandparser/gofast-cache/internal/store"
)

var (
	version = "dev" // set during build with -ldflags
	v       = viper.New()
)

var rootCmd = &cobra.Command{
	Use:     "gofastd",
	Short:   "gofastd - a high-performance in-memory cache server",
	Version: version,
	RunE:    runServer,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("host", "H", "localhost", "Host to bind to")
	flags.IntP("port", "p", 11211, "Port to listen on")
	flags.String("protocol", "memcached", "Wire protocol: memcached, resp, ping, echo")
	flags.String("runtime-backend", "readiness", "Event loop backend: readiness, completion")
	flags.Int("workers", 4, "Number of SO_REUSEPORT worker goroutines")
	flags.String("max-memory", "1GB", "Maximum memory to use (e.g., 512MB, 2GB)")
	flags.Int("max-connections", 10000, "Maximum connections per worker")
	flags.Int("max-value-size", 1024*1024, "Maximum value size accepted by the store")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-format", "text", "Log format (text, json)")

	bindings := map[string]string{
		"host":            "host",
		"port":            "port",
		"protocol":        "protocol",
		"runtime-backend": "runtime_backend",
		"workers":         "workers",
		"max-memory":      "max_memory",
		"max-connections": "max_connections",
		"max-value-size":  "max_value_size",
		"log-level":       "log_level",
		"log-format":      "log_format",
	}
	for flag, key := range bindings {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}

	rootCmd.AddCommand(configCmd, versionCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(v)
		if err != nil {
			return err
		}
		fmt.Println("gofastd configuration:")
		fmt.Println(strings.Repeat("=", 31))
		fmt.Printf("Host: %s\n", cfg.Host)
		fmt.Printf("Port: %d\n", cfg.Port)
		fmt.Printf("Protocol: %s\n", cfg.Protocol)
		fmt.Printf("Runtime backend: %s\n", cfg.RuntimeBackend)
		fmt.Printf("Workers: %d\n", cfg.Workers)
		fmt.Printf("Max memory: %s\n", cfg.MaxMemory)
		fmt.Printf("Max connections: %d\n", cfg.MaxConnections)
		fmt.Printf("Max value size: %d\n", cfg.MaxValueSize)
		fmt.Printf("Log level: %s\n", cfg.LogLevel)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("gofastd %s\n", version)
		fmt.Printf("built with %s\n", runtime.Version())
		fmt.Printf("%s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(v)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, atomicLevel, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer log.Sync()

	maxMemory, err := cfg.ParseMemorySize()
	if err != nil {
		return fmt.Errorf("invalid max_memory: %w", err)
	}

	st := store.New(store.Config{MaxMemory: maxMemory, DefaultTTL: cfg.DefaultTTL}, log)
	d := dispatch.New(st, cfg.MaxValueSize, cfg.BufferSize, version)
	proto := dispatchProtocol(cfg.Protocol)

	// g supervises both the cleanup loop and every worker's Run loop: if any
	// of them returns an error, gctx is canceled and the others are asked to
	// stop instead of leaking goroutines the rest of the process forgot about.
	g, gctx := errgroup.WithContext(context.Background())

	stopCleanup := startCleanupLoop(gctx, g, st, cfg.CleanupInterval, log)

	config.WatchConfig(v, func(newCfg *config.Config) {
		if newCfg.LogLevel != cfg.LogLevel {
			var zlvl zapcore.Level
			if err := zlvl.UnmarshalText([]byte(newCfg.LogLevel)); err == nil {
				atomicLevel.SetLevel(zlvl)
				log.Info("log level reloaded", zap.String("level", newCfg.LogLevel))
			}
		}
		st.SetDefaultTTL(newCfg.DefaultTTL)
		cfg.LogLevel = newCfg.LogLevel
	})

	log.Info("starting gofastd",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("protocol", string(cfg.Protocol)),
		zap.String("backend", string(cfg.RuntimeBackend)),
		zap.Int("workers", cfg.Workers),
	)

	workers, err := startWorkers(g, cfg, d, log, proto)
	if err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		log.Info("shutting down gofastd")
	case <-gctx.Done():
		log.Warn("shutting down gofastd after worker failure")
	}

	var wg conc.WaitGroup
	for _, w := range workers {
		w := w
		wg.Go(func() { w.Stop() })
	}
	wg.Wait()
	stopCleanup()

	if err := g.Wait(); err != nil {
		log.Error("worker group exited with error", zap.Error(err))
	}

	log.Info("gofastd stopped")
	return nil
}

// worker is the common interface both runtime backends satisfy, so
// runServer doesn't need to branch on backend choice past startup.
type worker interface {
	Run() error
	Stop()
}

func startWorkers(g *errgroup.Group, cfg *config.Config, d *dispatch.Dispatcher, log *zap.Logger, proto dispatch.Protocol) ([]worker, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	workers := make([]worker, 0, cfg.Workers)

	for i := 0; i < cfg.Workers; i++ {
		ln, err := netio.ListenReusePort("tcp", addr)
		if err != nil {
			for _, w := range workers {
				w.Stop()
			}
			return nil, fmt.Errorf("worker %d: listen: %w", i, err)
		}

		// Two pools per worker, per the spec's "a read pool + a write pool"
		// requirement: responses are formatted directly into a write-pool
		// buffer so no allocation occurs on the hot path in either direction.
		readPool := bufpool.New(cfg.BufferCount, cfg.BufferSize)
		writePool := bufpool.New(cfg.BufferCount, cfg.BufferSize)

		var w worker
		switch cfg.RuntimeBackend {
		case config.BackendCompletion:
			w, err = completion.NewWorker(i, ln, proto, d, readPool, writePool, cfg.MaxConnections, log)
		default:
			w, err = readiness.NewWorker(i, ln, proto, d, readPool, writePool, cfg.MaxConnections, log)
		}
		if err != nil {
			ln.Close()
			for _, existing := range workers {
				existing.Stop()
			}
			return nil, fmt.Errorf("worker %d: %w", i, err)
		}

		workers = append(workers, w)
		id := i
		wk := w
		g.Go(func() error {
			if err := wk.Run(); err != nil {
				log.Error("worker exited", zap.Int("worker", id), zap.Error(err))
				return fmt.Errorf("worker %d: %w", id, err)
			}
			return nil
		})
	}

	return workers, nil
}

// startCleanupLoop runs the periodic expired-key sweep under g, so a panic-
// free error return from it surfaces through g.Wait() the same way a worker's
// does, and cancels gctx for every other supervised goroutine.
func startCleanupLoop(ctx context.Context, g *errgroup.Group, st *store.Store, interval time.Duration, log *zap.Logger) func() {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	done := make(chan struct{})
	var closeOnce sync.Once
	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if n := st.CleanupExpired(); n > 0 {
					log.Debug("cleaned up expired keys", zap.Int("count", n))
				}
			}
		}
	})
	return func() {
		closeOnce.Do(func() { close(done) })
	}
}

func dispatchProtocol(p config.Protocol) dispatch.Protocol {
	switch p {
	case config.ProtocolRESP:
		return dispatch.RESP
	case config.ProtocolPing:
		return dispatch.Ping
	case config.ProtocolEcho:
		return dispatch.Echo
	default:
		return dispatch.Memcached
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
