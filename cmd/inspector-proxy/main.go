// inspector-proxy sits between a JavaScript debugger and a device inspector
// and smooths over protocol differences. It can also keep a store of updates
// trimmed to a fixed size.
//
// Configuration comes from the environment; see Config.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ggoodman/inspector-proxy-go/proxy"
	"github.com/ggoodman/inspector-proxy-go/reaper"
	"github.com/ggoodman/inspector-proxy-go/updates"
	"github.com/ggoodman/inspector-proxy-go/updates/fsstore"
	redisstore "github.com/ggoodman/inspector-proxy-go/updates/redis"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flagSet := pflag.NewFlagSet("inspector-proxy", pflag.ContinueOnError)
	printSchema := flagSet.Bool("manifest-schema", false, "print the JSON Schema of update manifests and exit")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}

	if *printSchema {
		b, err := fsstore.ManifestSchema()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(os.Stdout, string(b))
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := proxy.NewServer(proxy.Config{
		DeviceAddr: cfg.DeviceAddr,
		LogHandler: log.Handler(),
	})
	if err != nil {
		return err
	}
	httpSrv := &http.Server{
		Addr:              cfg.StatusAddr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	store, trigger, err := openStore(ctx, cfg.Updates, log)
	if err != nil {
		return err
	}
	var r *reaper.Reaper
	if store != nil {
		defer store.Close()
		policy, err := reaper.NewDevelopmentClientPolicy(cfg.Updates.MaxToKeep)
		if err != nil {
			return err
		}
		r = reaper.New(store, policy, reaper.WithLogger(log))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 3)
	var wg sync.WaitGroup
	spawn := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, http.ErrServerClosed) {
				errc <- fmt.Errorf("%s: %w", name, err)
			}
			cancel()
		}()
	}

	spawn("proxy", func() error { return srv.ListenAndServe(ctx, cfg.ListenAddr) })
	spawn("status", func() error {
		log.InfoContext(ctx, "serving status and websocket debuggers", slog.String("addr", cfg.StatusAddr))
		return httpSrv.ListenAndServe()
	})
	if r != nil {
		markLaunched(ctx, store, cfg.Updates.LaunchedID, log)
		spawn("reaper", func() error {
			return r.Run(ctx, cfg.Updates.LaunchedID, cfg.Updates.ReapInterval, trigger)
		})
	}

	<-ctx.Done()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("status server shutdown", slog.String("err", err.Error()))
	}
	srv.Close()
	wg.Wait()
	close(errc)

	var errs []error
	for err := range errc {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func newLogger(cfg Config) *slog.Logger {
	level, _ := cfg.level()
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// openStore returns nil when no backend is configured. The trigger channel
// is non-nil only for backends that can report changes.
func openStore(ctx context.Context, cfg UpdatesConfig, log *slog.Logger) (updates.Store, <-chan struct{}, error) {
	switch cfg.Backend {
	case backendFS:
		s, err := fsstore.New(cfg.Dir, fsstore.WithLogger(log))
		if err != nil {
			return nil, nil, err
		}
		trigger, err := s.Watch(ctx)
		if err != nil {
			return nil, nil, err
		}
		return s, trigger, nil

	case backendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		s, err := redisstore.New(redisstore.Config{Client: client, KeyPrefix: cfg.KeyPrefix})
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return s, nil, nil
	}
	return nil, nil, nil
}

// markLaunched records that the launched update is in use so it sorts as the
// most recently accessed.
func markLaunched(ctx context.Context, store updates.Store, id string, log *slog.Logger) {
	if id == "" {
		return
	}
	err := store.MarkAccessed(ctx, id, time.Now())
	switch {
	case errors.Is(err, updates.ErrNotFound):
		log.WarnContext(ctx, "launched update is not in the store", slog.String("id", id))
	case err != nil:
		log.WarnContext(ctx, "failed to mark launched update", slog.String("id", id), slog.String("err", err.Error()))
	}
}
