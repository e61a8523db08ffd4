// Command widgethost serves a dashboard of isolated widgets and inspects its
// persisted state.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/lmittmann/tint"
	"github.com/redis/go-redis/v9"

	"github.com/wolfeidau/widgethost/dashboard"
	"github.com/wolfeidau/widgethost/kv"
	"github.com/wolfeidau/widgethost/registry"
	"github.com/wolfeidau/widgethost/server"
	"github.com/wolfeidau/widgethost/telemetry"
)

var version = "dev"

// Globals are flags shared by every command.
type Globals struct {
	LogLevel  string `help:"Log level." default:"info" enum:"debug,info,warn,error" env:"WIDGETHOST_LOG_LEVEL"`
	LogFormat string `help:"Log format." default:"text" enum:"text,json" env:"WIDGETHOST_LOG_FORMAT"`

	Store StoreFlags `embed:"" prefix:"store-"`

	logger *slog.Logger
}

// StoreFlags select and configure the persistent store.
type StoreFlags struct {
	Backend     string `help:"Store backend." default:"bolt" enum:"bolt,redis" env:"WIDGETHOST_STORE_BACKEND"`
	Path        string `help:"bbolt database file." default:"widgethost.db" type:"path" env:"WIDGETHOST_STORE_PATH"`
	NoSync      bool   `help:"Skip fsync on bbolt commits." env:"WIDGETHOST_STORE_NO_SYNC"`
	RedisAddr   string `help:"Redis address." default:"localhost:6379" env:"WIDGETHOST_STORE_REDIS_ADDR"`
	RedisDB     int    `help:"Redis database number." default:"0" env:"WIDGETHOST_STORE_REDIS_DB"`
	RedisPrefix string `help:"Prefix applied to every Redis key." default:"widgethost:" env:"WIDGETHOST_STORE_REDIS_PREFIX"`
}

func (sf StoreFlags) open(ctx context.Context, logger *slog.Logger) (kv.Store, error) {
	switch sf.Backend {
	case "redis":
		rs := kv.NewRedisStore(&redis.Options{Addr: sf.RedisAddr, DB: sf.RedisDB}, sf.RedisPrefix)
		if err := rs.Ping(ctx); err != nil {
			_ = rs.Close()
			return nil, fmt.Errorf("connecting to redis %s: %w", sf.RedisAddr, err)
		}
		return rs, nil
	default:
		return kv.OpenBolt(sf.Path, kv.WithLogger(logger.With("component", "kv")), kv.WithNoSync(sf.NoSync))
	}
}

// CLI is the command tree.
type CLI struct {
	Globals

	Serve   ServeCmd         `cmd:"" help:"Serve the dashboard."`
	Keys    KeysCmd          `cmd:"" help:"List stored keys."`
	Get     GetCmd           `cmd:"" help:"Print a stored value."`
	Purge   PurgeCmd         `cmd:"" help:"Delete a widget and everything stored for it."`
	Version kong.VersionFlag `help:"Print version and exit."`
}

// ServeCmd runs the HTTP server.
type ServeCmd struct {
	Address        string        `help:"Address to listen on." default:":8080" env:"WIDGETHOST_ADDRESS"`
	Documents      string        `help:"Directory holding widgets/<kind>/ documents." type:"existingdir" env:"WIDGETHOST_DOCUMENTS"`
	Registry       string        `help:"YAML file of additional widget kinds." type:"existingfile" env:"WIDGETHOST_REGISTRY"`
	Stylesheets    []string      `help:"Stylesheets injected into widget documents." env:"WIDGETHOST_STYLESHEETS"`
	Shim           string        `help:"Bridge script injected into widget documents." env:"WIDGETHOST_SHIM"`
	OriginPatterns []string      `help:"Hosts allowed to open websockets cross-origin." env:"WIDGETHOST_ORIGIN_PATTERNS"`
	AuthToken      string        `help:"Bearer token required on the API." env:"WIDGETHOST_AUTH_TOKEN"`
	RetryDelay     time.Duration `help:"Delay before retrying a message to an unloaded widget." default:"100ms" env:"WIDGETHOST_RETRY_DELAY"`
	Prometheus     bool          `help:"Expose Prometheus metrics on /metrics." env:"WIDGETHOST_PROMETHEUS"`
	OTLPEndpoint   string        `help:"OTLP gRPC endpoint for metrics." env:"WIDGETHOST_OTLP_ENDPOINT"`
}

func (c *ServeCmd) Run(g *Globals) error {
	logger := g.logger
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownMetrics, err := telemetry.InitMetrics(ctx, telemetry.MetricsConfig{
		ServiceVersion:   version,
		OTLPEndpoint:     c.OTLPEndpoint,
		EnablePrometheus: c.Prometheus,
	})
	if err != nil {
		return fmt.Errorf("initialising metrics: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			logger.Warn("shutting down metrics", "error", err)
		}
	}()

	store, err := g.Store.open(ctx, logger)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()
	instrumented := kv.NewInstrumentedStore(store, g.Store.Backend)

	reg := registry.Builtin()
	if c.Registry != "" {
		if err := reg.Load(c.Registry); err != nil {
			return fmt.Errorf("loading registry: %w", err)
		}
	}

	rt, err := dashboard.New(dashboard.Config{
		Store:      instrumented,
		Registry:   reg,
		RetryDelay: c.RetryDelay,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("creating runtime: %w", err)
	}
	defer rt.Close()

	n, err := rt.RestoreAll(ctx)
	if err != nil {
		return fmt.Errorf("restoring dashboard: %w", err)
	}

	srv, err := server.New(server.Config{
		Address:        c.Address,
		Runtime:        rt,
		DocumentRoot:   c.Documents,
		Stylesheets:    c.Stylesheets,
		ShimScript:     c.Shim,
		OriginPatterns: c.OriginPatterns,
		AuthToken:      c.AuthToken,
		Logger:         logger.With("component", "server"),
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	logger.Info("server started",
		"address", srv.Address(),
		"widgets", n,
		"store", g.Store.Backend,
		"version", version,
	)

	select {
	case <-ctx.Done():
		logger.Info("received signal, shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// KeysCmd lists stored keys.
type KeysCmd struct {
	Prefix string `help:"Only list keys with this prefix."`
	Widget string `help:"Only list keys stored by this widget."`
}

func (c *KeysCmd) Run(g *Globals) error {
	ctx := context.Background()
	store, err := g.Store.open(ctx, g.logger)
	if err != nil {
		return err
	}
	defer store.Close()

	prefix := c.Prefix
	if c.Widget != "" {
		prefix = "widget_" + c.Widget + "_" + c.Prefix
	}
	keys, err := store.ListKeysWithPrefix(ctx, prefix)
	if err != nil {
		return err
	}
	for _, k := range keys {
		fmt.Println(k)
	}
	return nil
}

// GetCmd prints one stored value as JSON.
type GetCmd struct {
	Key string `arg:"" help:"Key to read."`
}

func (c *GetCmd) Run(g *Globals) error {
	ctx := context.Background()
	store, err := g.Store.open(ctx, g.logger)
	if err != nil {
		return err
	}
	defer store.Close()

	v, err := store.Get(ctx, c.Key)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return fmt.Errorf("key %q not found", c.Key)
		}
		return err
	}
	fmt.Println(string(v))
	return nil
}

// PurgeCmd deletes a widget's storage and dashboard entries while the
// server is stopped.
type PurgeCmd struct {
	WidgetID string `arg:"" name:"widget-id" help:"Widget to purge."`
}

func (c *PurgeCmd) Run(g *Globals) error {
	ctx := context.Background()
	store, err := g.Store.open(ctx, g.logger)
	if err != nil {
		return err
	}
	defer store.Close()

	removed, err := dashboard.PurgeWidget(ctx, store, c.WidgetID)
	if err != nil {
		return err
	}
	g.logger.Info("purged widget", "widget", c.WidgetID, "keys_deleted", len(removed))
	return nil
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	_ = lvl.UnmarshalText([]byte(level))

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	default:
		handler = tint.NewHandler(os.Stderr, &tint.Options{Level: lvl, TimeFormat: time.Kitchen})
	}
	return slog.New(handler)
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("widgethost"),
		kong.Description("A dashboard host for isolated widgets."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)

	cli.logger = newLogger(cli.LogLevel, cli.LogFormat)
	slog.SetDefault(cli.logger)

	ctx.FatalIfErrorf(ctx.Run(&cli.Globals))
}
