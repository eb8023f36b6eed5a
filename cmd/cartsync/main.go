package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/cartsync/internal/cartsync"
	"github.com/angelmondragon/cartsync/internal/chat"
	"github.com/angelmondragon/cartsync/internal/favorites"
	"github.com/angelmondragon/cartsync/internal/render"
	"github.com/angelmondragon/cartsync/internal/scenario"
	"github.com/angelmondragon/cartsync/internal/storefront"
	"github.com/angelmondragon/cartsync/internal/storefront/storefronttest"
	"github.com/angelmondragon/cartsync/pkg/config"
	"github.com/angelmondragon/cartsync/pkg/logger"
	"github.com/angelmondragon/cartsync/pkg/metrics"
	"github.com/angelmondragon/cartsync/pkg/types"
)

const (
	serviceName     = "cartsync"
	shutdownTimeout = 10 * time.Second
)

func main() {
	scenarioPath := flag.String("scenario", "cmd/cartsync/scenarios/demo.yaml", "scenario file to play")
	linger := flag.Bool("linger", false, "keep serving /metrics after the scenario finishes")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
		Output:      os.Stderr,
	})

	sc, err := scenario.Load(*scenarioPath)
	if err != nil {
		logg.Error(context.Background(), "failed to load scenario", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"fake":     cfg.Storefront.Fake,
		"scenario": sc.Name,
	})

	baseURL, closeFake := storefrontURL(cfg, sc)
	defer closeFake()

	client, err := storefront.NewClient(baseURL,
		storefront.WithCSRF(cfg.Storefront.CSRFCookie, cfg.Storefront.CSRFHeader),
		storefront.WithLogger(logg),
	)
	if err != nil {
		logg.Error(ctx, "failed to create storefront client", err)
		os.Exit(1)
	}
	if err := client.PrimeSession(ctx); err != nil {
		logg.Error(ctx, "failed to prime storefront session", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	syncMetrics := metrics.NewSyncMetrics(registry)

	runner, err := buildRunner(cfg, client, logg, syncMetrics)
	if err != nil {
		logg.Error(ctx, "failed to wire cart sync", err)
		os.Exit(1)
	}

	logg.Info(ctx, "starting cart sync")

	g, gctx := errgroup.WithContext(ctx)
	var server *http.Server
	if cfg.Metrics.Enabled() {
		server = &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           newRouter(registry),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logg.Info(logg.WithField(gctx, "addr", cfg.Metrics.Addr), "metrics server listening")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		err := runner.Run(gctx, sc)
		if *linger && err == nil {
			<-gctx.Done()
		}
		return shutdown(server, err)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cart sync stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cart sync shutting down gracefully")
}

// storefrontURL returns the configured storefront, or starts the in-memory
// one seeded from the scenario when CARTSYNC_STOREFRONT_FAKE is set.
func storefrontURL(cfg *config.Config, sc *scenario.Scenario) (string, func()) {
	if !cfg.Storefront.Fake {
		return cfg.Storefront.BaseURL, func() {}
	}
	shop := storefronttest.NewShop(storefronttest.WithAuthenticated(cfg.Session.Authenticated))
	for productID, qty := range sc.Seed.Cart {
		shop.SetLine(productID, qty)
	}
	for _, productID := range sc.Seed.Favorites {
		shop.SetFavorite(productID, true)
	}
	srv := shop.Start()
	return srv.URL, srv.Close
}

func buildRunner(cfg *config.Config, client *storefront.Client, logg *logger.Logger, m *metrics.SyncMetrics) (*scenario.Runner, error) {
	cart, err := cartsync.New(cartsync.Params{
		API:            client,
		Logger:         logg,
		Metrics:        m,
		RequestTimeout: cfg.Storefront.RequestTimeout,
		AddConfirmHold: cfg.Cart.AddConfirmHold,
	})
	if err != nil {
		return nil, err
	}
	favs, err := favorites.New(favorites.Params{
		API:            client,
		Logger:         logg,
		Metrics:        m,
		RequestTimeout: cfg.Storefront.RequestTimeout,
		Authenticated:  cfg.Session.Authenticated,
	})
	if err != nil {
		return nil, err
	}
	session, err := chat.New(chat.Params{API: client, Logger: logg, Metrics: m})
	if err != nil {
		return nil, err
	}
	dispatcher, err := cartsync.NewDispatcher(cart, favs, logg)
	if err != nil {
		return nil, err
	}
	renderer, err := render.New(render.Options{
		MediaPrefix: cfg.Display.MediaPrefix,
		Money:       types.NewMoneyFormatter(cfg.Display.Locale, cfg.Display.CurrencySymbol),
	})
	if err != nil {
		return nil, err
	}
	return scenario.NewRunner(scenario.RunnerParams{
		Cart:       cart,
		Dispatcher: dispatcher,
		Favorites:  favs,
		Chat:       session,
		Renderer:   renderer,
		Logger:     logg,
		Out:        os.Stdout,
	})
}

func newRouter(registry *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	return r
}

func shutdown(server *http.Server, runErr error) error {
	if server == nil {
		return runErr
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return multierr.Append(runErr, server.Shutdown(ctx))
}
