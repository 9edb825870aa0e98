package navigationservice

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"fieldnav/internal/domain/geo"
	"fieldnav/internal/domain/user"
	"fieldnav/internal/general/auth"
	"fieldnav/internal/general/cache"
	"fieldnav/internal/general/config"
	"fieldnav/internal/general/geocode"
	"fieldnav/internal/general/grpchealth"
	"fieldnav/internal/general/jwt"
	"fieldnav/internal/general/logger"
	"fieldnav/internal/general/metrics"
	"fieldnav/internal/general/nominatim"
	"fieldnav/internal/general/osrm"
	"fieldnav/internal/general/postgres"
	"fieldnav/internal/general/rabbitmq"
	"fieldnav/internal/general/websocket"
	fleethandler "fieldnav/internal/software/fleetboard/handler"
	fleetservice "fieldnav/internal/software/fleetboard/service"
	"fieldnav/internal/software/navigation/engine"
	"fieldnav/internal/software/navigation/handler"
	"fieldnav/internal/software/navigation/service"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Options are the command-line knobs of the navigation-service mode.
type Options struct {
	ConfigPath    string
	Prefetch      int
	MaxConcurrent int
}

func Run(ctx context.Context, opts Options) error {
	// set up a new logger for the navigation service with a static request ID for startup logs
	logger := logger.New("navigation-service")
	ctx = logger.WithRequestID(ctx, "startup-001")

	// load configuration
	cfg, err := config.LoadFromFile(opts.ConfigPath)
	if err != nil {
		logger.Error(ctx, "config_load_failed", "Failed to load config", err, map[string]any{"path": opts.ConfigPath})
		return err
	}
	logger.SetDebug(cfg.Log.Debug)

	// set up a Postgres connection pool
	pool, err := postgres.NewPool(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "db_connection_failed", "Failed to initialize Postgres pool", err, nil)
		return err
	}
	defer pool.Close()

	// metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	navMetrics := metrics.NewNavigation(registry)

	// connect to RabbitMQ
	rmq, err := rabbitmq.ConnectRabbitMQ(ctx, cfg, logger, rabbitmq.Options{
		ConnectionName: "fieldnav-navigation-service",
		Observer:       navMetrics,
	})
	if err != nil {
		logger.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err, nil)
		return err
	}
	defer rmq.Close()
	pub := rabbitmq.NewMQPublisher(rmq)

	// Redis backs the geocode and role caches; without it they stay process-local
	var store cache.Store
	redisStore, err := cache.ConnectRedis(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "redis_connection_failed", "Redis unavailable, using in-memory cache", err, nil)
		store = cache.NewMemoryStore()
	} else {
		defer redisStore.Close()
		store = redisStore
	}

	// set up the necessary repos
	uow := postgres.NewUnitOfWork(pool)
	userRepo := postgres.NewUserRepo()
	sessionRepo := postgres.NewNavigationSessionRepo()
	historyRepo := postgres.NewLocationHistoryRepo()
	fleetRepo := postgres.NewFleetRepo()

	// auth: JWT manager plus a cached role/status check against the users table
	jwtManager, err := jwt.NewManager(cfg.JWT.SecretKey, cfg.JWT.TTL)
	if err != nil {
		logger.Error(ctx, "jwt_setup_failed", "Failed to set up JWT manager", err, nil)
		return err
	}
	roles := auth.NewRoleCache(cache.NewTTLCache[user.Access](store, "role", cfg.Cache.RoleTTL), userRepo, uow)
	authz := jwt.NewAuthorizer(jwtManager, roles)

	// providers
	directions := osrm.NewClient(cfg.Providers.OSRMBaseURL, cfg.Providers.UserAgent, cfg.Providers.HTTPTimeout)
	geocoder := geocode.NewCachedProvider(
		nominatim.NewClient(cfg.Providers.NominatimBaseURL, cfg.Providers.UserAgent, cfg.Providers.HTTPTimeout),
		cache.NewTTLCache[geo.Coordinate](store, "geocode", cfg.Cache.GeocodeTTL),
	)

	// the dispatch hub is the progress broadcaster the service feeds from RabbitMQ
	dispatch := websocket.NewDispatchHub(logger, authz)

	svc := service.NewNavigationService(service.Deps{
		Logger:      logger,
		UoW:         uow,
		Sessions:    sessionRepo,
		History:     historyRepo,
		Geocoder:    geocoder,
		Directions:  directions,
		Publisher:   pub,
		Consumer:    rmq,
		Broadcaster: dispatch,
		Metrics:     navMetrics,
	}, service.Options{
		Engine:          engineConfig(cfg.Navigation),
		HistoryInterval: cfg.Navigation.HistoryInterval,
		Prefetch:        opts.Prefetch,
	})

	// start the background RabbitMQ consumer that feeds dispatch screens
	svc.RunBackgroundConsumers(ctx)

	technicians := websocket.NewTechnicianSocket(logger, authz, svc)

	// set up the HTTP handler and its routes
	handlerOpts := []handler.Option{handler.WithReadiness(rmq.Ready)}
	if cfg.JWT.DevTokens {
		handlerOpts = append(handlerOpts, handler.WithTokenIssuer())
	}
	mux := http.NewServeMux()
	httpHandler := handler.NewNavigationHTTPHandler(svc, logger, jwtManager, authz, handler.Sockets{
		Technician: technicians.Connect,
		Dispatch:   dispatch.Connect,
	}, handlerOpts...)
	httpHandler.RegisterRoutes(mux)

	// dispatch read side: persisted sessions enriched with live snapshots
	fleet := fleetservice.NewFleetService(uow, fleetRepo, svc)
	fleethandler.NewFleetHTTPHandler(fleet, logger, authz).RegisterRoutes(mux)

	// side listeners: Prometheus scrape endpoint and gRPC health
	health := grpchealth.New(logger)
	go func() {
		if err := health.ListenAndServe(ctx, cfg.Services.GRPCHealthPort); err != nil {
			logger.Error(ctx, "grpc_health_failed", "gRPC health server terminated", err, map[string]any{"port": cfg.Services.GRPCHealthPort})
		}
	}()
	go func() {
		if err := metrics.Serve(ctx, cfg.Services.MetricsPort, metrics.Handler(registry, rmq.Ready)); err != nil {
			logger.Error(ctx, "metrics_server_failed", "Metrics server terminated", err, map[string]any{"port": cfg.Services.MetricsPort})
		}
	}()

	// concurrency limiter (global) blocks when capacity is full
	limitedHandler := withConcurrencyLimit(opts.MaxConcurrent, mux)

	// WriteTimeout stays zero: websocket connections are long-lived
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Services.NavigationServicePort),
		Handler:           limitedHandler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	logger.Info(ctx, "service_started",
		fmt.Sprintf("Navigation Service started on port %d", cfg.Services.NavigationServicePort),
		map[string]any{
			"port":           cfg.Services.NavigationServicePort,
			"metrics_port":   cfg.Services.MetricsPort,
			"grpc_port":      cfg.Services.GRPCHealthPort,
			"max_concurrent": opts.MaxConcurrent,
			"prefetch":       opts.Prefetch,
		},
	)

	// start the server in a background goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()
	health.SetServing(true)

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error(ctx, "http_server_error", "HTTP server terminated with error", err, map[string]any{"port": cfg.Services.NavigationServicePort})
			runErr = err
		}
	}

	// graceful shutdown: stop advertising, drain HTTP, then end every session
	health.SetServing(false)
	shCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error(ctx, "http_shutdown_failed", "Failed to gracefully shut down HTTP server", err, nil)
	}
	svc.Shutdown(shCtx)

	logger.Info(ctx, "service_stopped", "Navigation Service stopped", nil)
	return runErr
}

// engineConfig maps the navigation config section onto session tuning.
func engineConfig(n config.Navigation) engine.Config {
	ec := engine.Config{
		RecalcThresholdMeters: n.RecalcThresholdMeters,
		ArrivalRadiusMeters:   n.ArrivalRadiusMeters,
		RouteTimeout:          n.RouteTimeout,
		GeocodeTimeout:        n.GeocodeTimeout,
		TrafficAware:          n.TrafficAware,
		MailboxSize:           n.MailboxSize,
		Tracker: engine.TrackerOptions{
			HighAccuracy: n.HighAccuracy,
			MaxAge:       n.PositionMaxAge,
			Timeout:      n.PositionTimeout,
		},
	}
	if n.Fallback != nil {
		ec.Tracker.Fallback = &geo.Coordinate{Lat: n.Fallback.Latitude, Lng: n.Fallback.Longitude}
	}
	return ec
}

// withConcurrencyLimit wraps an http.Handler with a semaphore-based limiter.
// Websocket upgrades hold a slot for the lifetime of the connection.
func withConcurrencyLimit(n int, next http.Handler) http.Handler {
	if n <= 0 {
		return next
	}
	sem := make(chan struct{}, n)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case sem <- struct{}{}: // acquire
			defer func() { <-sem }() // release
			next.ServeHTTP(w, r)
		case <-r.Context().Done():
			// client canceled or server is shutting down
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		}
	})
}
