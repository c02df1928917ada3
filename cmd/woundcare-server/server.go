package main

import (
	"context"
	crypto_rand "crypto/rand"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/woundcare/woundcare/internal/config"
	"github.com/woundcare/woundcare/internal/domain/identity"
	"github.com/woundcare/woundcare/internal/domain/images"
	"github.com/woundcare/woundcare/internal/domain/patient"
	"github.com/woundcare/woundcare/internal/domain/records"
	"github.com/woundcare/woundcare/internal/domain/scheduling"
	"github.com/woundcare/woundcare/internal/domain/session"
	"github.com/woundcare/woundcare/internal/platform/apperr"
	"github.com/woundcare/woundcare/internal/platform/auth"
	"github.com/woundcare/woundcare/internal/platform/db"
	"github.com/woundcare/woundcare/internal/platform/docstore"
	"github.com/woundcare/woundcare/internal/platform/genai"
	"github.com/woundcare/woundcare/internal/platform/genai/flows"
	"github.com/woundcare/woundcare/internal/platform/metrics"
	"github.com/woundcare/woundcare/internal/platform/middleware"
	"github.com/woundcare/woundcare/internal/platform/notification"
	"github.com/woundcare/woundcare/internal/platform/websocket"
)

const version = "0.1.0"

// socialIssuers are the OIDC issuers of the supported sign-in providers.
var socialIssuers = map[string]string{
	"google.com":    "https://accounts.google.com",
	"microsoft.com": "https://login.microsoftonline.com/common/v2.0",
	"apple.com":     "https://appleid.apple.com",
}

// uploadPrefixes carry data URIs or photos and get the larger body limit.
var uploadPrefixes = []string{
	"/api/v1/images",
	"/api/v1/ai",
	"/api/v1/reports",
	"/api/v1/patients",
	"/api/v1/docs",
}

// deps are the long lived collaborators the router is built from.
type deps struct {
	pool      *pgxpool.Pool
	store     *docstore.Client
	tokens    *auth.TokenIssuer
	model     genai.Model
	verifiers map[string]identity.IDTokenVerifier
	errs      *apperr.Emitter
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func runServer() error {
	// Logger
	logger := newLogger(os.Getenv("ENV"))

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Database
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Document store change feed
	var feed docstore.Feed
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		rf := docstore.NewRedisFeed(rdb, cfg.RedisChannel, logger)
		go func() {
			if err := rf.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("change feed stopped")
			}
		}()
		feed = rf
	}
	store := docstore.NewClient(docstore.NewPGBackend(pool), feed, docstore.DefaultRules(), logger)

	// Session tokens
	revoked := auth.NewTokenRevocationStore()
	defer revoked.Close()
	tokens := auth.NewTokenIssuer(signingKey(cfg, logger), cfg.AuthIssuer, cfg.AuthTokenTTL, revoked)

	// Generative model
	var model genai.Model
	if cfg.AIEnabled() {
		model = genai.NewGeminiClient(genai.GeminiConfig{
			APIKey:  cfg.AIAPIKey,
			BaseURL: cfg.AIBaseURL,
			Model:   cfg.AIModel,
			Timeout: cfg.AITimeout,
		}, logger)
	} else {
		logger.Warn().Msg("AI_API_KEY is not set; AI flows are disabled")
	}

	e, cleanup := newRouter(cfg, logger, deps{
		pool:      pool,
		store:     store,
		tokens:    tokens,
		model:     model,
		verifiers: socialVerifiers(ctx, cfg, logger),
		errs:      apperr.NewEmitter(),
	})
	defer cleanup()

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Bool("tls", cfg.TLSEnabled).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newRouter builds the HTTP surface. The returned func releases listeners
// registered during construction.
func newRouter(cfg *config.Config, logger zerolog.Logger, d deps) (*echo.Echo, func()) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	collector := metrics.NewCollector("woundcare")
	offDenials := collector.CountDenials(d.errs)
	collector.WatchListeners(d.store.ActiveListeners)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(collector.Middleware())
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit, cfg.UploadBodyLimit, uploadPrefixes...))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(auth.Authenticate(d.tokens, auth.AuthSkipper))
	e.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		IdleTTL:           10 * time.Minute,
	}))
	e.Use(middleware.Audit(logger, nil))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/metrics", echo.WrapHandler(collector.Handler()))
	if d.pool != nil {
		e.GET("/health/db", db.HealthHandler(d.pool))
		collector.WatchDBConnections(func() int { return int(d.pool.Stat().TotalConns()) })
	}

	apiV1 := e.Group("/api/v1")

	roles := records.NewRoleStore(d.store)
	professional := auth.RequireRole(roles, string(session.RoleProfessional))

	// AI flows
	aiFlows := flows.New(d.model, collector)
	flows.NewHandler(aiFlows, professional).RegisterRoutes(apiV1)

	// Identity and sessions
	identityOpts := identity.Options{
		Verifiers: d.verifiers,
		Notifier:  notification.NewNotifier(notification.NewLogEmailSender(logger), notification.NewTemplateEngine()),
		VerifyURL: cfg.VerifyURL,
	}
	if d.pool != nil {
		identityOpts.Tx = func(ctx context.Context, fn func(ctx context.Context) error) error {
			return db.WithTx(ctx, d.pool, fn)
		}
	}
	identitySvc := identity.NewService(identity.NewAccountRepo(d.pool), d.tokens, identityOpts, logger)
	sessions := identity.NewSessions(identitySvc, roles, d.errs, logger)
	identityHandler := identity.NewHandler(identitySvc, sessions)
	identityHandler.RegisterRoutes(apiV1)

	// Realtime transport
	hub := websocket.NewHub(logger)
	identityHandler.OnRoleChanged(hub.PublishRole)
	collector.WatchClients(hub.ClientCount)
	websocket.NewHandler(hub, d.store, sessionOpener(sessions), d.errs, logger, cfg.CORSOrigins).RegisterRoutes(apiV1)

	// Document store access
	docstore.NewHandler(d.store, d.errs).RegisterRoutes(apiV1)

	// Clinical records
	records.NewHandler(records.NewService(d.store, aiFlows), roles, d.errs).RegisterRoutes(apiV1)
	images.NewHandler(images.NewStore(d.store), d.errs).RegisterRoutes(apiV1)

	patientSvc := patient.NewService(patient.NewPatientRepoPG(d.pool), patient.NewWoundRepoPG(d.pool), aiFlows, logger)
	patient.NewHandler(patientSvc, roles).RegisterRoutes(apiV1)

	scheduling.NewHandler(scheduling.NewService(scheduling.NewAppointmentRepoPG(d.pool)), roles).RegisterRoutes(apiV1)

	return e, offDenials
}

// sessionOpener adapts identity sessions to the WebSocket handler.
func sessionOpener(sessions *identity.Sessions) websocket.SessionOpener {
	return func(ctx context.Context, token string) (*session.Session, error) {
		s, _, err := sessions.Open(ctx, token)
		return s, err
	}
}

// signingKey returns the configured token signing key. Development servers
// without one get a random key, so their tokens do not survive a restart.
func signingKey(cfg *config.Config, logger zerolog.Logger) []byte {
	if cfg.AuthSigningKey != "" {
		return []byte(cfg.AuthSigningKey)
	}
	key := make([]byte, config.MinSigningKeyLen)
	if _, err := crypto_rand.Read(key); err != nil {
		logger.Fatal().Err(err).Msg("failed to generate signing key")
	}
	logger.Warn().Msg("AUTH_SIGNING_KEY is not set; using an ephemeral development key")
	return key
}

// socialVerifiers discovers the ID token verifiers of every provider with a
// configured client id. Providers whose discovery fails are left out.
func socialVerifiers(ctx context.Context, cfg *config.Config, logger zerolog.Logger) map[string]identity.IDTokenVerifier {
	out := make(map[string]identity.IDTokenVerifier)
	for provider, clientID := range cfg.SocialClientIDs() {
		issuer, ok := socialIssuers[provider]
		if !ok {
			continue
		}
		dctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		v, err := auth.DiscoverIDTokenVerifier(dctx, issuer, clientID)
		cancel()
		if err != nil {
			logger.Warn().Err(err).Str("provider", provider).Msg("social sign-in disabled")
			continue
		}
		out[provider] = v
	}
	return out
}
