package apiapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/minio/minio-go/v7"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/thirdweb-example/unity-iap-server/internal/config"
	"github.com/thirdweb-example/unity-iap-server/internal/infra/httpclient"
	s3infra "github.com/thirdweb-example/unity-iap-server/internal/infra/s3"
	pgrepo "github.com/thirdweb-example/unity-iap-server/internal/repo/postgres"
	redrepo "github.com/thirdweb-example/unity-iap-server/internal/repo/redis"
	appstoresvc "github.com/thirdweb-example/unity-iap-server/internal/services/appstore"
	auditsvc "github.com/thirdweb-example/unity-iap-server/internal/services/audit"
	catalogsvc "github.com/thirdweb-example/unity-iap-server/internal/services/catalog"
	mintingsvc "github.com/thirdweb-example/unity-iap-server/internal/services/minting"
	playstoresvc "github.com/thirdweb-example/unity-iap-server/internal/services/playstore"
	validationsvc "github.com/thirdweb-example/unity-iap-server/internal/services/validation"
)

type App struct {
	cfg        config.Config
	logger     *zap.Logger
	server     *http.Server
	postgres   *pgxpool.Pool
	redis      *goredis.Client
	s3         *minio.Client
	httpRouter http.Handler
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	r := chi.NewRouter()
	ApplyMiddlewares(r, log)

	var pool *pgxpool.Pool
	if p, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN); err != nil {
		log.Warn("postgres init failed, continuing without mint ledger", zap.Error(err))
	} else {
		pool = p
	}

	redisClient := redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)

	var s3Client *minio.Client
	if c, err := s3infra.NewClient(s3infra.Config{
		Endpoint:  cfg.S3.Endpoint,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		UseSSL:    cfg.S3.UseSSL,
	}); err != nil {
		log.Warn("s3 init failed, continuing without receipt archive", zap.Error(err))
	} else {
		s3Client = c
	}

	rewardCatalog := buildCatalog(cfg)

	appleVerifier := buildAppleVerifier(cfg, log)
	googleVerifier := buildGoogleVerifier(ctx, cfg, log)

	dispatcher := mintingsvc.NewDispatcher(mintingsvc.Config{
		BaseURL:       cfg.Mint.EngineURL,
		ChainID:       cfg.Mint.ChainID,
		BackendWallet: cfg.Mint.BackendWallet,
		AccessToken:   cfg.Mint.AccessToken,
	}, httpclient.New(30*time.Second))

	pipeline := validationsvc.NewService(validationsvc.Dependencies{
		Catalog:    rewardCatalog,
		Apple:      appleVerifier,
		Google:     googleVerifier,
		Dispatcher: dispatcher,
	})

	var guard validationsvc.ReplayGuard
	if redisClient != nil {
		guard = redrepo.NewReplayGuardRepo(redisClient, cfg.Validation.ReplayGuardTTL)
	}
	var ledger validationsvc.MintLedger
	if pool != nil {
		ledger = pgrepo.NewMintLedgerRepo(pool)
	}
	if guard != nil || ledger != nil {
		pipeline.AttachReplayProtection(guard, ledger)
	}

	if s3Client != nil {
		pipeline.AttachArchiver(auditsvc.NewService(s3Client, cfg.S3.Bucket, log))
	}

	RegisterRoutes(r, Dependencies{
		Pipeline: pipeline,
		Logger:   log,
		Config:   cfg,
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	return &App{
		cfg:        cfg,
		logger:     log,
		server:     server,
		postgres:   pool,
		redis:      redisClient,
		s3:         s3Client,
		httpRouter: r,
	}, nil
}

func buildCatalog(cfg config.Config) *catalogsvc.Catalog {
	entries := make(map[string]catalogsvc.Entry, len(cfg.Catalog))
	for productID, reward := range cfg.Catalog {
		entries[productID] = catalogsvc.Entry{
			ContractAddress: reward.Contract,
			Amount:          reward.Amount,
		}
	}
	return catalogsvc.New(entries)
}

// buildAppleVerifier returns nil when the signing key is absent; the pipeline
// then reports the provider unavailable for Apple receipts.
func buildAppleVerifier(cfg config.Config, log *zap.Logger) validationsvc.AppleVerifier {
	if cfg.Apple.PrivateKeyPath == "" {
		log.Warn("apple signing key not configured, app store verification disabled")
		return nil
	}

	pemBytes, err := os.ReadFile(cfg.Apple.PrivateKeyPath)
	if err != nil {
		log.Warn("read apple signing key failed, app store verification disabled", zap.Error(err))
		return nil
	}
	key, err := appstoresvc.ParsePrivateKey(pemBytes)
	if err != nil {
		log.Warn("parse apple signing key failed, app store verification disabled", zap.Error(err))
		return nil
	}

	return appstoresvc.NewVerifier(appstoresvc.Config{
		IssuerID:  cfg.Apple.IssuerID,
		KeyID:     cfg.Apple.KeyID,
		BundleID:  cfg.Apple.BundleID,
		BaseURL:   cfg.Apple.BaseURL,
		Freshness: cfg.Validation.FreshnessWindow,
	}, key, nil, httpclient.New(30*time.Second))
}

func buildGoogleVerifier(ctx context.Context, cfg config.Config, log *zap.Logger) validationsvc.GoogleVerifier {
	if cfg.Google.CredentialsPath == "" {
		log.Warn("google credentials not configured, play store verification disabled")
		return nil
	}

	credentialsJSON, err := os.ReadFile(cfg.Google.CredentialsPath)
	if err != nil {
		log.Warn("read google credentials failed, play store verification disabled", zap.Error(err))
		return nil
	}
	client, err := playstoresvc.NewPublisherClient(ctx, credentialsJSON)
	if err != nil {
		log.Warn("create publisher client failed, play store verification disabled", zap.Error(err))
		return nil
	}

	return playstoresvc.NewVerifier(client, cfg.Validation.FreshnessWindow)
}

func (a *App) Run() error {
	a.logger.Info("api server started", zap.String("addr", a.cfg.HTTP.Addr))
	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error

	if err := a.server.Shutdown(ctx); err != nil {
		shutdownErr = err
	}
	if a.postgres != nil {
		a.postgres.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	}

	return shutdownErr
}

func (a *App) Handler() http.Handler {
	return a.httpRouter
}
