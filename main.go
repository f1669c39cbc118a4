package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/princinho/studyspark/auth"
	"github.com/princinho/studyspark/config"
	"github.com/princinho/studyspark/controllers"
	"github.com/princinho/studyspark/database"
	"github.com/princinho/studyspark/mail"
	"github.com/princinho/studyspark/middleware"
	"github.com/princinho/studyspark/obs"
	"github.com/princinho/studyspark/storage"
	"github.com/princinho/studyspark/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// stores bundles whichever backend database.driver selected.
type stores struct {
	users     database.UserStore
	documents database.DocumentStore
	close     func(context.Context) error
}

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := obs.NewLogger(obs.LogConfig{
		Level:  cfg.Log.Level,
		Pretty: cfg.Log.Pretty,
		App:    cfg.App.Name,
		Env:    cfg.App.Env,
		Ver:    cfg.App.Version,
	})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := st.close(closeCtx); err != nil {
			logger.Warn("close store", zap.Error(err))
		}
	}()

	if err := utils.SeedAdminUser(ctx, st.users, cfg.Admin.Email, cfg.Admin.Password, cfg.Auth.HashCost, logger); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	objects, closeObjects, err := openObjects(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer closeObjects()
	if objects == nil {
		logger.Warn("object storage disabled: storage.bucket not set")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := obs.NewMetrics(reg)

	codec, err := auth.NewTokenCodec(auth.TokenConfig{
		AccessSecret:  cfg.Auth.AccessSecret,
		RefreshSecret: cfg.Auth.RefreshSecret,
		AccessTTL:     cfg.Auth.AccessTTL,
		RefreshTTL:    cfg.Auth.RefreshTTL,
	})
	if err != nil {
		return err
	}
	resets, err := auth.NewResetCodeIssuer(cfg.Auth.ResetTTL, nil)
	if err != nil {
		return err
	}
	sessions, err := auth.NewSessionManager(auth.SessionDeps{
		Store:    st.users,
		Tokens:   codec,
		Resets:   resets,
		Hasher:   auth.NewSecretHasher(cfg.Auth.HashCost),
		Mailer:   mail.New(cfg.SMTP, logger.Named("mail")),
		Observer: metrics,
		Logger:   logger.Named("auth"),
	})
	if err != nil {
		return err
	}

	env := &controllers.Env{
		Users:       st.users,
		Documents:   st.documents,
		Sessions:    sessions,
		Permissions: auth.DefaultPermissions(),
		Cookies: utils.SessionCookies{
			Secure:     cfg.IsProduction(),
			Domain:     cfg.Auth.CookieDomain,
			AccessTTL:  cfg.Auth.AccessTTL,
			RefreshTTL: cfg.Auth.RefreshTTL,
		},
		HashCost:   cfg.Auth.HashCost,
		Objects:    objects,
		Validator:  utils.NewFileValidator(cfg.Upload.AllowedExtensions, cfg.Upload.AllowedMimeTypes, cfg.Upload.MaxSizeMB),
		HTTPClient: &http.Client{Timeout: cfg.Upload.FetchTimeout},
		Log:        logger.Named("http"),
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	allowedOrigins := map[string]bool{}
	for _, origin := range cfg.App.AllowedOrigins {
		allowedOrigins[origin] = true
	}
	logger.Info("allowed origins", zap.Strings("origins", cfg.App.AllowedOrigins))
	r.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			return allowedOrigins[origin]
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger.Named("access")))
	r.Use(middleware.Metrics(metrics))

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))
	controllers.Routes(r, env, middleware.NewIPRateLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst))

	srv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr), zap.String("driver", cfg.Database.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStores(ctx context.Context, c config.Database, logger *zap.Logger) (*stores, error) {
	switch c.Driver {
	case "mongo":
		client, err := database.ConnectMongo(ctx, c.MongoURI)
		if err != nil {
			return nil, err
		}
		db := client.Database(c.Name)
		if err := database.EnsureMongoIndexes(ctx, db); err != nil {
			_ = client.Disconnect(ctx)
			return nil, err
		}
		return &stores{
			users:     database.NewMongoUserStore(db, c.QueryTimeout),
			documents: database.NewMongoDocumentStore(db, c.QueryTimeout),
			close:     client.Disconnect,
		}, nil
	case "postgres":
		db, err := database.OpenPostgres(ctx, c.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		return &stores{
			users:     database.NewPostgresUserStore(db, c.QueryTimeout),
			documents: database.NewPostgresDocumentStore(db, c.QueryTimeout),
			close:     func(context.Context) error { return db.Close() },
		}, nil
	case "memory":
		logger.Warn("using in-memory store: data is lost on restart")
		mem := database.NewMemoryStore(nil)
		return &stores{
			users:     mem,
			documents: mem,
			close:     func(context.Context) error { return nil },
		}, nil
	}
	return nil, fmt.Errorf("unknown database driver %q", c.Driver)
}

// openObjects returns a nil store when no bucket is configured; uploads then
// keep only their summary.
func openObjects(ctx context.Context, c config.Storage) (storage.ObjectStore, func(), error) {
	noop := func() {}
	if c.Bucket == "" {
		return nil, noop, nil
	}
	switch c.Provider {
	case "r2", "":
		r2, err := storage.NewR2Client(ctx, storage.R2Config{
			Bucket:          c.Bucket,
			Endpoint:        c.Endpoint,
			AccessKeyID:     c.AccessKeyID,
			SecretAccessKey: c.SecretAccessKey,
			PublicDomain:    c.PublicDomain,
		})
		if err != nil {
			return nil, noop, err
		}
		return r2, noop, nil
	case "gcs":
		gcs, err := storage.NewGCSClient(ctx, c.Bucket, c.CredentialsFile)
		if err != nil {
			return nil, noop, err
		}
		return gcs, closer(gcs), nil
	}
	return nil, noop, fmt.Errorf("unknown storage.provider %q", c.Provider)
}

func closer(c io.Closer) func() {
	return func() { _ = c.Close() }
}
