package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/formsentry/formsentry/internal/account"
	"github.com/formsentry/formsentry/internal/config"
	"github.com/formsentry/formsentry/internal/db"
	"github.com/formsentry/formsentry/internal/http/api/intake"
	"github.com/formsentry/formsentry/internal/http/api/intake/handlers"
	"github.com/formsentry/formsentry/internal/logging"
	"github.com/formsentry/formsentry/internal/moderation"
	"github.com/formsentry/formsentry/internal/policy"
	"github.com/formsentry/formsentry/internal/ratelimit"
	"github.com/formsentry/formsentry/internal/reputation"
	"github.com/formsentry/formsentry/internal/spam"
	"github.com/formsentry/formsentry/internal/submission"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

// Migrate opens the database and runs migrations.
func Migrate(_ context.Context, cfg config.Config) error {
	conn, errOpen := db.Open(cfg.Database.DSN)
	if errOpen != nil {
		return errOpen
	}
	return db.Migrate(conn)
}

// RunServer boots the intake server with database-backed components and the
// background moderation pool, and blocks until ctx is cancelled.
func RunServer(ctx context.Context, cfg config.Config) error {
	logging.Setup(cfg.Logging)

	// Missing external credentials for an enabled capability are fatal here,
	// not on the first request that needs them.
	if errValidate := cfg.ValidateCredentials(policy.AnyReputationEnabled(), policy.AnySpamDetectionEnabled()); errValidate != nil {
		return errValidate
	}

	conn, errOpen := db.Open(cfg.Database.DSN)
	if errOpen != nil {
		return errOpen
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	accounts := account.NewService(conn)
	store := submission.NewStore(conn)
	limiter := ratelimit.New(cfg.Redis)

	checker := reputation.NewChecker(reputation.NewClient(cfg.AbuseIPDB), store)
	classifier := spam.NewClassifier(spam.NewClient(cfg.OpenAI), store)

	moderator := moderation.NewOrchestrator(checker, classifier, cfg.Moderation)
	moderator.Start(ctx)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	intake.RegisterIntakeRoutes(engine, handlers.NewFormsHandler(accounts, store, limiter, moderator))

	server := &http.Server{Addr: cfg.Server.Addr, Handler: engine}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			log.WithError(errShutdown).Warn("server shutdown")
		}
		moderator.Stop()
	}()

	log.Infof("starting intake server on %s", cfg.Server.Addr)
	if errServe := server.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
		return errServe
	}
	return nil
}
