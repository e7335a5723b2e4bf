package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmehdipour/subscribers/internal/config"
	"github.com/jmehdipour/subscribers/internal/http/middleware"
	"github.com/jmehdipour/subscribers/internal/metrics"
	"github.com/jmehdipour/subscribers/internal/model"
	"github.com/jmehdipour/subscribers/internal/repository"
	"github.com/jmehdipour/subscribers/internal/service/admin"
	"github.com/jmehdipour/subscribers/internal/service/subscription"
	"github.com/jmehdipour/subscribers/internal/settings"
	"github.com/jmehdipour/subscribers/internal/util"
	"github.com/jmehdipour/subscribers/internal/verify"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	gommonLog "github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type requestValidator struct{ v *validator.Validate }

func (rv requestValidator) Validate(i any) error { return rv.v.Struct(i) }

type Server struct {
	e   *echo.Echo
	log *zap.Logger
}

// NewServer wires repositories, services and routes. clickhouseDB may be nil,
// in which case the reports endpoint is not mounted.
func NewServer(cfg config.Config, mainDB, clickhouseDB *sqlx.DB, rds *redis.Client, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	// repos
	subscribersRepo := repository.NewSubscribersRepository(mainDB, repository.NewOutboxRepository(mainDB))
	operatorsRepo := repository.NewOperatorsRepository(mainDB)
	settingsProvider := settings.NewProvider(repository.NewSettingsRepository(mainDB), model.VerificationSettings{
		Enabled:   cfg.Verification.Enabled,
		SiteKey:   cfg.Verification.SiteKey,
		SecretKey: cfg.Verification.SecretKey,
	})

	// services
	gate := verify.NewSiteVerifyGate(
		cfg.Verification.Endpoint,
		cfg.Verification.Timeout,
		verify.NewBreaker(cfg.Verification.Breaker.FailThreshold, time.Duration(cfg.Verification.Breaker.OpenForMs)*time.Millisecond),
		log.Named("verify"),
	)
	subscriptionSvc := subscription.New(subscribersRepo, gate, settingsProvider, log.Named("subscription"))
	adminSvc := admin.New(subscribersRepo, log.Named("admin"))

	// echo
	e := echo.New()
	e.HideBanner = true
	e.Validator = requestValidator{v: util.Validator()}
	e.Logger.SetLevel(echoLogLevel(cfg.Log.Level))
	e.Use(echoMid.Recover(), echoMid.Logger())

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// public
	v1 := e.Group("/v1")
	v1.GET("/subscribe/config", subscribeConfigHandler(settingsProvider))
	v1.POST("/subscribe", subscribeHandler(subscriptionSvc), echoMid.BodyLimit("64K"))

	// admin
	deleteTokens := middleware.NewDeleteTokens(middleware.DeleteTokenConfig{
		Redis:     rds,
		KeyPrefix: "subs:deltok:",
		TTL:       cfg.Admin.DeleteTokenTTL,
	})
	adm := v1.Group("/admin", middleware.OperatorAuth(operatorsRepo))
	adm.GET("/subscribers", listSubscribersHandler(adminSvc))
	adm.GET("/subscribers/export", exportSubscribersHandler(adminSvc))
	adm.POST("/subscribers/import", importSubscribersHandler(adminSvc),
		echoMid.BodyLimit(bodyLimit(cfg.Import.MaxUploadBytes)))
	adm.GET("/subscribers/:id", getSubscriberHandler(adminSvc))
	adm.PUT("/subscribers/:id", updateSubscriberHandler(adminSvc))
	adm.POST("/subscribers/:id/delete-token", issueDeleteTokenHandler(adminSvc, deleteTokens))
	adm.DELETE("/subscribers/:id", deleteSubscriberHandler(adminSvc), deleteTokens.Require())
	adm.GET("/settings/verification", getVerificationSettingsHandler(settingsProvider))
	adm.PUT("/settings/verification", putVerificationSettingsHandler(settingsProvider))

	if clickhouseDB != nil {
		adm.GET("/reports/signups", signupsReportHandler(repository.NewSignupsRepository(clickhouseDB)))
	}

	return &Server{e: e, log: log}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.e }

func (s *Server) Start(addr string) error {
	s.log.Info("http: listening", zap.String("addr", addr))
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }

// bodyLimit renders n exactly in the size syntax BodyLimit parses.
func bodyLimit(n int64) string { return strconv.FormatInt(n, 10) + "B" }

// echoLogLevel maps the configured zap level name onto echo's logger.
func echoLogLevel(level string) gommonLog.Lvl {
	switch strings.ToLower(level) {
	case "debug":
		return gommonLog.DEBUG
	case "warn":
		return gommonLog.WARN
	case "error":
		return gommonLog.ERROR
	default:
		return gommonLog.INFO
	}
}
