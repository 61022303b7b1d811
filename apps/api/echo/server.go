package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"golang.org/x/sync/singleflight"

	"github.com/trezcool/sapp/core"
	"github.com/trezcool/sapp/core/admin"
	"github.com/trezcool/sapp/core/identity"
	"github.com/trezcool/sapp/core/session"
	"github.com/trezcool/sapp/core/user"
	localidp "github.com/trezcool/sapp/services/identity/local"
	metricsvc "github.com/trezcool/sapp/services/metrics"
)

type (
	Deps struct {
		Conf     *core.Config
		Logger   core.Logger
		Profiles user.Repository
		UserSvc  *user.Service
		AdminSvc *admin.Service
		// Verifier authenticates the callers of callables.
		Verifier identity.Verifier
		// IdP serves the session endpoints. Nil in firebase mode.
		IdP     *localidp.Provider
		Metrics *metricsvc.Recorder

		DisableReqLogs bool
	}

	Server interface {
		http.Handler
		Start()
		Shutdown(ctx context.Context) error
		Close() error
		Errors() <-chan error
		ShutdownSignal() <-chan os.Signal
	}

	server struct {
		deps     Deps
		app      *echo.Echo
		rec      core.Recorder
		flight   *singleflight.Group // shared by every request's resolver
		errors   chan error
		shutdown chan os.Signal
	}
)

var _ Server = (*server)(nil)

func NewServer(deps Deps) Server {
	s := &server{
		deps:     deps,
		app:      echo.New(),
		rec:      core.NopRecorder,
		flight:   new(singleflight.Group),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	if deps.Metrics != nil {
		s.rec = deps.Metrics
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	if s.deps.Metrics != nil {
		s.app.Use(requestMetrics(s.deps.Metrics))
		s.app.GET("/metrics", echo.WrapHandler(s.deps.Metrics.Handler()))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)

	v1 := s.app.Group("/v1", requestTimeout(conf.Server.RequestTimeout))
	registerCallableAPI(v1, s.deps.Verifier, s.deps.AdminSvc, s.deps.Logger)

	if s.deps.IdP != nil {
		sess := s.sessionMiddleware()
		registerAuthAPI(v1, sess, s)
		registerSetupAPI(v1, s.deps.AdminSvc)
		registerUserAPI(v1, sess, s.deps.UserSvc, s.deps.AdminSvc)
		registerSchoolAPI(v1, sess, s.deps.UserSvc, s.deps.AdminSvc)
	}
}

func (s *server) resolverOptions() session.Options {
	return session.Options{
		SelfHeal:          s.deps.Conf.Auth.SelfHeal,
		PromoteFirstAdmin: s.deps.Conf.Auth.PromoteFirstAdmin,
		Recorder:          s.rec,
		Flight:            s.flight,
	}
}

func (s *server) newResolver(client identity.Client) *session.Resolver {
	return session.NewResolver(client, s.deps.Profiles, s.deps.Logger, s.resolverOptions())
}

func (s *server) Start() {
	s.deps.Logger.Info("API listening on " + s.deps.Conf.Server.Addr)
	if err := s.app.Start(s.deps.Conf.Server.Addr); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *server) Close() error {
	signal.Stop(s.shutdown)
	return s.app.Close()
}

func (s *server) Errors() <-chan error { return s.errors }

func (s *server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

func (s *server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.deps.Conf.AppName+" API!")
}
