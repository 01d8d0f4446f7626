package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"coldchain/auth"
	"coldchain/internal/web/api"
	"coldchain/internal/web/middleware"
)

type WebServer struct {
	router *gin.Engine
	srv    *http.Server
	log    *zap.Logger
}

func NewWebServer(addr string, deps api.Dependencies, authModule *auth.AuthModule, log *zap.Logger) *WebServer {
	log = log.Named("web")
	router := gin.New()

	middlewareManager := middleware.NewMiddlewareManager(authModule, log)
	router.Use(gin.Recovery(), middlewareManager.RequestLogger())

	api.RegisterHealthRoutes(router, deps)
	api.RegisterAuthRoutes(router, authModule)
	api.RegisterDeviceRoutes(router, middlewareManager, deps, log)
	api.RegisterAlertRoutes(router, middlewareManager, deps, log)

	if !authModule.Enabled() {
		log.Warn("JWT_SECRET not set, ops API is unauthenticated")
	}
	return &WebServer{
		router: router,
		srv:    &http.Server{Addr: addr, Handler: router},
		log:    log,
	}
}

// Handler exposes the router
func (ws *WebServer) Handler() http.Handler {
	return ws.router
}

// Start serves until Shutdown is called
func (ws *WebServer) Start() error {
	ws.log.Info("http server listening", zap.String("addr", ws.srv.Addr))
	if err := ws.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (ws *WebServer) Shutdown(ctx context.Context) error {
	return ws.srv.Shutdown(ctx)
}
