// Package api 暴露节点的 HTTP 管理面
//
// 协议消息不走 HTTP，这里只有发起会话的入口、会话记录查询与运维端点
package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/kashguard/go-threshold-engine/internal/config"
	"github.com/kashguard/go-threshold-engine/internal/mpc/node"
	"github.com/kashguard/go-threshold-engine/internal/mpc/storage"
)

// Server HTTP 服务
type Server struct {
	logger zerolog.Logger
	echo   *echo.Echo
	node   *node.Node
	status storage.StatusStore
	cfg    config.API
}

// NewServer 创建 HTTP 服务并装配路由
func NewServer(logger zerolog.Logger, n *node.Node, status storage.StatusStore, cfg config.API) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string { return uuid.New().String() },
	}))

	s := &Server{
		logger: logger.With().Str("component", "api").Logger(),
		echo:   e,
		node:   n,
		status: status,
		cfg:    cfg,
	}

	e.GET("/-/healthy", s.getHealthy)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := e.Group("/api/v1/mpc")
	v1.POST("/sign", s.postSign)
	v1.POST("/ecdh", s.postEcdh)
	v1.GET("/sessions", s.getSessions)
	v1.GET("/peers", s.getPeers)

	return s
}

// Echo 暴露底层 echo 实例，测试用
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start 阻塞运行 HTTP 服务
func (s *Server) Start() error {
	s.logger.Info().Str("listen_address", s.cfg.ListenAddress).Msg("starting http api")
	err := s.echo.Start(s.cfg.ListenAddress)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown 优雅关停
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
