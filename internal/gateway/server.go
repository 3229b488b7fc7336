package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nao1215/haystack/internal/config"
	"github.com/nao1215/haystack/pkg/credential"
	"github.com/nao1215/haystack/pkg/middleware"
)

// helloBody は認証を通過したリクエストへの応答本文。
const helloBody = "Hello"

// maxHeaderBytes はリクエストヘッダーの合計サイズの上限。
const maxHeaderBytes = 1 << 20

// Server はhaystackゲートウェイのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// state は現在の Store を保持する共有状態。
	state *credential.Shared
	// logger はサーバー全体で使用するロガー。
	logger *zap.Logger
	// registry はこのサーバーのメトリクスを登録するレジストリ。
	registry *prometheus.Registry
	// metrics はHTTPと認証のメトリクス。
	metrics *middleware.Metrics
	// strictTokenMatch が true の場合はヘッダーの値とトークンを照合する。
	strictTokenMatch bool
	// corsOrigins はCORSで許可するオリジン。
	corsOrigins []string
	// readHeaderTimeout はリクエストヘッダーの読み取りタイムアウト。
	readHeaderTimeout time.Duration
	// shutdownTimeout はグレースフルシャットダウンの待ち時間。
	shutdownTimeout time.Duration
}

// NewServer は新しいゲートウェイサーバーを生成する。
// cfg が nil の場合はデフォルト設定、state が nil の場合はトークンを持たない Store を使用する。
func NewServer(cfg *config.Config, state *credential.Shared, logger *zap.Logger) *Server {
	if cfg == nil {
		cfg = config.Default()
	}
	if state == nil {
		state = credential.NewShared(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s := &Server{
		router:            gin.New(),
		port:              cfg.Port,
		state:             state,
		logger:            logger,
		registry:          registry,
		metrics:           middleware.NewMetrics(registry),
		strictTokenMatch:  cfg.StrictTokenMatch,
		corsOrigins:       cfg.CORSOrigins,
		readHeaderTimeout: cfg.ReadHeaderTimeout,
		shutdownTimeout:   cfg.ShutdownTimeout,
	}
	if s.shutdownTimeout <= 0 {
		s.shutdownTimeout = 10 * time.Second
	}
	if len(s.corsOrigins) == 0 {
		s.corsOrigins = []string{middleware.AnyOrigin}
	}
	s.setupRoutes()

	return s
}

// Handler はサーバーのHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// State はサーバーが参照する共有状態を返す。
func (s *Server) State() *credential.Shared {
	return s.state
}

// setupRoutes はミドルウェアとルーティングを設定する。
func (s *Server) setupRoutes() {
	// 登録済みのパスへの異なるメソッドは 405 とし、末尾スラッシュの補正はしない
	s.router.HandleMethodNotAllowed = true
	s.router.RedirectTrailingSlash = false
	s.router.RedirectFixedPath = false

	// Rejections は Recovery が記録した拒否も変換するため Recovery より前に置く
	s.router.Use(
		middleware.RequestID(),
		middleware.AccessLog(s.logger.Named("access")),
		s.metrics.Middleware(),
		middleware.Rejections(s.logger),
		middleware.Recovery(s.logger, s.metrics),
		middleware.CORS(s.corsOrigins),
	)
	s.router.NoRoute(middleware.NotFound())
	s.router.NoMethod(middleware.MethodNotAllowed())

	var authOpts []middleware.AuthOption
	if s.strictTokenMatch {
		authOpts = append(authOpts, middleware.WithStrictMatch())
	}

	s.router.GET("/hello",
		middleware.InjectState(s.state),
		middleware.HayStackAuth(authOpts...),
		middleware.WithState(s.handleHello),
	)

	// ヘルスチェック（認証不要）
	s.router.GET("/health", s.handleHealth())

	// メトリクス（認証不要）
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		ErrorLog:          zap.NewStdLog(s.logger.Named("metrics")),
		ErrorHandling:     promhttp.ContinueOnError,
		Registry:          s.registry,
		EnableOpenMetrics: true,
	})))
}

// handleHello は認証を通過したリクエストに "Hello" を返す。
func (s *Server) handleHello(c *gin.Context, _ *credential.Shared) {
	c.String(http.StatusOK, helloBody)
}

// handleHealth はヘルスチェックのハンドラを返す。使用中の Store の種類も返す。
func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "haystack",
			"store":   s.state.Name(),
		})
	}
}

// Run は :port でHTTPサーバーを起動し、ctx が終了するとグレースフルシャットダウンする。
func (s *Server) Run(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", fmt.Sprintf(":%s", s.port))
	if err != nil {
		return fmt.Errorf("ポート %s のリッスンに失敗: %w", s.port, err)
	}
	return s.Serve(ctx, ln)
}

// Serve は ln でHTTPサーバーを起動し、ctx が終了するとグレースフルシャットダウンする。
// ln は Serve が閉じる。
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: s.readHeaderTimeout,
		MaxHeaderBytes:    maxHeaderBytes,
		ErrorLog:          zap.NewStdLog(s.logger.Named("http")),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("haystackゲートウェイを起動します", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTPサーバーが停止しました: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
	defer cancel()

	s.logger.Info("haystackゲートウェイを停止します")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("グレースフルシャットダウンに失敗: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTPサーバーが停止しました: %w", err)
	}
	return nil
}
