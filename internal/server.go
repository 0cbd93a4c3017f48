package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/IBM/pgxpoolprometheus"
	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/extra/redisotel/v8"
	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v9"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fitrack-app/fitrack-backend/internal/auth"
	"github.com/fitrack-app/fitrack-backend/internal/config"
	"github.com/fitrack-app/fitrack-backend/internal/db"
	"github.com/fitrack-app/fitrack-backend/internal/exercise"
	"github.com/fitrack-app/fitrack-backend/internal/export"
	"github.com/fitrack-app/fitrack-backend/internal/middleware"
	"github.com/fitrack-app/fitrack-backend/internal/telemetry/metrics"
	"github.com/fitrack-app/fitrack-backend/internal/telemetry/tracing"
	"github.com/fitrack-app/fitrack-backend/internal/trainingplan"
	"github.com/fitrack-app/fitrack-backend/internal/users"
	"github.com/fitrack-app/fitrack-backend/internal/videos"
	"github.com/fitrack-app/fitrack-backend/pkg"
)

type Server struct {
	httpServer        *http.Server
	metricsHttpServer *http.Server
	versionInfo       string

	config     *config.Config
	dbPool     *pgxpool.Pool
	videoStore *videos.DiskStore

	redisClient         *redis.Client
	tokenService        *auth.TokenService
	verificationService *auth.VerificationService
	planGenerator       *trainingplan.Generator

	// metrics
	metricsManager *metrics.Manager
	promRegistry   *prometheus.Registry
	otelShutdown   func()
}

type NewServerParams struct {
	Config                  *config.Config
	TokenSecret             string
	PlanGeneratorAPIKey     string
	RedisPassword           string
	VersionInfo             string
	HoneycombTracingEnabled bool
}

func NewServer(
	ctx context.Context,
	params NewServerParams,
) (*Server, error) {
	dbPool, err := db.NewDBPool(ctx, db.NewDBPoolParams{
		DBHost:         params.Config.PostgresHost,
		DBPort:         params.Config.PostgresPort,
		DBName:         params.Config.PostgresDBName,
		TracingEnabled: params.HoneycombTracingEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("new db pool: %w", err)
	}

	if err := dbPool.Ping(ctx); err != nil {
		log.Warnf("failed to ping db: %s", err)
	}

	pgxpoolCollector := pgxpoolprometheus.NewCollector(
		dbPool,
		map[string]string{"db_name": params.Config.PostgresDBName},
	)
	promRegistry := metrics.SetupPrometheus(pgxpoolCollector)
	metricsManager := metrics.NewManager("fitrack", "backend", promRegistry)
	metricsManager.GaugeLifeSignal.Set(0)

	rdb := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(params.Config.RedisHost, params.Config.RedisPort),
		Password: params.RedisPassword,
		DB:       0, // use default DB
	})
	if params.HoneycombTracingEnabled {
		rdb.AddHook(redisotel.NewTracingHook())
	}

	rdbStatus := rdb.Ping(ctx)
	if err := rdbStatus.Err(); err != nil {
		log.Errorf("--> failed to ping redis: %s", err)
	} else {
		log.Debugf("redis ping: %s", rdbStatus.Val())
	}

	// use honeycomb distro to setup OpenTelemetry SDK
	otelShutdown, err := tracing.HoneycombSetup(params.HoneycombTracingEnabled, "fitrack-backend")
	if err != nil {
		return nil, err
	}

	tracedHttpClient := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   30 * time.Second,
	}

	videoStore, err := videos.NewDiskStore(params.Config.VideosDiskRootPath)
	if err != nil {
		return nil, fmt.Errorf("new video disk store: %w", err)
	}

	planGeneratorAPIURL := params.Config.PlanGeneratorAPIURL
	if planGeneratorAPIURL == "" {
		planGeneratorAPIURL = trainingplan.DefaultAPIURL
	}

	return &Server{
		config:      params.Config,
		dbPool:      dbPool,
		videoStore:  videoStore,
		versionInfo: params.VersionInfo,

		redisClient: rdb,
		tokenService: auth.NewTokenService(
			params.TokenSecret,
			time.Duration(params.Config.TokenTTLMinutes)*time.Minute,
		),
		verificationService: auth.NewVerificationService(rdb),
		planGenerator: trainingplan.NewGenerator(
			planGeneratorAPIURL,
			params.PlanGeneratorAPIKey,
			tracedHttpClient,
		),

		// telemetry
		metricsManager: metricsManager,
		promRegistry:   promRegistry,
		otelShutdown:   otelShutdown,
	}, nil
}

func (s *Server) routerSetup() (*mux.Router, error) {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware("main-router"))

	r.HandleFunc("/", s.handleRoot).Methods("GET", "OPTIONS").Name("root")

	usersRepo := users.NewRepo(s.dbPool)
	usersHandler := users.NewHandler(
		usersRepo,
		s.tokenService,
		s.verificationService,
		s.metricsManager,
	)
	authRouter := r.PathPrefix("/api/auth").Subrouter()
	authRouter.HandleFunc("/register", usersHandler.HandleRegister).Methods("POST", "OPTIONS").Name("register")
	authRouter.HandleFunc("/me", usersHandler.HandleGetMe).Methods("GET", "OPTIONS").Name("get-me")
	authRouter.HandleFunc("/me", usersHandler.HandleUpdateMe).Methods("PUT", "OPTIONS").Name("update-me")
	authRouter.HandleFunc("/bind", usersHandler.HandleBind).Methods("POST", "OPTIONS").Name("bind")
	authRouter.HandleFunc("/send-verification-code", usersHandler.HandleSendVerificationCode).Methods("POST", "OPTIONS").Name("send-verification-code")

	// rate limit the login endpoint to prevent abuse
	reqRateLimiter := redis_rate.NewLimiter(s.redisClient)
	loginRouter := r.PathPrefix("/api/auth/login").Subrouter()
	loginRouter.HandleFunc("", usersHandler.HandleLogin).Methods("POST", "OPTIONS").Name("login")
	loginRouter.Use(middleware.RateLimit(
		reqRateLimiter,
		"login",
		s.config.LoginRateLimitAllowedPerMin,
		s.metricsManager,
	))

	exerciseRepo := exercise.NewRepo(s.dbPool)
	exerciseHandler := exercise.NewHandler(exerciseRepo, s.metricsManager)
	r.HandleFunc("/api/exercise", exerciseHandler.HandleList).Methods("GET", "OPTIONS").Name("list-exercise")
	r.HandleFunc("/api/exercise", exerciseHandler.HandleAdd).Methods("POST", "OPTIONS").Name("new-exercise")
	r.HandleFunc("/api/exercise/{id}", exerciseHandler.HandleGet).Methods("GET", "OPTIONS").Name("get-exercise")
	r.HandleFunc("/api/statistics", exerciseHandler.HandleStatistics).Methods("GET", "OPTIONS").Name("statistics")

	videosHandler := videos.NewHandler(
		videos.NewRepo(s.dbPool),
		s.videoStore,
		videos.StubAnalyzer{},
		s.metricsManager,
	)
	r.HandleFunc("/api/video/upload", videosHandler.HandleUpload).Methods("POST", "OPTIONS").Name("upload-video")
	r.HandleFunc("/api/video/list", videosHandler.HandleList).Methods("GET", "OPTIONS").Name("list-videos")
	r.HandleFunc("/api/video/{id}/preview", videosHandler.HandlePreview).Methods("GET", "OPTIONS").Name("preview-video")
	r.HandleFunc("/api/video/{id}/analyze", videosHandler.HandleAnalyze).Methods("POST", "OPTIONS").Name("analyze-video")

	plansHandler := trainingplan.NewHandler(
		trainingplan.NewRepo(s.dbPool),
		s.planGenerator,
		exerciseRepo,
		usersRepo,
		s.metricsManager,
	)
	r.HandleFunc("/api/training-plan/generate", plansHandler.HandleGenerate).Methods("POST", "OPTIONS").Name("generate-plan")
	r.HandleFunc("/api/training-plan/list", plansHandler.HandleList).Methods("GET", "OPTIONS").Name("list-plans")
	r.HandleFunc("/api/training-plan/{id}", plansHandler.HandleGet).Methods("GET", "OPTIONS").Name("get-plan")
	r.HandleFunc("/api/training-plan/{id}/export/pdf", plansHandler.HandleExportPDF).Methods("GET", "OPTIONS").Name("export-plan-pdf")

	exportHandler := export.NewHandler(exerciseRepo, s.metricsManager)
	r.HandleFunc("/api/export/csv", exportHandler.HandleCSV).Methods("GET", "OPTIONS").Name("export-csv")
	r.HandleFunc("/api/export/json", exportHandler.HandleJSON).Methods("GET", "OPTIONS").Name("export-json")
	r.HandleFunc("/api/export/pdf", exportHandler.HandlePDF).Methods("GET", "OPTIONS").Name("export-pdf")

	// all the rest - unhandled paths
	r.HandleFunc("/{unknown}", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}).Methods("GET", "POST", "PUT", "OPTIONS").Name("unknown")

	authMiddleware := middleware.NewAuthMiddlewareHandler(s.tokenService)

	r.Use(middleware.PanicRecovery(s.metricsManager))
	r.Use(middleware.LogRequest())
	r.Use(middleware.RequestMetrics(s.metricsManager))
	r.Use(middleware.Cors())
	r.Use(authMiddleware.AuthCheck())
	r.Use(middleware.DrainAndCloseRequest())

	return r, nil
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	index := map[string]any{
		"message": "跑步分析系统API",
		"version": s.versionInfo,
		"endpoints": map[string]map[string]string{
			"认证相关": {
				"POST /api/auth/register":               "用户注册",
				"POST /api/auth/login":                  "用户登录",
				"GET /api/auth/me":                      "获取当前用户信息",
				"PUT /api/auth/me":                      "更新用户信息",
				"POST /api/auth/bind":                   "绑定账号",
				"POST /api/auth/send-verification-code": "发送验证码",
			},
			"运动数据": {
				"GET /api/exercise":      "获取运动数据列表",
				"POST /api/exercise":     "提交运动数据",
				"GET /api/exercise/{id}": "获取单条运动数据",
				"GET /api/statistics":    "获取统计数据",
			},
			"视频分析": {
				"POST /api/video/upload":       "上传视频",
				"GET /api/video/list":          "获取视频列表",
				"GET /api/video/{id}/preview":  "预览视频",
				"POST /api/video/{id}/analyze": "分析视频",
			},
			"训练计划": {
				"POST /api/training-plan/generate": "生成训练计划",
				"GET /api/training-plan/list":      "获取训练计划列表",
				"GET /api/training-plan/{id}":      "获取训练计划详情",
			},
			"数据导出": {
				"GET /api/export/csv":  "导出CSV数据",
				"GET /api/export/json": "导出JSON数据",
				"GET /api/export/pdf":  "导出PDF数据",
			},
		},
	}

	indexBytes, err := json.Marshal(index)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, indexBytes, http.StatusOK)
}

func (s *Server) Serve(_ context.Context, host string, port int) {
	router, err := s.routerSetup()
	if err != nil {
		log.Fatalf("failed to setup router: %s", err)
	}

	ipAndPort := net.JoinHostPort(host, strconv.Itoa(port))
	s.httpServer = &http.Server{
		Handler:      router,
		Addr:         ipAndPort,
		WriteTimeout: time.Minute,
		ReadTimeout:  time.Minute,
		ConnState:    s.connStateMetrics,
	}

	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.HandlerFor(
		s.promRegistry,
		promhttp.HandlerOpts{},
	))
	metricsAddr := net.JoinHostPort(s.config.PrometheusMetricsHost, s.config.PrometheusMetricsPort)
	s.metricsHttpServer = &http.Server{
		Addr:    metricsAddr,
		Handler: metricsRouter,
	}

	go func() {
		log.Infof(" > server listening on: [%s]", ipAndPort)
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("main service, listen and serve: %s", err)
		}
	}()

	go func() {
		log.Debugf(" > metrics listening on: [%s]", metricsAddr)
		err := s.metricsHttpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("metrics service, listen and serve: %s", err)
		}
	}()

	s.metricsManager.GaugeLifeSignal.Set(1)
}

func (s *Server) GracefulShutdown() {
	log.Debug("graceful shutdown initiated ...")

	s.metricsManager.GaugeLifeSignal.Set(0)

	s.otelShutdown()
	log.Trace("otel shut down ...")

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			log.Errorf("failed to close redis client conn: %s", err)
		}
	}

	if s.dbPool != nil {
		log.Debugln("closing db pool ...")
		s.dbPool.Close() // blocking operation
		log.Debugln("db pool closed")
	}

	if ok := sentry.Flush(5 * time.Second); ok {
		log.Debugf("sentry flush ok: %t", ok)
	}

	maxWaitDuration := time.Second * 15
	ctx, timeoutCancel := context.WithTimeout(context.Background(), maxWaitDuration)
	defer timeoutCancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Error(" >>> failed to gracefully shutdown http server")
	}
	log.Warnln("server shut down")

	if err := s.metricsHttpServer.Shutdown(ctx); err != nil {
		log.Error(" >>> failed to gracefully shutdown metrics http server")
	}
	log.Warnln("metrics server shut down")
}

func (s *Server) connStateMetrics(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		s.metricsManager.GaugeRequests.Add(1)
	case http.StateClosed:
		s.metricsManager.GaugeRequests.Add(-1)
	default:
		// do nothing
	}
}
