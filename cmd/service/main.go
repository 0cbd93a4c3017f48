package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/fitrack-app/fitrack-backend/internal"
	"github.com/fitrack-app/fitrack-backend/internal/config"
	"github.com/fitrack-app/fitrack-backend/internal/logging"
	"github.com/fitrack-app/fitrack-backend/pkg"

	log "github.com/sirupsen/logrus"
)

func main() {
	fmt.Println("starting ...")

	env := flag.String("env", "development", "environment [prod | production | dev | development]")
	configPath := flag.String("config", "./config.toml", "path for the TOML config file")
	flag.Parse()

	log.Warnf("---->> running in [%s] environment", *env)

	cfg, err := config.Load(*env, *configPath)
	if err != nil {
		panic(err)
	}

	sentryDSN := os.Getenv("SENTRY_DSN")
	logging.Setup(logging.LoggerSetupParams{
		LogFileName:      cfg.LogsPath,
		LogToStdout:      cfg.LogToStdout,
		LogLevel:         cfg.LogLevel,
		LogFormatJSON:    false,
		Environment:      cfg.Environment,
		SentryEnabled:    cfg.SentryEnabled,
		SentryDSN:        sentryDSN,
		SentryServerName: "main-service",
	})

	log.Debugf("using port: %d", cfg.Port)
	log.Debugf("using server logs path: [%s]", cfg.LogsPath)

	tokenSecret := os.Getenv("FITRACK_TOKEN_SECRET")
	if tokenSecret == "" {
		log.Errorf("token secret not set, use FITRACK_TOKEN_SECRET env var to set it")
		tokenSecret = "dev-only-token-secret"
	}

	planGeneratorAPIKey := os.Getenv("DEEPSEEK_API_KEY")
	if planGeneratorAPIKey == "" {
		log.Warnln("deepseek API key not set, training plans will use the built-in sample plan. use DEEPSEEK_API_KEY to set it")
	}

	redisPassword := os.Getenv("FITRACK_REDIS_PASS")
	if redisPassword == "" {
		log.Errorf("redis password not set. use FITRACK_REDIS_PASS")
	}

	versionInfo, err := tryGetLastCommitHash()
	if err != nil {
		log.Tracef("failed to get last commit hash / version info: %s", err)
	} else {
		log.Tracef("running version: %s", versionInfo)
	}

	if otelServiceName := os.Getenv("OTEL_SERVICE_NAME"); otelServiceName == "" {
		log.Warnln("OTEL_SERVICE_NAME env var not set")
	}

	honeycombEnabled := os.Getenv("HONEYCOMB_ENABLED") == "true"
	if honeycombEnabled {
		if honeycombApiKey := os.Getenv("HONEYCOMB_API_KEY"); honeycombApiKey == "" {
			log.Warnln("HONEYCOMB_API_KEY env var not set")
		}
	} else {
		log.Debugln("honeycomb tracing disabled")
	}

	chOsInterrupt := make(chan os.Signal, 1)
	signal.Notify(chOsInterrupt, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())

	// check if cfg.VideosDiskRootPath exists and is a directory, and create if not
	dirExists, err := pkg.PathExists(cfg.VideosDiskRootPath, true)
	if err != nil {
		log.Fatalf("check videos disk root dir: %s", err)
	}
	if !dirExists {
		if err := os.MkdirAll(cfg.VideosDiskRootPath, 0o755); err != nil {
			log.Fatalf("create videos disk root dir: %s", err)
		}
		log.Printf("videos disk root dir created: %s", cfg.VideosDiskRootPath)
	} else {
		log.Printf("videos disk root dir: %s", cfg.VideosDiskRootPath)
	}

	server, err := internal.NewServer(
		ctx,
		internal.NewServerParams{
			Config:                  cfg,
			TokenSecret:             tokenSecret,
			PlanGeneratorAPIKey:     planGeneratorAPIKey,
			RedisPassword:           redisPassword,
			VersionInfo:             versionInfo,
			HoneycombTracingEnabled: honeycombEnabled,
		},
	)
	if err != nil {
		log.Fatalf("new server: %s", err)
	}

	server.Serve(ctx, cfg.Host, cfg.Port)

	receivedSig := <-chOsInterrupt
	log.Warnf("signal [%s] received, killing everything ...", receivedSig)
	cancel()

	server.GracefulShutdown()
}

// tryGetLastCommitHash will try to get the last commit hash
// assumes that the built main executable is in project root
func tryGetLastCommitHash() (string, error) {
	cmd := exec.Command("/usr/bin/git", "rev-parse", "HEAD")
	stdout, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return pkg.BytesToString(stdout), nil
}
