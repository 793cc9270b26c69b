package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/plotark/plotark/internal/app"
	"github.com/plotark/plotark/internal/catalog"
	"github.com/plotark/plotark/internal/config"
	"github.com/plotark/plotark/internal/db"
	"github.com/plotark/plotark/internal/generator"
	"github.com/plotark/plotark/internal/httpapi"
	"github.com/plotark/plotark/internal/mail"
	"github.com/plotark/plotark/internal/outline"
	"github.com/plotark/plotark/internal/ratelimit"
	"github.com/plotark/plotark/internal/verification"
	log "github.com/sirupsen/logrus"
)

// main runs the CLI entrypoint and exits on unrecoverable errors.
func main() {
	if errRun := run(context.Background(), os.Args[1:]); errRun != nil {
		log.WithError(errRun).Error("server failed")
		os.Exit(1)
	}
}

// run parses flags, loads config, and starts the API server.
func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("plotark", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "config file path (or env CONFIG_PATH)")
	port := fs.Int("port", 8318, "server port")
	doInit := fs.Bool("init", false, "write a starter config file and exit")
	seedEmail := fs.String("seed-email", "", "seed a verified account with this email")
	seedPassword := fs.String("seed-password", "", "password for the seeded account")
	seedCredits := fs.Int("seed-credits", 100, "credit balance for the seeded account")
	if errParse := fs.Parse(args); errParse != nil {
		return errParse
	}
	if errValidate := validatePort(*port); errValidate != nil {
		return errValidate
	}

	appCfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	if strings.TrimSpace(*cfgPath) != "" {
		appCfg.ConfigPath = config.ResolveConfigPath(*cfgPath)
	}
	configPath := config.ResolveConfigPath(appCfg.ConfigPath)

	if *doInit {
		if app.ConfigExists(configPath) {
			return fmt.Errorf("config already exists at %s", configPath)
		}
		dsn, errBuild := app.BuildDSN(app.InitOptions{DatabaseType: "sqlite"})
		if errBuild != nil {
			return errBuild
		}
		if errWrite := app.WriteConfigFile(configPath, dsn, os.Getenv(config.EnvGeminiAPIKey)); errWrite != nil {
			return errWrite
		}
		log.Infof("wrote starter config to %s", configPath)
		return nil
	}

	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}
	if strings.TrimSpace(*seedEmail) != "" {
		if errSeed := app.SeedAccount(conn, *seedEmail, *seedPassword, *seedCredits); errSeed != nil {
			return errSeed
		}
	}

	jwtCfg, _ := config.LoadJWTConfig(configPath)
	if strings.TrimSpace(jwtCfg.Secret) == "" {
		return fmt.Errorf("missing jwt secret (set `jwt.secret` in config file or env %s)", config.EnvJWTSecret)
	}
	adminSecret := config.LoadAdminSecret(configPath)
	if adminSecret == "" {
		log.Warn("no admin secret configured, admin routes disabled")
	}

	generatorCfg, _ := config.LoadGeneratorConfig(configPath)
	if strings.TrimSpace(generatorCfg.APIKey) == "" {
		return fmt.Errorf("missing generator api key (set `generator.api-key` in config file or env %s)", config.EnvGeminiAPIKey)
	}

	mailCfg, _ := config.LoadMailConfig(configPath)
	var mailer mail.Mailer
	if smtpMailer := mail.NewSMTPMailer(mailCfg); smtpMailer != nil {
		mailer = smtpMailer
	} else {
		log.Warn("mailer not configured, verification tokens returned in responses")
	}

	rateLimitCfg, _ := config.LoadRateLimitConfig(configPath)
	limiter := ratelimit.NewManager(func() config.RateLimitConfig { return rateLimitCfg }, nil, nil)

	gemini := generator.NewGeminiClient(generatorCfg)
	modelCatalog := catalog.New(gemini)
	modelCatalog.Start(ctx)

	engine := gin.New()
	engine.Use(gin.Recovery())

	httpapi.RegisterRoutes(engine, httpapi.Deps{
		DB:          conn,
		JWT:         jwtCfg,
		AdminSecret: adminSecret,
		Mail:        mailCfg,
		Mailer:      mailer,
		Verifier:    verification.NewService(conn, jwtCfg.Secret, nil),
		Outlines:    outline.NewService(conn, gemini),
		Catalog:     modelCatalog,
		Limiter:     limiter,
		RateLimits:  func() config.RateLimitConfig { return rateLimitCfg },
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", *port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errServe := make(chan error, 1)
	go func() { errServe <- server.ListenAndServe() }()

	log.Infof("plotark listening on :%d with config=%s", *port, configPath)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errServe:
		return err
	}
}

func validatePort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port: %d", port)
	}
	return nil
}
