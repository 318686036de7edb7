package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/Iradukunda-Fils/microservices-demo/internal/config"
	"github.com/Iradukunda-Fils/microservices-demo/internal/httpapi"
	"github.com/Iradukunda-Fils/microservices-demo/internal/obs"
	"github.com/Iradukunda-Fils/microservices-demo/internal/orders"
	"github.com/Iradukunda-Fils/microservices-demo/internal/resilience"
	"github.com/Iradukunda-Fils/microservices-demo/internal/token"
)

var version = "0.3.0"

func main() {
	cfg, err := config.LoadOrchestrator()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	obs.InitLogger("orchestrator", cfg.AppEnv)
	obs.Init()
	obs.InitBuildInfo("orchestrator", version)
	log := obs.Logger()

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("open db")
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	keyCtx, cancelKeys := context.WithTimeout(context.Background(), token.DefaultStartupTimeout)
	verifier, err := token.NewVerifier(keyCtx, token.StartupSource{
		KeyDir: cfg.KeyDir,
		URL:    cfg.IdPPublicKeyURL,
	})
	cancelKeys()
	if err != nil {
		log.Fatal().Err(err).Msg("verifying key unavailable")
	}

	fieldKey, err := cfg.FieldKey()
	if err != nil {
		log.Fatal().Err(err).Msg("field encryption key")
	}
	cipher, err := orders.NewCipher(fieldKey)
	if err != nil {
		log.Fatal().Err(err).Msg("field cipher")
	}

	retry := resilience.RetryPolicy{
		MaxAttempts: cfg.RetryMaxAttempts,
		Base:        cfg.RetryBase(),
		Cap:         cfg.RetryCap(),
	}
	dialCtx, cancelDial := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelDial()

	idpClient, err := orders.DialIdP(dialCtx, cfg.IdPRPCAddr, cfg.InternalRPCSecret, resilience.NewCaller(resilience.CallerConfig{
		Target:        "idp",
		FailThreshold: cfg.CircuitFailThreshold,
		ResetTimeout:  cfg.CircuitReset(),
		Retry:         retry,
		Deadline:      cfg.RPCDeadline(),
	}))
	if err != nil {
		log.Fatal().Err(err).Msg("dial idp")
	}
	defer idpClient.Close()

	catalogClient, err := orders.DialCatalog(dialCtx, cfg.CatalogRPCAddr, cfg.InternalRPCSecret, resilience.NewCaller(resilience.CallerConfig{
		Target:        "catalog",
		FailThreshold: cfg.CircuitFailThreshold,
		ResetTimeout:  cfg.CircuitReset(),
		Retry:         retry,
		Deadline:      cfg.RPCDeadline(),
	}))
	if err != nil {
		log.Fatal().Err(err).Msg("dial catalog")
	}
	defer catalogClient.Close()

	svc := orders.NewService(orders.NewPGStore(db), cipher, idpClient, catalogClient)
	api := httpapi.NewOrdersAPI(svc, verifier, httpapi.ReadyProbe{DB: db}, version)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           api.Handler(),
		ReadTimeout:       60 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Info().Str("version", version).Int("http_port", cfg.HTTPPort).Msg("starting orchestrator")

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http listen")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = db.Close()
	log.Info().Msg("stopped")
}
