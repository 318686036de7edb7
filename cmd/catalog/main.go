package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"google.golang.org/grpc"

	"github.com/Iradukunda-Fils/microservices-demo/internal/catalog"
	"github.com/Iradukunda-Fils/microservices-demo/internal/config"
	"github.com/Iradukunda-Fils/microservices-demo/internal/httpapi"
	"github.com/Iradukunda-Fils/microservices-demo/internal/obs"
	"github.com/Iradukunda-Fils/microservices-demo/internal/rpc"
	"github.com/Iradukunda-Fils/microservices-demo/internal/rpc/wire"
	"github.com/Iradukunda-Fils/microservices-demo/internal/token"
)

var version = "0.3.0"

func main() {
	cfg, err := config.LoadCatalog()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	obs.InitLogger("catalog", cfg.AppEnv)
	obs.Init()
	obs.InitBuildInfo("catalog", version)
	log := obs.Logger()

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("open db")
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	// The catalog cannot serve before it can verify tokens; wait for the
	// IdP's public key, bounded by the startup timeout.
	keyCtx, cancelKeys := context.WithTimeout(context.Background(), token.DefaultStartupTimeout)
	verifier, err := token.NewVerifier(keyCtx, token.StartupSource{
		KeyDir: cfg.KeyDir,
		URL:    cfg.IdPPublicKeyURL,
	})
	cancelKeys()
	if err != nil {
		log.Fatal().Err(err).Msg("verifying key unavailable")
	}

	svc := catalog.NewService(catalog.NewPGStore(db))
	api := httpapi.NewCatalogAPI(svc, verifier, httpapi.ReadyProbe{DB: db}, version)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(rpc.UnaryAuthInterceptor(cfg.InternalRPCSecret)))
	wire.RegisterProductServiceServer(grpcServer, catalog.NewRPCServer(svc))

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.RPCPort))
	if err != nil {
		log.Fatal().Err(err).Msg("rpc listen")
	}

	log.Info().Str("version", version).Int("http_port", cfg.HTTPPort).Int("rpc_port", cfg.RPCPort).Msg("starting catalog")

	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatal().Err(err).Msg("rpc serve")
		}
	}()
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
	grpcServer.GracefulStop()
	_ = db.Close()
	log.Info().Msg("stopped")
}
