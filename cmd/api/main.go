package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/shinyyama/tripmatch-backend/internal/ai"
	"github.com/shinyyama/tripmatch-backend/internal/config"
	"github.com/shinyyama/tripmatch-backend/internal/db"
	appmw "github.com/shinyyama/tripmatch-backend/internal/middleware"
	"github.com/shinyyama/tripmatch-backend/internal/server"
	"github.com/shinyyama/tripmatch-backend/internal/storage"
)

// set with -ldflags at build time
var (
	gitSHA    = "dev"
	buildTime = ""
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

func main() {
	_ = godotenv.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	gopts, err := storage.ClientOptions(ctx, cfg.GoogleCredentialsFile, cloudPlatformScope)
	if err != nil {
		log.Fatalf("google credentials: %v", err)
	}

	var verifier appmw.Verifier
	switch cfg.AuthProvider {
	case "jwt":
		verifier, err = appmw.NewJWTVerifier(cfg.JWTSecret)
	default:
		verifier, err = appmw.NewFirebaseVerifier(ctx, cfg.FirebaseProjectID, gopts...)
	}
	if err != nil {
		log.Fatalf("failed to init %s auth: %v", cfg.AuthProvider, err)
	}

	var uploader storage.Uploader
	if cfg.StorageBucket != "" {
		gcs, err := storage.NewGCSUploader(ctx, cfg.StorageBucket, gopts...)
		if err != nil {
			log.Fatalf("storage init error: %v", err)
		}
		defer gcs.Close()
		uploader = gcs
	} else {
		log.Printf("STORAGE_BUCKET is not set; ticket upload disabled")
	}

	var estimator ai.WeightEstimator
	if cfg.GeminiAPIKey != "" {
		est, err := ai.NewGeminiWeightClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Printf("gemini init error: %v; weight estimate disabled", err)
		} else {
			estimator = est
		}
	}

	rdb, err := db.OpenRedis(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis error: %v", err)
	}
	if rdb == nil {
		log.Printf("REDIS_URL is not set; pending matches are indexed from the database")
	} else {
		defer rdb.Close()
	}

	svcs := server.NewServices(nil, cfg, rdb, uploader)
	srv := server.New(nil, svcs, server.Options{Verifier: verifier, Estimator: estimator, SHA: gitSHA, BuildTime: buildTime})

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)

	go func() {
		log.Printf("starting server on %s", addr)
		errCh <- srv.Start(addr)
	}()

	go func() {
		conn, err := db.Connect(cfg)
		if err != nil {
			log.Printf("db connect error: %v", err)
			return
		}
		if err := db.Migrate(conn); err != nil {
			log.Printf("auto migrate error: %v", err)
			return
		}
		srv.SetDB(conn)
		log.Printf("database ready (driver=%s)", cfg.DBDriver)
	}()

	select {
	case err := <-errCh:
		log.Fatalf("server stopped: %v", err)
	case <-ctx.Done():
		log.Printf("shutting down")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Printf("shutdown error: %v", err)
		}
	}
}
