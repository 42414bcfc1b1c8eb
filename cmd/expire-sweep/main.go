package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/shinyyama/tripmatch-backend/internal/config"
	"github.com/shinyyama/tripmatch-backend/internal/db"
	"github.com/shinyyama/tripmatch-backend/internal/reqctx"
	"github.com/shinyyama/tripmatch-backend/internal/repository"
	"github.com/shinyyama/tripmatch-backend/internal/server"
	"github.com/shinyyama/tripmatch-backend/internal/service"
)

// expire-sweep runs one expiry pass and exits. Schedule it from cron or Cloud Scheduler.
func main() {
	reindex := flag.Bool("reindex", false, "re-add pending matches from the database to the Redis index before sweeping")
	flag.Parse()

	if err := run(*reindex); err != nil {
		log.Fatalf("sweep failed: %v", err)
	}
}

func run(reindex bool) error {
	_ = godotenv.Load()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = reqctx.WithRID(ctx, "sweep-"+time.Now().UTC().Format("20060102T150405"))

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	conn, err := db.Connect(cfg)
	if err != nil {
		return err
	}
	rdb, err := db.OpenRedis(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}
	svcs := server.NewServices(conn, cfg, rdb, nil)

	if reindex && rdb != nil {
		n, err := repository.Reindex(ctx, svcs.Index, svcs.MatchRepo, time.Now().UTC().Add(cfg.MatchResponseWindow))
		if err != nil {
			return err
		}
		log.Printf("[sweep] rid=%s stage=reindexed count=%d", reqctx.RID(ctx), n)
	}

	res, err := svcs.Booking.ExpireStale(ctx, service.Actor{UID: "expire-sweep", Role: service.RoleScheduler})
	if err != nil {
		return err
	}
	log.Printf("[sweep] rid=%s stage=done expired=%d skipped=%d failed=%d", reqctx.RID(ctx), len(res.Expired), res.Skipped, res.Failed)
	return nil
}
