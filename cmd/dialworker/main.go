package main

import (
	"context"
	"log"
	"time"

	"github.com/pitabwire/frame"
	"github.com/pitabwire/frame/config"
	"github.com/rs/xid"

	odconfig "github.com/northstarrec/outdial/config"
	"github.com/northstarrec/outdial/internal/worker"
	"github.com/northstarrec/outdial/pkg/events"
	"github.com/northstarrec/outdial/pkg/outbound"
	"github.com/northstarrec/outdial/pkg/policy"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadWithOIDC[odconfig.WorkerConfig](ctx)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	eventRef := cfg.GetEventsQueueName()
	eventURL := cfg.GetEventsQueueURL()

	ctx, srv := frame.NewService(
		frame.WithConfig(&cfg),
		frame.WithName("outdial-dialworker"),
		frame.WithDatastore(),
		frame.WithRegisterPublisher(eventRef, eventURL),
	)
	defer srv.Stop(ctx)

	pool, err := srv.WorkManager().GetPool()
	if err != nil {
		log.Fatalf("getting worker pool: %v", err)
	}

	pub := events.NewPublisher(srv.QueueManager(), "dialworker", eventRef)

	repo := outbound.NewRepository(
		srv.DatastoreManager().GetPool(ctx, "__default__pool_name__"),
	)

	loader := policy.NewLoader(cfg.PolicyDir)
	if _, err := loader.LoadAll(); err != nil {
		log.Printf("warning: loading policies: %v", err)
	}

	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = "dialworker-" + xid.New().String()
	}

	dialer := worker.NewHTTPDialer(cfg.AgentAPIURL, time.Duration(cfg.DialTimeoutSec)*time.Second)
	w := worker.New(workerID, repo, loader, dialer, pub,
		time.Duration(cfg.PollIntervalSec)*time.Second)

	if err := pool.Submit(ctx, func() {
		if err := w.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("dial loop exited: %v", err)
		}
	}); err != nil {
		log.Fatalf("starting dial loop: %v", err)
	}

	srv.Init(ctx)

	if err := srv.Run(ctx, ""); err != nil {
		log.Fatalf("service exited: %v", err)
	}
}
