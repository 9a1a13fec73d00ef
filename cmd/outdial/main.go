package main

import (
	"context"
	"log"
	"net/http"

	"github.com/pitabwire/frame"
	"github.com/pitabwire/frame/config"

	odconfig "github.com/northstarrec/outdial/config"
	agenthandler "github.com/northstarrec/outdial/internal/agent/handler"
	"github.com/northstarrec/outdial/internal/httputil"
	"github.com/northstarrec/outdial/pkg/events"
	"github.com/northstarrec/outdial/pkg/notify"
	notifyapi "github.com/northstarrec/outdial/pkg/notify/api"
	"github.com/northstarrec/outdial/pkg/outbound"
	"github.com/northstarrec/outdial/pkg/policy"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadWithOIDC[odconfig.AgentConfig](ctx)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	eventRef := cfg.GetEventsQueueName()
	eventURL := cfg.GetEventsQueueURL()

	ctx, srv := frame.NewService(
		frame.WithConfig(&cfg),
		frame.WithName("outdial-agent"),
		frame.WithDatastore(),
		frame.WithRegisterServerOauth2Client(),
		frame.WithRegisterPublisher(eventRef, eventURL),
	)
	defer srv.Stop(ctx)

	authenticator := srv.SecurityManager().GetAuthenticator(ctx)

	pool, err := srv.WorkManager().GetPool()
	if err != nil {
		log.Fatalf("getting worker pool: %v", err)
	}

	pub := events.NewPublisher(srv.QueueManager(), "agent", eventRef)

	dbPool := srv.DatastoreManager().GetPool(ctx, "__default__pool_name__")
	repo := outbound.NewRepository(dbPool)

	nfRepo := notify.NewRepository(dbPool)
	nfDeliverer := notify.NewDeliverer(nfRepo, notify.DelivererConfig{
		MaxRetries:        cfg.NotifyMaxRetries,
		TimeoutSec:        cfg.NotifyTimeoutSec,
		BackoffInitialSec: cfg.NotifyBackoffSec,
		BackoffMaxSec:     cfg.NotifyBackoffMax,
		CBFailThreshold:   cfg.CBFailThreshold,
		CBResetTimeoutSec: cfg.CBResetTimeoutSec,
	}, pool)
	nfSubscriber := &notify.Subscriber{
		Repo:      nfRepo,
		Deliverer: nfDeliverer,
		Pool:      pool,
	}

	loader := policy.NewLoader(cfg.PolicyDir)
	if _, err := loader.LoadAll(); err != nil {
		log.Printf("warning: loading policies: %v", err)
	}
	// WatchAndReload blocks until ctx is done, so it runs on the pool.
	if err := pool.Submit(ctx, func() {
		if err := loader.WatchAndReload(ctx.Done()); err != nil {
			log.Printf("warning: policy watcher: %v", err)
		}
	}); err != nil {
		log.Printf("warning: starting policy watcher: %v", err)
	}

	handler := agenthandler.NewHandler(loader, repo, pub, pool)

	restMux := http.NewServeMux()
	handler.RegisterRoutes(restMux)
	notifyapi.NewHandler(nfRepo, pub).RegisterRoutes(restMux)

	mux := http.NewServeMux()
	mux.Handle("/api/", httputil.AuthMiddleware(restMux, authenticator))

	// Start call session reaper.
	handler.StartReaper(ctx)

	srv.Init(ctx,
		frame.WithRegisterSubscriber(eventRef+".notify", eventURL, nfSubscriber),
		frame.WithHTTPHandler(httputil.H2CHandler(httputil.LoggingMiddleware(mux))),
	)

	if err := srv.Run(ctx, ""); err != nil {
		log.Fatalf("service exited: %v", err)
	}
}
