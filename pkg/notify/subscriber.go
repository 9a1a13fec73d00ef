package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/pitabwire/frame/workerpool"
	"github.com/pitabwire/util"

	"github.com/northstarrec/outdial/pkg/events"
)

// Subscriber implements queue.SubscribeWorker to route events to matching
// endpoints.
type Subscriber struct {
	Repo      *Repository
	Deliverer *Deliverer
	Pool      workerpool.WorkerPool
}

// Handle is called by frame's pub/sub for each event message.
func (ns *Subscriber) Handle(ctx context.Context, _ map[string]string, message []byte) error {
	var env events.Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		util.Log(ctx).WithError(err).Error("notify subscriber: unmarshal envelope")
		return err
	}

	endpoints, err := ns.Repo.ListByEventType(ctx, env.Type)
	if err != nil {
		util.Log(ctx).WithError(err).Error("notify subscriber: list endpoints")
		return err
	}

	for _, ep := range endpoints {
		if ep.CampaignFilter != "" && ep.CampaignFilter != env.Metadata["campaign_id"] {
			continue
		}
		ep := ep
		env := env
		if ns.Pool != nil {
			if err := ns.Pool.Submit(ctx, func() {
				ns.Deliverer.Deliver(ctx, ep, env)
			}); err != nil {
				slog.WarnContext(ctx, "notify pool full", slog.String("endpoint_id", ep.ID))
			}
		} else {
			go ns.Deliverer.Deliver(ctx, ep, env)
		}
	}

	return nil
}
