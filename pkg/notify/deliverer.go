package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/pitabwire/frame/workerpool"

	"github.com/northstarrec/outdial/pkg/events"
	"github.com/northstarrec/outdial/pkg/urlvalidation"
)

const maxBreakers = 10000

// DelivererConfig holds delivery-related settings.
type DelivererConfig struct {
	MaxRetries        int
	TimeoutSec        int
	BackoffInitialSec int
	BackoffMaxSec     int
	CBFailThreshold   int
	CBResetTimeoutSec int
}

// Deliverer posts event envelopes to registered endpoints with signing,
// retries, circuit breaking, and dead-lettering.
type Deliverer struct {
	repo         *Repository
	httpClient   *http.Client
	config       DelivererConfig
	pool         workerpool.WorkerPool
	validateOpts []urlvalidation.Option

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewDeliverer creates a new deliverer.
func NewDeliverer(repo *Repository, cfg DelivererConfig, pool workerpool.WorkerPool, validateOpts ...urlvalidation.Option) *Deliverer {
	return &Deliverer{
		repo: repo,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSec) * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		config:       cfg,
		pool:         pool,
		validateOpts: validateOpts,
		breakers:     make(map[string]*CircuitBreaker),
	}
}

func (d *Deliverer) breaker(endpointID string) *CircuitBreaker {
	d.mu.Lock()
	defer d.mu.Unlock()

	cb, ok := d.breakers[endpointID]
	if ok {
		return cb
	}

	// Evict an arbitrary entry at capacity; breakers rebuild from traffic.
	if len(d.breakers) >= maxBreakers {
		for k := range d.breakers {
			delete(d.breakers, k)
			break
		}
	}

	cb = NewCircuitBreaker(BreakerConfig{
		FailureThreshold: d.config.CBFailThreshold,
		ResetTimeout:     time.Duration(d.config.CBResetTimeoutSec) * time.Second,
		HalfOpenProbes:   1,
	})
	d.breakers[endpointID] = cb
	return cb
}

// Deliver attempts to POST an event envelope to an endpoint.
func (d *Deliverer) Deliver(ctx context.Context, ep Endpoint, env events.Envelope) {
	d.deliverWithRetry(ctx, ep, env, 1)
}

func (d *Deliverer) deliverWithRetry(ctx context.Context, ep Endpoint, env events.Envelope, attempt int) {
	if err := urlvalidation.ValidateEndpointURL(ep.URL, d.validateOpts...); err != nil {
		slog.ErrorContext(ctx, "endpoint URL failed SSRF validation",
			slog.String("endpoint_id", ep.ID),
			slog.String("url", ep.URL),
			slog.String("error", err.Error()))
		return
	}

	cb := d.breaker(ep.ID)
	if !cb.Allow() {
		d.handleFailure(ctx, ep, env, attempt, "circuit open")
		return
	}

	da, ok := d.postOnce(ctx, ep, env, attempt)
	if ok {
		cb.RecordSuccess()
	} else {
		cb.RecordFailure()
	}
	// A nil repo skips attempt recording; unit tests run without a database.
	if d.repo != nil {
		if err := d.repo.RecordDelivery(ctx, da); err != nil {
			slog.ErrorContext(ctx, "record delivery failed", slog.String("error", err.Error()))
		}
	}
	if !ok {
		d.handleFailure(ctx, ep, env, attempt, da.Error)
	}
}

// postOnce performs one signed POST and returns the attempt record plus
// whether the endpoint accepted it.
func (d *Deliverer) postOnce(ctx context.Context, ep Endpoint, env events.Envelope, attempt int) (*DeliveryAttempt, bool) {
	da := &DeliveryAttempt{
		EndpointID:    ep.ID,
		EventID:       env.ID,
		EventType:     string(env.Type),
		AttemptNumber: attempt,
		Status:        "failed",
	}

	body, err := json.Marshal(env)
	if err != nil {
		da.Error = fmt.Sprintf("marshal: %v", err)
		return da, false
	}
	da.RequestBody = string(body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		da.Error = fmt.Sprintf("create request: %v", err)
		return da, false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, Sign(ep.Secret, body))
	req.Header.Set("X-Outdial-Event", string(env.Type))
	req.Header.Set("X-Outdial-Delivery", env.ID)

	start := time.Now()
	resp, err := d.httpClient.Do(req)
	da.DurationMs = time.Since(start).Milliseconds()
	if err != nil {
		da.Error = err.Error()
		return da, false
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	// Drain remainder for connection reuse.
	io.Copy(io.Discard, resp.Body)

	da.ResponseCode = resp.StatusCode
	da.ResponseBody = string(respBody)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		da.Status = "success"
		da.Error = ""
		return da, true
	}
	da.Error = fmt.Sprintf("HTTP %d", resp.StatusCode)
	return da, false
}

func (d *Deliverer) handleFailure(ctx context.Context, ep Endpoint, env events.Envelope, attempt int, errMsg string) {
	if attempt >= d.config.MaxRetries {
		if d.repo == nil {
			return
		}
		payload, _ := json.Marshal(env)
		if err := d.repo.CreateDeadLetter(ctx, &DeadLetter{
			EndpointID: ep.ID,
			EventID:    env.ID,
			EventType:  string(env.Type),
			Payload:    string(payload),
			LastError:  errMsg,
			Attempts:   attempt,
			Replayable: true,
		}); err != nil {
			slog.ErrorContext(ctx, "create dead letter failed", slog.String("error", err.Error()))
		}
		return
	}

	backoff := d.config.BackoffInitialSec * (1 << (attempt - 1))
	if backoff > d.config.BackoffMaxSec {
		backoff = d.config.BackoffMaxSec
	}

	retryFunc := func() {
		timer := time.NewTimer(time.Duration(backoff) * time.Second)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			d.deliverWithRetry(ctx, ep, env, attempt+1)
		}
	}

	if d.pool != nil {
		if err := d.pool.Submit(ctx, retryFunc); err != nil {
			slog.WarnContext(ctx, "retry pool full, dropping retry",
				slog.String("endpoint_id", ep.ID),
				slog.Int("attempt", attempt))
		}
	} else {
		time.AfterFunc(time.Duration(backoff)*time.Second, func() {
			d.deliverWithRetry(ctx, ep, env, attempt+1)
		})
	}
}
