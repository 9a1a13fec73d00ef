package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/northstarrec/outdial/internal/agent/handler"
	"github.com/northstarrec/outdial/pkg/agent"
	"github.com/northstarrec/outdial/pkg/outbound"
)

// HTTPDialer starts a call by posting the job payload to the agent API.
// The telephony bridge drives the resulting session turn by turn; the
// worker only needs the call id back.
type HTTPDialer struct {
	baseURL string
	client  *http.Client
}

// NewHTTPDialer builds a dialer against the agent API base URL.
func NewHTTPDialer(baseURL string, timeout time.Duration) *HTTPDialer {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPDialer{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Dial implements Dialer.
func (d *HTTPDialer) Dial(ctx context.Context, job *outbound.OutboundJob) (string, error) {
	p := job.Payload
	body, err := json.Marshal(handler.StartCallRequest{
		PartyProfile: agent.PartyProfile{
			TargetName: p.TargetName,
			Language:   p.Language,
		},
		AccountContext: agent.AccountContext{
			AmountDue:            p.AmountDue,
			CreditorName:         p.CreditorName,
			Reference:            p.Reference,
			ExpectedZip:          p.ExpectedZip,
			ExpectedName:         p.ExpectedName,
			ExpectedDOBMonthDay:  p.ExpectedDOBMonthDay,
			ExpectedLast4Ref:     p.ExpectedLast4Ref,
			ExpectedStreetNumber: p.ExpectedStreetNum,
		},
		PolicyName: job.PolicyName,
		JobID:      job.ID,
		CampaignID: job.CampaignID,
		AccountRef: job.AccountRef,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/api/v1/calls", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("start call: unexpected status %d", resp.StatusCode)
	}

	var cr handler.CallResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&cr); err != nil {
		return "", err
	}
	if cr.CallID == "" {
		return "", fmt.Errorf("start call: empty call id")
	}
	return cr.CallID, nil
}
