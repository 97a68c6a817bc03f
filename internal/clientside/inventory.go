package clientside

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/modelgate/modelgate/internal/wire"
)

// modelsResponse is the OpenAI-compatible /v1/models shape that Ollama
// and most local inference daemons also serve.
type modelsResponse struct {
	Data []wire.Model `json:"data"`
}

// inventoryFetcher polls a local inference daemon's model catalog
// through a circuit breaker, mirroring llm-gateway's NewHandler
// breaker settings (internal/proxy/handler.go): a burst of failures
// trips the breaker so a stalled local daemon doesn't get hammered by
// a heartbeat loop running every few seconds.
type inventoryFetcher struct {
	addr   string
	client *http.Client
	cb     *gobreaker.CircuitBreaker
}

func newInventoryFetcher(localServiceAddr string) *inventoryFetcher {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "local-inference-daemon",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
	})
	return &inventoryFetcher{
		addr:   localServiceAddr,
		client: &http.Client{Timeout: 5 * time.Second},
		cb:     cb,
	}
}

// fetch returns the local daemon's advertised models. A breaker-open
// or transport error yields (nil, err); callers should treat that as
// "send the heartbeat with no catalog update" rather than fatal.
func (f *inventoryFetcher) fetch(ctx context.Context) ([]wire.Model, error) {
	result, err := f.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+f.addr+"/v1/models", nil)
		if err != nil {
			return nil, err
		}
		resp, err := f.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("clientside: local daemon returned %d", resp.StatusCode)
		}
		var parsed modelsResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return nil, fmt.Errorf("clientside: decode model list: %w", err)
		}
		return parsed.Data, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]wire.Model), nil
}
