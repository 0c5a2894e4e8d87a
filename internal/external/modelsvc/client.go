package modelsvc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/time/rate"

	"github.com/wonny/cryptopredict/internal/contracts"
	"github.com/wonny/cryptopredict/pkg/httputil"
	"github.com/wonny/cryptopredict/pkg/logger"
)

// Client talks to a remote model scoring service
// ⭐ SSOT: 외부 모델 서비스 호출은 이 클라이언트에서만
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
}

// NewClient creates a model service client.
// requestsPerSecond <= 0 disables client-side throttling.
func NewClient(httpClient *httputil.Client, baseURL string, requestsPerSecond float64, burst int, log *logger.Logger) *Client {
	if requestsPerSecond > 0 {
		if burst < 1 {
			burst = 1
		}
		httpClient = httpClient.WithLimiter(rate.NewLimiter(rate.Limit(requestsPerSecond), burst))
	}
	return &Client{
		httpClient: httpClient,
		logger:     log.Component("modelsvc"),
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// Scorer returns the ModelScorer of one layer
func (c *Client) Scorer(layer contracts.LayerID) contracts.ModelScorer {
	return &Scorer{client: c, layer: layer}
}

// Scorers returns a scorer for every layer, ready for layers.NewChain overrides
func (c *Client) Scorers() map[contracts.LayerID]contracts.ModelScorer {
	out := make(map[contracts.LayerID]contracts.ModelScorer, 4)
	for _, layer := range contracts.AllLayers() {
		out[layer] = c.Scorer(layer)
	}
	return out
}

// Scorer is a remote ModelScorer bound to a layer
type Scorer struct {
	client *Client
	layer  contracts.LayerID
}

var _ contracts.ModelScorer = (*Scorer)(nil)

// Score POSTs the request to /v1/score/{layer}.
// Every failure except caller cancellation is reported as ErrModelUnavailable.
func (s *Scorer) Score(ctx context.Context, req *contracts.ScoreRequest) (*contracts.Score, error) {
	url := fmt.Sprintf("%s/v1/score/%s", s.client.baseURL, s.layer)

	var out contracts.Score
	if err := s.client.httpClient.PostJSONInto(ctx, url, req, &out); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		log := s.client.logger.WithError(err).WithField("layer", string(s.layer))
		var statusErr *httputil.StatusError
		if errors.As(err, &statusErr) {
			log = log.WithField("status_code", statusErr.StatusCode)
		}
		log.Warn("Model service call failed")

		return nil, fmt.Errorf("%w: %s: %v", contracts.ErrModelUnavailable, s.layer, err)
	}

	if out.Factors == nil {
		out.Factors = []contracts.Factor{}
	}
	return &out, nil
}
