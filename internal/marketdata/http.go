package marketdata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/wonny/cryptopredict/internal/contracts"
	"github.com/wonny/cryptopredict/pkg/httputil"
	"github.com/wonny/cryptopredict/pkg/logger"
)

// WindowRequest is the body sent to the market data service
type WindowRequest struct {
	Layer       contracts.LayerID `json:"layer"`
	Assets      []string          `json:"assets,omitempty"`
	Lookback    string            `json:"lookback"`
	Granularity string            `json:"granularity"`
	MinPoints   int               `json:"min_points"`
	AsOf        time.Time         `json:"as_of"`
}

// HTTPProvider fetches windows from a JSON market data service
// ⭐ SSOT: 외부 시세 서비스 호출은 여기서만
type HTTPProvider struct {
	client  *httputil.Client
	baseURL string
	logger  *logger.Logger
}

var _ contracts.MarketDataProvider = (*HTTPProvider)(nil)

// NewHTTPProvider creates a provider for baseURL (e.g. http://marketdata:8000)
func NewHTTPProvider(client *httputil.Client, baseURL string, log *logger.Logger) *HTTPProvider {
	return &HTTPProvider{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  log.Component("marketdata"),
	}
}

// FetchWindow POSTs the requirement to /v1/windows.
// 404/422 mean the service lacks the window; anything else is a data source failure.
func (p *HTTPProvider) FetchWindow(ctx context.Context, layer contracts.LayerID, scope *contracts.Scope, req contracts.Requirement, asOf time.Time) (*contracts.MarketData, error) {
	body := WindowRequest{
		Layer:       layer,
		Lookback:    req.Lookback.String(),
		Granularity: req.Granularity.String(),
		MinPoints:   req.MinPoints,
		AsOf:        asOf.UTC(),
	}
	if layer == contracts.LayerAsset || layer == contracts.LayerTiming {
		body.Assets = append([]string(nil), scope.Assets...)
	}

	var md contracts.MarketData
	err := p.client.PostJSONInto(ctx, p.baseURL+"/v1/windows", body, &md)
	if err != nil {
		var statusErr *httputil.StatusError
		if errors.As(err, &statusErr) &&
			(statusErr.StatusCode == http.StatusNotFound || statusErr.StatusCode == http.StatusUnprocessableEntity) {
			return nil, &contracts.InsufficientDataError{Layer: layer, Required: req, Detail: statusErr.Body}
		}
		return nil, &contracts.DataSourceError{
			Layer:   layer,
			Timeout: errors.Is(err, context.DeadlineExceeded),
			Err:     fmt.Errorf("market data service: %w", err),
		}
	}

	md.Layer = layer
	md.AsOf = asOf.UTC()

	p.logger.WithFields(map[string]interface{}{
		"layer":  string(layer),
		"series": len(md.Series),
	}).Debug("Fetched market window")

	return Cut(&md, layer, scope, req, asOf), nil
}
