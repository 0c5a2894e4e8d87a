package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/wonny/cryptopredict/internal/contracts"
)

// Snapshot is a recorded set of layer windows, replayed by FileProvider
type Snapshot struct {
	Windows []contracts.MarketData `json:"windows"`
}

// FileProvider replays a JSON snapshot (backtests, audits, offline runs)
type FileProvider struct {
	path string

	once     sync.Once
	snapshot *Snapshot
	loadErr  error
}

var _ contracts.MarketDataProvider = (*FileProvider)(nil)

// NewFileProvider creates a provider reading path lazily on first use
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

// NewSnapshotProvider serves an in-memory snapshot
func NewSnapshotProvider(s *Snapshot) *FileProvider {
	p := &FileProvider{snapshot: s}
	p.once.Do(func() {})
	return p
}

func (p *FileProvider) load() (*Snapshot, error) {
	p.once.Do(func() {
		data, err := os.ReadFile(p.path)
		if err != nil {
			p.loadErr = fmt.Errorf("read snapshot: %w", err)
			return
		}
		var s Snapshot
		if err := json.Unmarshal(data, &s); err != nil {
			p.loadErr = fmt.Errorf("parse snapshot %s: %w", p.path, err)
			return
		}
		p.snapshot = &s
	})
	return p.snapshot, p.loadErr
}

// FetchWindow returns the recorded window of a layer, cut to [asOf-lookback, asOf]
// and restricted to the scope for asset and timing layers.
func (p *FileProvider) FetchWindow(ctx context.Context, layer contracts.LayerID, scope *contracts.Scope, req contracts.Requirement, asOf time.Time) (*contracts.MarketData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snapshot, err := p.load()
	if err != nil {
		return nil, &contracts.DataSourceError{Layer: layer, Err: err}
	}

	for i := range snapshot.Windows {
		if snapshot.Windows[i].Layer == layer {
			return Cut(&snapshot.Windows[i], layer, scope, req, asOf), nil
		}
	}

	return nil, &contracts.InsufficientDataError{Layer: layer, Required: req, Detail: "layer missing from snapshot"}
}

// Cut copies the part of md a layer may see: points inside [asOf-lookback, asOf],
// and only in-scope series for the asset and timing layers.
func Cut(md *contracts.MarketData, layer contracts.LayerID, scope *contracts.Scope, req contracts.Requirement, asOf time.Time) *contracts.MarketData {
	from := asOf.Add(-req.Lookback)
	out := &contracts.MarketData{
		Layer:       layer,
		AsOf:        asOf.UTC(),
		Granularity: md.Granularity,
		Series:      make([]contracts.Series, 0, len(md.Series)),
	}

	scoped := layer == contracts.LayerAsset || layer == contracts.LayerTiming
	for _, s := range md.Series {
		if scoped && (scope == nil || !scope.Contains(s.Key)) {
			continue
		}
		points := make([]contracts.Point, 0, len(s.Points))
		for _, pt := range s.Points {
			if !pt.Time.Before(from) && !pt.Time.After(asOf) {
				points = append(points, pt)
			}
		}
		out.Series = append(out.Series, contracts.Series{Key: s.Key, Group: s.Group, Points: points})
	}
	return out
}
