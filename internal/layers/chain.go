package layers

import (
	"github.com/wonny/cryptopredict/internal/contracts"
	"github.com/wonny/cryptopredict/internal/policy"
	"github.com/wonny/cryptopredict/pkg/logger"
)

// DefaultModels returns the built-in heuristic scorer of every layer
func DefaultModels(cfg *policy.Config) map[contracts.LayerID]contracts.ModelScorer {
	return map[contracts.LayerID]contracts.ModelScorer{
		contracts.LayerMacro:  NewMacroModel(cfg.Macro),
		contracts.LayerSector: NewSectorModel(cfg.Sector),
		contracts.LayerAsset:  NewAssetModel(cfg.Asset),
		contracts.LayerTiming: NewTimingModel(cfg.Timing),
	}
}

// NewChain builds the four evaluators in layer order.
// overrides replaces the built-in scorer of a layer (e.g. a remote model service).
func NewChain(cfg *policy.Config, log *logger.Logger, overrides map[contracts.LayerID]contracts.ModelScorer) []contracts.LayerEvaluator {
	models := DefaultModels(cfg)
	for layer, scorer := range overrides {
		if scorer != nil {
			models[layer] = scorer
		}
	}

	return []contracts.LayerEvaluator{
		NewMacroEvaluator(cfg.Macro, models[contracts.LayerMacro], log),
		NewSectorEvaluator(cfg.Sector, models[contracts.LayerSector], log),
		NewAssetEvaluator(cfg.Asset, models[contracts.LayerAsset], log),
		NewTimingEvaluator(cfg.Timing, models[contracts.LayerTiming], log),
	}
}
