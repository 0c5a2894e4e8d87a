package contracts

// Feature is one named model input
type Feature struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Candidate is one item to be ranked (sector or asset) with its features
type Candidate struct {
	Key      string    `json:"key"`
	Group    string    `json:"group,omitempty"`
	Features []Feature `json:"features"`
}

// FeatureValue looks up a feature by name
func FeatureValue(features []Feature, name string) (float64, bool) {
	for _, f := range features {
		if f.Name == name {
			return f.Value, true
		}
	}
	return 0, false
}

// ScoreRequest is the model input of a layer
// ⭐ SSOT: Layer Evaluator → Model Scoring Backend
type ScoreRequest struct {
	Layer      LayerID     `json:"layer"`
	Features   []Feature   `json:"features"`
	Candidates []Candidate `json:"candidates,omitempty"`
	Upstream   *Label      `json:"upstream,omitempty"`
}

// Score is the model output: (label, confidence, factors)
type Score struct {
	Label      Label    `json:"label"`
	Confidence float64  `json:"confidence"`
	Factors    []Factor `json:"factors"`
}
