// Package dupmodel turns a feature vector into a duplicate probability.
// The trained artifact is loaded once at startup and shared read-only; when
// it is missing or unreadable the service degrades to a documented linear
// heuristic instead of failing.
package dupmodel

import (
	"encoding/json"
	"math"
	"os"

	"github.com/sievehq/sieve/internal/feature"
	"go.uber.org/zap"
)

// FeatureOrder is the canonical, versioned ordering of the 13 feature
// names. Model artifacts address coefficients by name; names the artifact
// does not carry contribute 0.
var FeatureOrder = []string{
	"abs_total_diff_pct",
	"days_diff",
	"same_po",
	"same_currency",
	"same_tax_total",
	"bank_change_flag",
	"payee_name_change_flag",
	"invnum_edit",
	"line_coverage_pct",
	"unmatched_amount_frac",
	"count_new_items",
	"median_unit_price_diff",
	"text_cosine",
}

// heuristicWeights approximate a trained logistic regression and back the
// fallback scorer. Signs follow the feature semantics: distance-like
// features push the probability down, coverage and text overlap push it up.
var heuristicWeights = map[string]float64{
	"abs_total_diff_pct":     -1.2,
	"days_diff":              -0.03,
	"same_po":                0.8,
	"same_currency":          0.3,
	"same_tax_total":         0.2,
	"bank_change_flag":       -0.4,
	"payee_name_change_flag": -0.1,
	"invnum_edit":            -1.5,
	"line_coverage_pct":      1.6,
	"unmatched_amount_frac":  -1.8,
	"count_new_items":        -0.4,
	"median_unit_price_diff": -0.05,
	"text_cosine":            2.2,
}

const heuristicBias = -0.3

// Scorer predicts a duplicate probability from a feature vector.
type Scorer interface {
	PredictDupProb(features feature.Vector) float64
	ModelID() string
	ModelVersion() string
}

// Artifact is the JSON model file produced by the training pipeline.
type Artifact struct {
	ModelID string             `json:"model_id"`
	Version string             `json:"version"`
	Bias    float64            `json:"bias"`
	Weights map[string]float64 `json:"weights"`
}

type logistic struct {
	modelID string
	version string
	bias    float64
	weights map[string]float64
}

func (l *logistic) PredictDupProb(features feature.Vector) float64 {
	logit := l.bias
	for _, name := range FeatureOrder {
		logit += l.weights[name] * features[name]
	}
	prob := 1 / (1 + math.Exp(-logit))
	return math.Max(0, math.Min(1, prob))
}

func (l *logistic) ModelID() string      { return l.modelID }
func (l *logistic) ModelVersion() string { return l.version }

// Load reads the model artifact at path, or returns the heuristic fallback
// when the artifact is absent or malformed.
func Load(path string, log *zap.Logger) Scorer {
	raw, err := os.ReadFile(path)
	if err != nil {
		log.Warn("model artifact unavailable, using heuristic fallback",
			zap.String("path", path), zap.Error(err))
		return Heuristic()
	}

	var artifact Artifact
	if err := json.Unmarshal(raw, &artifact); err != nil || len(artifact.Weights) == 0 {
		log.Warn("model artifact unreadable, using heuristic fallback",
			zap.String("path", path), zap.Error(err))
		return Heuristic()
	}

	modelID := artifact.ModelID
	if modelID == "" {
		modelID = "dup_model"
	}
	version := artifact.Version
	if version == "" {
		version = "v1"
	}

	log.Info("duplicate model loaded",
		zap.String("model_id", modelID), zap.String("version", version))
	return &logistic{
		modelID: modelID,
		version: version,
		bias:    artifact.Bias,
		weights: artifact.Weights,
	}
}

// Heuristic returns the deterministic fallback scorer.
func Heuristic() Scorer {
	return &logistic{
		modelID: "dup_model",
		version: "heuristic",
		bias:    heuristicBias,
		weights: heuristicWeights,
	}
}
