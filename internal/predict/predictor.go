package predict

import (
	"context"
	"sync"
	"time"
)

// Prediction is a demand estimate with the features it was computed from.
type Prediction struct {
	Demand   float64   `json:"predicted_demand"`
	At       time.Time `json:"at"`
	Features Features  `json:"features"`
}

// Predictor loads the model file on first use and serves predictions.
type Predictor struct {
	file    string
	builder *FeatureBuilder

	mu    sync.Mutex
	model *Model
}

// NewPredictor creates a predictor over the model stored at file.
func NewPredictor(file string, builder *FeatureBuilder) *Predictor {
	return &Predictor{file: file, builder: builder}
}

// NewPredictorWithModel serves an in-memory model.
func NewPredictorWithModel(m *Model, builder *FeatureBuilder) *Predictor {
	return &Predictor{model: m, builder: builder}
}

func (p *Predictor) loaded() (*Model, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.model != nil {
		return p.model, nil
	}
	if p.file == "" {
		return nil, ErrModelNotTrained
	}
	m, err := LoadModel(p.file)
	if err != nil {
		return nil, err
	}
	p.model = m
	return m, nil
}

// Predict estimates demand at lat/lon for the hour containing at.
// Returns ErrModelNotTrained when no model has been saved yet.
func (p *Predictor) Predict(ctx context.Context, lat, lon float64, at time.Time) (*Prediction, error) {
	m, err := p.loaded()
	if err != nil {
		return nil, err
	}

	f := p.builder.Build(ctx, lat, lon, at)
	return &Prediction{
		Demand:   m.Predict(f),
		At:       at,
		Features: f,
	}, nil
}
