package model

import (
	"fmt"

	"github.com/1demilade/cocoa-disease-app/internal/config"
)

// Layout is the memory order the network expects for its image input.
type Layout int

const (
	NHWC Layout = iota
	NCHW
)

func (l Layout) String() string {
	if l == NCHW {
		return "NCHW"
	}
	return "NHWC"
}

// Metadata pins the network's tensor names and shapes to the label order
// of its classifier head.
type Metadata struct {
	InputName   string
	OutputName  string
	InputShape  []int64
	OutputShape []int64
	Labels      []Label
}

// NewMetadata validates cfg and resolves its label names. The label list
// must name every Label exactly once and match the output width.
func NewMetadata(cfg config.ModelConfig) (Metadata, error) {
	if len(cfg.InputShape) != 4 {
		return Metadata{}, fmt.Errorf("input shape must have 4 dims, got %v", cfg.InputShape)
	}
	if len(cfg.OutputShape) == 0 {
		return Metadata{}, fmt.Errorf("output shape must not be empty")
	}
	if cfg.InputShape[0] != 1 {
		return Metadata{}, fmt.Errorf("batch dim must be 1, got %d", cfg.InputShape[0])
	}

	labels := make([]Label, 0, len(cfg.Labels))
	seen := make(map[Label]bool, len(AllLabels))
	for _, name := range cfg.Labels {
		l, err := ParseLabel(name)
		if err != nil {
			return Metadata{}, err
		}
		if seen[l] {
			return Metadata{}, fmt.Errorf("duplicate label %q", name)
		}
		seen[l] = true
		labels = append(labels, l)
	}
	if len(labels) != len(AllLabels) {
		return Metadata{}, fmt.Errorf("expected %d labels, got %d (%v)", len(AllLabels), len(labels), cfg.Labels)
	}

	classes := cfg.OutputShape[len(cfg.OutputShape)-1]
	if classes != int64(len(labels)) {
		return Metadata{}, fmt.Errorf("model outputs %d classes but %d labels are configured", classes, len(labels))
	}

	m := Metadata{
		InputName:   cfg.InputName,
		OutputName:  cfg.OutputName,
		InputShape:  append([]int64(nil), cfg.InputShape...),
		OutputShape: append([]int64(nil), cfg.OutputShape...),
		Labels:      labels,
	}
	if m.Channels() != 3 {
		return Metadata{}, fmt.Errorf("expected 3 input channels, got shape %v", cfg.InputShape)
	}
	return m, nil
}

// Layout is NCHW when dim 1 holds the 3 colour channels, NHWC otherwise.
func (m Metadata) Layout() Layout {
	if m.InputShape[1] == 3 && m.InputShape[3] != 3 {
		return NCHW
	}
	return NHWC
}

func (m Metadata) Height() int {
	if m.Layout() == NCHW {
		return int(m.InputShape[2])
	}
	return int(m.InputShape[1])
}

func (m Metadata) Width() int {
	if m.Layout() == NCHW {
		return int(m.InputShape[3])
	}
	return int(m.InputShape[2])
}

func (m Metadata) Channels() int {
	if m.Layout() == NCHW {
		return int(m.InputShape[1])
	}
	return int(m.InputShape[3])
}

// InputSize is the number of float32 values in one input tensor.
func (m Metadata) InputSize() int {
	n := 1
	for _, d := range m.InputShape {
		n *= int(d)
	}
	return n
}

// Prediction is the arg-max of one probability vector.
type Prediction struct {
	Label         Label
	Confidence    float64 // percent, [0,100]
	Probabilities []float32
}

type TensorRequest struct {
	Tensor []float32 `json:"tensor"`
}

type PredictionResponse struct {
	PredictedClass string `json:"predicted_class"`
	Confidence     string `json:"confidence"`
	Recommendation string `json:"recommendation"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
