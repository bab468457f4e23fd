package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/nfnt/resize"
	"go.uber.org/zap"

	"github.com/1demilade/cocoa-disease-app/internal/imaging"
	"github.com/1demilade/cocoa-disease-app/internal/logger"
	"github.com/1demilade/cocoa-disease-app/internal/model"
)

// Classifier is the inference engine: one normalised input tensor in, one
// probability vector out. *model.Server satisfies it.
type Classifier interface {
	Metadata() model.Metadata
	Predict(ctx context.Context, input []float32) ([]float32, error)
}

// UploadedImage is the raw upload for a single request.
type UploadedImage struct {
	Data        []byte
	ContentType string
	Filename    string
}

type PredictService interface {
	Predict(ctx context.Context, img *UploadedImage) (*model.Prediction, error)
	PredictTensor(ctx context.Context, tensor []float32) (*model.Prediction, error)
}

type predictService struct {
	classifier Classifier
	metadata   model.Metadata
	opts       imaging.Options
}

func NewPredictService(classifier Classifier, interpolation resize.InterpolationFunction) PredictService {
	md := classifier.Metadata()
	return &predictService{
		classifier: classifier,
		metadata:   md,
		opts: imaging.Options{
			Width:         md.Width(),
			Height:        md.Height(),
			ChannelsFirst: md.Layout() == model.NCHW,
			Interpolation: interpolation,
		},
	}
}

func (s *predictService) Predict(ctx context.Context, img *UploadedImage) (*model.Prediction, error) {
	if img == nil {
		return nil, ErrMissingInput
	}

	start := time.Now()
	tensor, err := imaging.Preprocess(img.Data, s.opts)
	if err != nil {
		var de *imaging.DecodeError
		if errors.As(err, &de) {
			return nil, &Error{Kind: KindDecode, Err: err}
		}
		return nil, &Error{Kind: KindInternal, Err: err}
	}

	p, err := s.run(ctx, tensor.Data)
	if err != nil {
		return nil, err
	}

	logger.Logger.Debug("image classified",
		zap.String("filename", img.Filename),
		zap.Int("bytes", len(img.Data)),
		zap.Stringer("label", p.Label),
		zap.Float64("confidence", p.Confidence),
		zap.Duration("duration", time.Since(start)))
	return p, nil
}

func (s *predictService) PredictTensor(ctx context.Context, tensor []float32) (*model.Prediction, error) {
	if want := s.metadata.InputSize(); len(tensor) != want {
		return nil, newError(KindInvalidInput, "expected %d values, got %d", want, len(tensor))
	}
	return s.run(ctx, tensor)
}

func (s *predictService) run(ctx context.Context, input []float32) (*model.Prediction, error) {
	probs, err := s.classifier.Predict(ctx, input)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, model.ErrClosed) {
			return nil, &Error{Kind: KindUnavailable, Err: err}
		}
		return nil, &Error{Kind: KindInference, Err: err}
	}

	p, err := Interpret(probs, s.metadata.Labels)
	if err != nil {
		return nil, &Error{Kind: KindInference, Err: err}
	}
	return p, nil
}

// Interpret takes the arg-max of probs, first index winning ties, and maps
// it through labels, which must be in the model's output order.
func Interpret(probs []float32, labels []model.Label) (*model.Prediction, error) {
	if len(probs) == 0 {
		return nil, errors.New("empty probability vector")
	}
	if len(probs) != len(labels) {
		return nil, fmt.Errorf("model returned %d scores for %d labels", len(probs), len(labels))
	}

	maxIdx := 0
	for i, v := range probs {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, fmt.Errorf("non-finite score %v at index %d", v, i)
		}
		if v > probs[maxIdx] {
			maxIdx = i
		}
	}

	return &model.Prediction{
		Label:         labels[maxIdx],
		Confidence:    float64(probs[maxIdx]) * 100,
		Probabilities: probs,
	}, nil
}

func FormatConfidence(c float64) string {
	return fmt.Sprintf("%.2f%%", c)
}

// Response renders p in the wire shape the frontend reads.
func Response(p *model.Prediction) model.PredictionResponse {
	return model.PredictionResponse{
		PredictedClass: strings.ToUpper(p.Label.String()),
		Confidence:     FormatConfidence(p.Confidence),
		Recommendation: p.Label.Recommendation(),
	}
}
