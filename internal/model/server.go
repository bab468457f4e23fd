package model

import (
	"context"
	"errors"
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/1demilade/cocoa-disease-app/internal/logger"
)

// ErrClosed is returned by Predict after Close.
var ErrClosed = errors.New("model server closed")

type Options struct {
	// Sessions is the number of independent ONNX sessions. Each one owns
	// its bound tensors, so it serves one request at a time.
	Sessions      int
	SharedLibrary string
}

type session struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

// Server runs the classifier. It is built once at startup and shared by
// every request handler.
type Server struct {
	metadata Metadata
	pool     chan *session
	sessions []*session
	done     chan struct{}
}

func NewServer(modelPath string, metadata Metadata, opts Options) (*Server, error) {
	if opts.Sessions < 1 {
		opts.Sessions = 1
	}
	if opts.SharedLibrary != "" {
		ort.SetSharedLibraryPath(opts.SharedLibrary)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}

	s := &Server{
		metadata: metadata,
		pool:     make(chan *session, opts.Sessions),
		done:     make(chan struct{}),
	}
	for i := 0; i < opts.Sessions; i++ {
		sess, err := newSession(modelPath, metadata)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.sessions = append(s.sessions, sess)
		s.pool <- sess
	}

	logger.Logger.Info("model loaded",
		zap.String("path", modelPath),
		zap.Int("sessions", opts.Sessions),
		zap.Int64s("input_shape", metadata.InputShape),
		zap.Stringer("layout", metadata.Layout()),
		zap.Stringers("labels", metadata.Labels))

	return s, nil
}

func newSession(modelPath string, metadata Metadata) (*session, error) {
	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	sess, err := ort.NewAdvancedSession(modelPath,
		[]string{metadata.InputName}, []string{metadata.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &session{
		session:      sess,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

func (s *Server) Metadata() Metadata {
	return s.metadata
}

// Predict runs one forward pass and returns a copy of the probability
// vector. It waits for a free session until ctx is done.
func (s *Server) Predict(ctx context.Context, inputData []float32) ([]float32, error) {
	if len(inputData) != s.metadata.InputSize() {
		return nil, fmt.Errorf("expected %d input values, got %d", s.metadata.InputSize(), len(inputData))
	}

	var sess *session
	select {
	case sess = <-s.pool:
	case <-s.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { s.pool <- sess }()

	copy(sess.inputTensor.GetData(), inputData)

	if err := sess.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	out := sess.outputTensor.GetData()
	probs := make([]float32, len(out))
	copy(probs, out)
	return probs, nil
}

// Close releases every session. It must not race with in-flight Predict calls.
func (s *Server) Close() {
	select {
	case <-s.done:
		return
	default:
		close(s.done)
	}
	for _, sess := range s.sessions {
		if sess.inputTensor != nil {
			sess.inputTensor.Destroy()
		}
		if sess.outputTensor != nil {
			sess.outputTensor.Destroy()
		}
		if sess.session != nil {
			sess.session.Destroy()
		}
	}
	s.sessions = nil
	ort.DestroyEnvironment()
}
