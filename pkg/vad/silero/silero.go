// Package silero implements the vad.Gate interface on top of the Silero VAD
// v5 ONNX model, executed through ONNX Runtime. The model file must be
// available on disk; the ONNX Runtime shared library is resolved from the
// default loader path unless overridden with WithLibraryPath.
package silero

import (
	"errors"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/christopherlouet/stt-clipboard/pkg/vad"
)

const (
	// WindowSize is the number of float32 samples per inference call.
	// Silero VAD v5 at 16 kHz requires exactly 512 samples (32 ms).
	WindowSize = 512

	// SampleRate is the only input rate the model accepts.
	SampleRate = 16000

	// stateSize is the hidden state dimension per RNN layer. Silero VAD v5
	// uses a combined state tensor of shape [2, 1, 128].
	stateSize = 128
)

// ErrFrameSize is returned by Classify when the frame is not exactly
// WindowSize samples long.
var ErrFrameSize = errors.New("silero: frame must be exactly 512 samples")

// ortInitOnce ensures the ONNX Runtime environment is initialised exactly
// once per process. The error is kept at package scope so later New calls
// surface the original failure instead of proceeding uninitialised.
var (
	ortInitOnce sync.Once
	ortInitErr  error
)

// Compile-time assertion that Gate satisfies vad.Gate.
var _ vad.Gate = (*Gate)(nil)

// Gate runs Silero VAD v5 inference via ONNX Runtime. Input, state, and
// output tensors are allocated once and reused between calls; the RNN hidden
// state is carried from frame to frame until Reset.
type Gate struct {
	session *ort.AdvancedSession

	inputTensor *ort.Tensor[float32] // [1, 512]
	stateTensor *ort.Tensor[float32] // [2, 1, 128]
	srTensor    *ort.Tensor[int64]   // scalar sample rate

	outputTensor *ort.Tensor[float32] // [1, 1] speech probability
	stateNTensor *ort.Tensor[float32] // [2, 1, 128] next hidden state

	closed bool
}

// Option is a functional option for configuring the gate.
type Option func(*options)

type options struct {
	libraryPath string
}

// WithLibraryPath overrides the path to the ONNX Runtime shared library
// (libonnxruntime.so). When empty, the platform default loader path is used.
func WithLibraryPath(path string) Option {
	return func(o *options) { o.libraryPath = path }
}

// New creates a Gate by initialising ONNX Runtime and loading the Silero VAD
// model from modelPath. The caller must call Close when the gate is no
// longer needed.
func New(modelPath string, opts ...Option) (*Gate, error) {
	if modelPath == "" {
		return nil, errors.New("silero: modelPath must not be empty")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	ortInitOnce.Do(func() {
		if o.libraryPath != "" {
			ort.SetSharedLibraryPath(o.libraryPath)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return nil, fmt.Errorf("silero: init onnxruntime: %w", ortInitErr)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, WindowSize))
	if err != nil {
		return nil, fmt.Errorf("silero: create input tensor: %w", err)
	}
	stateTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(2, 1, stateSize))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("silero: create state tensor: %w", err)
	}
	srTensor, err := ort.NewTensor(ort.NewShape(1), []int64{SampleRate})
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		return nil, fmt.Errorf("silero: create sr tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		srTensor.Destroy()
		return nil, fmt.Errorf("silero: create output tensor: %w", err)
	}
	stateNTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(2, 1, stateSize))
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		srTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("silero: create stateN tensor: %w", err)
	}

	// Zero the state tensors explicitly; onnxruntime_go does not guarantee
	// zeroed memory for empty tensors.
	clearFloat32(stateTensor.GetData())
	clearFloat32(stateNTensor.GetData())

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"input", "state", "sr"},
		[]string{"output", "stateN"},
		[]ort.Value{inputTensor, stateTensor, srTensor},
		[]ort.Value{outputTensor, stateNTensor},
		nil, // default session options
	)
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		srTensor.Destroy()
		outputTensor.Destroy()
		stateNTensor.Destroy()
		return nil, fmt.Errorf("silero: load model %q: %w", modelPath, err)
	}

	return &Gate{
		session:      session,
		inputTensor:  inputTensor,
		stateTensor:  stateTensor,
		srTensor:     srTensor,
		outputTensor: outputTensor,
		stateNTensor: stateNTensor,
	}, nil
}

// Classify runs one inference over a 512-sample frame and returns the speech
// probability. The RNN hidden state produced by the call is fed back into
// the next call, so frames must be supplied in stream order.
func (g *Gate) Classify(frame []float32) (float64, error) {
	if g.closed {
		return 0, errors.New("silero: gate is closed")
	}
	if len(frame) != WindowSize {
		return 0, fmt.Errorf("%w (got %d)", ErrFrameSize, len(frame))
	}

	copy(g.inputTensor.GetData(), frame)

	if err := g.session.Run(); err != nil {
		return 0, fmt.Errorf("silero: inference: %w", err)
	}

	// Carry the hidden state forward for the next frame.
	copy(g.stateTensor.GetData(), g.stateNTensor.GetData())

	return float64(g.outputTensor.GetData()[0]), nil
}

// Reset clears the RNN hidden state so the next frame starts a fresh stream.
func (g *Gate) Reset() error {
	if g.closed {
		return errors.New("silero: gate is closed")
	}
	clearFloat32(g.stateTensor.GetData())
	clearFloat32(g.stateNTensor.GetData())
	return nil
}

// Close releases all ONNX Runtime resources. Safe to call more than once.
func (g *Gate) Close() error {
	if g.closed {
		return nil
	}
	g.closed = true

	if g.session != nil {
		g.session.Destroy()
		g.session = nil
	}
	for _, t := range []*ort.Tensor[float32]{
		g.inputTensor, g.stateTensor, g.outputTensor, g.stateNTensor,
	} {
		if t != nil {
			t.Destroy()
		}
	}
	if g.srTensor != nil {
		g.srTensor.Destroy()
		g.srTensor = nil
	}
	g.inputTensor, g.stateTensor, g.outputTensor, g.stateNTensor = nil, nil, nil, nil
	return nil
}

func clearFloat32(data []float32) {
	for i := range data {
		data[i] = 0
	}
}
