package model

import (
	"fmt"
	"image"
	"log/slog"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	initOnce sync.Once
	initErr  error
)

// InitRuntime loads the onnxruntime shared library once per process. An empty
// libPath uses the library's default search.
func InitRuntime(libPath string) error {
	initOnce.Do(func() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if !ort.IsInitialized() {
			initErr = ort.InitializeEnvironment()
		}
	})
	if initErr != nil {
		return fmt.Errorf("failed to initialize ONNX environment: %w", initErr)
	}
	return nil
}

func ShutdownRuntime() {
	if err := ort.DestroyEnvironment(); err != nil {
		slog.Error("error destroying ONNX environment", "error", err)
	}
}

// Classifier runs an image classification model. The session reuses its
// tensors, so calls are serialised.
type Classifier struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	metadata     Metadata
	labels       Labels
}

func ReadMetadata(modelPath string) (Metadata, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read model inputs and outputs: %w", err)
	}
	if len(inputs) != 1 || len(outputs) < 1 {
		return Metadata{}, fmt.Errorf("expected one input and at least one output, got %d and %d", len(inputs), len(outputs))
	}

	return NewMetadata(inputs[0].Name, inputs[0].Dimensions, outputs[0].Name, outputs[0].Dimensions)
}

// NewClassifier loads the model at modelPath. InitRuntime must have succeeded.
func NewClassifier(modelPath string, labels Labels) (*Classifier, error) {
	metadata, err := ReadMetadata(modelPath)
	if err != nil {
		return nil, err
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{metadata.InputName}, []string{metadata.OutputName},
		[]ort.Value{inputTensor}, []ort.Value{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	slog.Info("model loaded", "path", modelPath, "input", metadata.InputName, "shape", metadata.InputShape,
		"layout", metadata.Layout, "classes", metadata.NumClasses(), "labels", len(labels))

	return &Classifier{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		metadata:     metadata,
		labels:       labels,
	}, nil
}

func (c *Classifier) Metadata() Metadata {
	return c.metadata
}

func (c *Classifier) Classify(img image.Image) (*Result, error) {
	return c.ClassifyTensor(Preprocess(img, c.metadata))
}

func (c *Classifier) ClassifyTensor(input []float32) (*Result, error) {
	if len(input) != c.metadata.InputSize() {
		return nil, fmt.Errorf("expected %d input values, got %d", c.metadata.InputSize(), len(input))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	copy(c.inputTensor.GetData(), input)

	if err := c.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	scores := append([]float32(nil), c.outputTensor.GetData()...)
	return Decide(scores, c.labels)
}

func (c *Classifier) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inputTensor != nil {
		c.inputTensor.Destroy()
	}
	if c.outputTensor != nil {
		c.outputTensor.Destroy()
	}
	if c.session != nil {
		c.session.Destroy()
	}
}

// Decide picks the highest score. Confidence is the raw score, so it is a
// probability only when the model ends in a softmax.
func Decide(scores []float32, labels Labels) (*Result, error) {
	if len(scores) == 0 {
		return nil, fmt.Errorf("model produced no scores")
	}

	maxIdx := 0
	maxVal := scores[0]
	for i, val := range scores {
		if val > maxVal {
			maxVal = val
			maxIdx = i
		}
	}

	preds := make(map[string]float32, len(scores))
	for i, val := range scores {
		preds[labels.Name(i)] = val
	}

	return &Result{
		ClassIndex:  maxIdx,
		Label:       labels.Name(maxIdx),
		Confidence:  maxVal,
		Scores:      scores,
		Predictions: preds,
	}, nil
}
