package inference

import (
	"context"
	"encoding/json"
	"image"
	"log/slog"
	"net/http"
	"sync"

	"github.com/Brownie44l1/imageclassifier/internal/fetch"
	"github.com/Brownie44l1/imageclassifier/internal/model"
	"github.com/Brownie44l1/imageclassifier/internal/rest"
	"github.com/Brownie44l1/imageclassifier/pkg/api"
)

// Predictor answers /predict. Errors carry the HTTP status to reply with.
type Predictor interface {
	// PredictURL returns the encoded api.Prediction for the image at url.
	PredictURL(ctx context.Context, url string) ([]byte, error)

	// Reload switches to a newly uploaded model. labelsPath may be empty.
	Reload(ctx context.Context, modelPath, labelsPath string) error
}

type ImageClassifier interface {
	Classify(img image.Image) (*model.Result, error)
	ClassifyTensor(input []float32) (*model.Result, error)
	Metadata() model.Metadata
	Close()
}

// Loader opens a model file.
type Loader func(modelPath string, labels model.Labels) (ImageClassifier, error)

func OnnxLoader(modelPath string, labels model.Labels) (ImageClassifier, error) {
	return model.NewClassifier(modelPath, labels)
}

type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

var errNoModel = rest.CodedErrorf(http.StatusServiceUnavailable, "No model loaded, upload one first")

// LocalPredictor classifies in process with the current model.
type LocalPredictor struct {
	mu            sync.RWMutex
	classifier    ImageClassifier
	defaultLabels model.Labels
	load          Loader
	downloader    Downloader
}

var _ Predictor = (*LocalPredictor)(nil)

// NewLocalPredictor takes ownership of classifier, which may be nil until
// the first upload. defaultLabels apply to uploads that come without labels.
func NewLocalPredictor(classifier ImageClassifier, defaultLabels model.Labels, load Loader, downloader Downloader) *LocalPredictor {
	return &LocalPredictor{
		classifier:    classifier,
		defaultLabels: defaultLabels,
		load:          load,
		downloader:    downloader,
	}
}

func (p *LocalPredictor) PredictURL(ctx context.Context, url string) ([]byte, error) {
	data, err := p.downloader.Download(ctx, url)
	if err != nil {
		return nil, rest.CodedErrorf(http.StatusBadRequest, "Error downloading the image: %v", err)
	}

	img, err := fetch.Decode(data)
	if err != nil {
		return nil, rest.CodedErrorf(http.StatusInternalServerError, "An error occurred during prediction: %v", err)
	}

	res, err := p.Classify(img)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(api.Prediction{
		PredictedLabel: res.Label,
		Confidence:     res.Confidence,
		ClassIndex:     res.ClassIndex,
	})
	if err != nil {
		return nil, rest.CodedErrorf(http.StatusInternalServerError, "An error occurred during prediction: %v", err)
	}
	return body, nil
}

func (p *LocalPredictor) Classify(img image.Image) (*model.Result, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.classifier == nil {
		return nil, errNoModel
	}

	res, err := p.classifier.Classify(img)
	if err != nil {
		return nil, rest.CodedErrorf(http.StatusInternalServerError, "An error occurred during prediction: %v", err)
	}
	return res, nil
}

func (p *LocalPredictor) ClassifyTensor(input []float32) (*model.Result, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.classifier == nil {
		return nil, errNoModel
	}

	if expected := p.classifier.Metadata().InputSize(); len(input) != expected {
		return nil, rest.CodedErrorf(http.StatusBadRequest, "Expected %d values, got %d", expected, len(input))
	}

	res, err := p.classifier.ClassifyTensor(input)
	if err != nil {
		return nil, rest.CodedErrorf(http.StatusInternalServerError, "Prediction failed: %v", err)
	}
	return res, nil
}

// Metadata reports the current model, false if none is loaded.
func (p *LocalPredictor) Metadata() (model.Metadata, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.classifier == nil {
		return model.Metadata{}, false
	}
	return p.classifier.Metadata(), true
}

func (p *LocalPredictor) Reload(ctx context.Context, modelPath, labelsPath string) error {
	labels := p.defaultLabels
	if labelsPath != "" {
		var err error
		if labels, err = model.LoadLabelsFile(labelsPath); err != nil {
			return rest.CodedErrorf(http.StatusBadRequest, "Failed to load labels: %v", err)
		}
	}

	next, err := p.load(modelPath, labels)
	if err != nil {
		return rest.CodedErrorf(http.StatusBadRequest, "Failed to load model: %v", err)
	}

	p.mu.Lock()
	prev := p.classifier
	p.classifier = next
	p.mu.Unlock()

	if prev != nil {
		prev.Close()
	}

	slog.Info("switched model", "model", modelPath, "labels", labelsPath)
	return nil
}

func (p *LocalPredictor) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.classifier != nil {
		p.classifier.Close()
		p.classifier = nil
	}
}
