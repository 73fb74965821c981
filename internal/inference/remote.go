package inference

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Brownie44l1/imageclassifier/internal/rest"
	"github.com/Brownie44l1/imageclassifier/pkg/api"
	"github.com/go-resty/resty/v2"
)

// RemotePredictor forwards predictions to another inference service that
// speaks the same /predict contract.
type RemotePredictor struct {
	http *resty.Client
}

var _ Predictor = (*RemotePredictor)(nil)

func NewRemotePredictor(baseURL string) *RemotePredictor {
	return &RemotePredictor{http: resty.New().SetBaseURL(baseURL)}
}

func (p *RemotePredictor) PredictURL(ctx context.Context, url string) ([]byte, error) {
	res, err := p.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(api.PredictRequest{ImageURL: url}).
		Post("/predict")
	if err != nil {
		return nil, rest.CodedErrorf(http.StatusInternalServerError, "Failed to call inference backend: %v", err)
	}

	if res.StatusCode() != http.StatusOK {
		return nil, rest.CodedErrorf(res.StatusCode(), "Inference backend returned an error: %s", res.String())
	}

	return res.Body(), nil
}

// Reload is a no-op: the backend serves its own model. The upload is still
// stored by the caller.
func (p *RemotePredictor) Reload(ctx context.Context, modelPath, labelsPath string) error {
	slog.Info("model stored, remote backend keeps its own model", "model", modelPath, "labels", labelsPath)
	return nil
}
