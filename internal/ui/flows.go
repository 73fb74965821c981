package ui

import (
	"context"
	"fmt"
	"html"
	"sync"

	"github.com/Brownie44l1/imageclassifier/internal/client"
	"github.com/Brownie44l1/imageclassifier/pkg/api"
)

const (
	MsgChooseModel = "Please choose an ONNX model file."
	MsgUploading   = "Uploading..."
	MsgPredicting  = "Predicting..."
)

type Uploader interface {
	Upload(ctx context.Context, req client.UploadRequest) (*api.UploadResponse, error)
}

type Predictor interface {
	Predict(ctx context.Context, imageURL string) (*api.PredictResponse, error)
}

// UploadFlow sends the selected model (and labels, if any) to /upload and
// reports the outcome in the result element. Each activation is independent:
// overlapping activations race and the last response to arrive is what stays
// on screen.
type UploadFlow struct {
	uploader    Uploader
	modelInput  Element
	labelsInput Element // may be nil
	result      Element
	inflight    *sync.WaitGroup
}

func (f *UploadFlow) Activate() {
	models := f.modelInput.Files()
	if len(models) == 0 {
		f.result.SetText(MsgChooseModel)
		return
	}

	req := client.UploadRequest{Model: models[0]}
	if f.labelsInput != nil {
		if labels := f.labelsInput.Files(); len(labels) > 0 {
			req.Labels = labels[0]
		}
	}

	f.result.SetText(MsgUploading)

	f.inflight.Add(1)
	go func() {
		defer f.inflight.Done()
		res, err := f.uploader.Upload(context.Background(), req)
		f.result.SetText(uploadMessage(res, err))
	}()
}

func uploadMessage(res *api.UploadResponse, err error) string {
	switch {
	case err == nil:
		return "Upload successful: " + res.Model
	case client.IsStatusError(err):
		return "Upload failed: " + err.Error()
	default:
		return "Error: " + err.Error()
	}
}

// PredictFlow shows the image at the entered URL right away, then asks
// /predict for its label.
type PredictFlow struct {
	predictor Predictor
	urlInput  Element
	result    Element
	preview   Element
	inflight  *sync.WaitGroup
}

func (f *PredictFlow) Activate() {
	imageURL := f.urlInput.Value()

	f.preview.SetSrc(imageURL)
	f.result.SetText(MsgPredicting)

	f.inflight.Add(1)
	go func() {
		defer f.inflight.Done()
		res, err := f.predictor.Predict(context.Background(), imageURL)
		f.result.SetHTML(predictMarkup(res, err))
		if err == nil {
			f.preview.SetSrc(imageURL)
		}
	}()
}

func predictMarkup(res *api.PredictResponse, err error) string {
	switch {
	case err == nil:
		return fmt.Sprintf("Predicted: %s <br> Confidence: %s",
			html.EscapeString(res.PredictedLabel), html.EscapeString(res.Confidence.String()))
	case client.IsStatusError(err):
		return "Error: " + html.EscapeString(err.Error())
	default:
		return "Fetch error: " + html.EscapeString(err.Error())
	}
}
