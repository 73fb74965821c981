package ui

import (
	"fmt"
	"log/slog"
	"sync"
)

// Page holds the flows wired into a document.
type Page struct {
	Upload  *UploadFlow // nil when the document has no upload button
	Predict *PredictFlow

	inflight sync.WaitGroup
}

// Wait blocks until every request started by a click has been rendered.
// The flows never call it; it exists for callers that need to observe the
// final state, such as the terminal front-end.
func (p *Page) Wait() {
	p.inflight.Wait()
}

// Backend is what the flows need from the gateway client.
type Backend interface {
	Uploader
	Predictor
}

// Bind looks up the page elements and attaches both flows to their buttons.
// A missing upload button only disables the upload flow; a missing predict
// button is an error.
func Bind(doc Document, c Backend) (*Page, error) {
	page := &Page{}

	if uploadBtn, ok := doc.ElementByID(UploadButtonID); ok {
		modelInput, err := lookup(doc, ModelFileID)
		if err != nil {
			return nil, err
		}
		result, err := lookup(doc, UploadResultID)
		if err != nil {
			return nil, err
		}
		labelsInput, _ := doc.ElementByID(LabelsFileID)

		page.Upload = &UploadFlow{
			uploader:    c,
			modelInput:  modelInput,
			labelsInput: labelsInput,
			result:      result,
			inflight:    &page.inflight,
		}
		uploadBtn.OnClick(page.Upload.Activate)
	} else {
		slog.Debug("no upload button on page, upload flow disabled")
	}

	predictBtn, err := lookup(doc, PredictButtonID)
	if err != nil {
		return nil, err
	}
	urlInput, err := lookup(doc, ImageURLID)
	if err != nil {
		return nil, err
	}
	result, err := lookup(doc, ResultID)
	if err != nil {
		return nil, err
	}
	preview, err := lookup(doc, ImagePreviewID)
	if err != nil {
		return nil, err
	}

	page.Predict = &PredictFlow{
		predictor: c,
		urlInput:  urlInput,
		result:    result,
		preview:   preview,
		inflight:  &page.inflight,
	}
	predictBtn.OnClick(page.Predict.Activate)

	return page, nil
}

func lookup(doc Document, id string) (Element, error) {
	el, ok := doc.ElementByID(id)
	if !ok {
		return nil, fmt.Errorf("element %q not found", id)
	}
	return el, nil
}
