package ui

import (
	"github.com/Brownie44l1/imageclassifier/internal/client"
)

// Element IDs the page is expected to provide.
const (
	UploadButtonID  = "uploadBtn"
	ModelFileID     = "modelFile"
	LabelsFileID    = "labelsFile"
	UploadResultID  = "uploadResult"
	PredictButtonID = "predictBtn"
	ImageURLID      = "imageUrl"
	ResultID        = "result"
	ImagePreviewID  = "imagePreview"
)

// AllElementIDs lists every element the flows read or write.
var AllElementIDs = []string{
	UploadButtonID, ModelFileID, LabelsFileID, UploadResultID,
	PredictButtonID, ImageURLID, ResultID, ImagePreviewID,
}

// Element is the subset of a DOM node the flows touch.
type Element interface {
	Value() string
	Files() []client.File
	SetText(text string)
	SetHTML(markup string)
	SetSrc(src string)
	OnClick(handler func())
}

type Document interface {
	ElementByID(id string) (Element, bool)
}
