package api

import (
	"encoding/json"
)

type PredictRequest struct {
	ImageURL string `json:"image_url"`
}

// Prediction is what the server writes for /predict and /train.
type Prediction struct {
	PredictedLabel string  `json:"predicted_label"`
	Confidence     float32 `json:"confidence"`
	ClassIndex     int     `json:"class_index"`
}

// PredictResponse is the client's view of a prediction. Confidence keeps the
// server's literal so it can be displayed without reformatting.
type PredictResponse struct {
	PredictedLabel string   `json:"predicted_label"`
	Confidence     Verbatim `json:"confidence"`
}

type UploadResponse struct {
	Status string `json:"status"`
	Model  string `json:"model"`
	Labels string `json:"labels"`
}

type TensorRequest struct {
	Image []float32 `json:"image"`
}

type TensorResponse struct {
	Class       string             `json:"class"`
	Confidence  float32            `json:"confidence"`
	Predictions map[string]float32 `json:"predictions"`
}

type GPUUtilResponse struct {
	Utilization string `json:"utilization"`
}

// Verbatim holds a JSON scalar as display text: strings are unquoted, any
// other literal (numbers, booleans, null) is kept exactly as sent.
type Verbatim string

func (v *Verbatim) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Verbatim(s)
		return nil
	}
	*v = Verbatim(data)
	return nil
}

func (v Verbatim) String() string {
	return string(v)
}
