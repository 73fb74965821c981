package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Brownie44l1/imageclassifier/pkg/api"
	"github.com/go-resty/resty/v2"
)

var ErrNoModelFile = errors.New("no model file selected")

// StatusError is a non-2xx reply. Its message is the response body as sent.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return e.Body
}

func IsStatusError(err error) bool {
	var serr *StatusError
	return errors.As(err, &serr)
}

type UploadRequest struct {
	Model  File
	Labels File // optional
}

// Client talks to the classifier gateway. It never retries and sets no
// timeout of its own; callers bound requests through the context.
type Client struct {
	http *resty.Client
}

func New(baseURL string) *Client {
	return &Client{
		http: resty.New().SetBaseURL(baseURL).SetRetryCount(0),
	}
}

// NewWithHTTPClient is used where the transport must be swapped, e.g. the
// wasm build or tests.
func NewWithHTTPClient(baseURL string, hc *http.Client) *Client {
	return &Client{
		http: resty.NewWithClient(hc).SetBaseURL(baseURL).SetRetryCount(0),
	}
}

func (c *Client) Upload(ctx context.Context, req UploadRequest) (*api.UploadResponse, error) {
	if req.Model == nil {
		return nil, ErrNoModelFile
	}

	model, err := req.Model.Open()
	if err != nil {
		return nil, fmt.Errorf("error opening model file %s: %w", req.Model.Name(), err)
	}
	defer model.Close()

	r := c.http.R().
		SetContext(ctx).
		SetFileReader("model", req.Model.Name(), model)

	if req.Labels != nil {
		labels, err := req.Labels.Open()
		if err != nil {
			return nil, fmt.Errorf("error opening labels file %s: %w", req.Labels.Name(), err)
		}
		defer labels.Close()
		r.SetFileReader("labels", req.Labels.Name(), labels)
	}

	res, err := r.Post("/upload")
	if err != nil {
		return nil, err
	}

	if !res.IsSuccess() {
		return nil, &StatusError{StatusCode: res.StatusCode(), Body: string(res.Body())}
	}

	var out api.UploadResponse
	if err := json.Unmarshal(res.Body(), &out); err != nil {
		return nil, fmt.Errorf("error parsing upload response: %w", err)
	}
	return &out, nil
}

func (c *Client) Predict(ctx context.Context, imageURL string) (*api.PredictResponse, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(api.PredictRequest{ImageURL: imageURL}).
		Post("/predict")
	if err != nil {
		return nil, err
	}

	if !res.IsSuccess() {
		return nil, &StatusError{StatusCode: res.StatusCode(), Body: string(res.Body())}
	}

	var out api.PredictResponse
	if err := json.Unmarshal(res.Body(), &out); err != nil {
		return nil, fmt.Errorf("error parsing prediction response: %w", err)
	}
	return &out, nil
}
