package fetch

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"time"

	"github.com/go-resty/resty/v2"
)

// Fetcher downloads images referenced by URL.
type Fetcher struct {
	http *resty.Client
}

func New(timeout time.Duration) *Fetcher {
	client := resty.New().
		SetHeader("User-Agent", "imageclassifier/1.0")
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &Fetcher{http: client}
}

func (f *Fetcher) Download(ctx context.Context, url string) ([]byte, error) {
	res, err := f.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, err
	}
	if !res.IsSuccess() {
		return nil, fmt.Errorf("%s for url: %s", res.Status(), url)
	}
	return res.Body(), nil
}

// Decode supports JPEG, PNG and GIF.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("cannot identify image file: %w", err)
	}
	return img, nil
}
