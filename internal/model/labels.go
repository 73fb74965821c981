package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
)

const DefaultLabelsURL = "https://huggingface.co/datasets/huggingface/label-files/raw/main/imagenet-1k-id2label.json"

// Labels maps a class index to its name.
type Labels map[int]string

// FallbackLabels is used when the ImageNet label file cannot be downloaded.
var FallbackLabels = Labels{
	0: "tench, Tinca tinca",
	1: "goldfish, Carassius auratus",
	2: "great white shark, white shark, man-eater, man-eating shark, Carcharodon carcharias",
}

// Name returns the label for idx, or idx in decimal if there is none.
func (l Labels) Name(idx int) string {
	if name, ok := l[idx]; ok {
		return name
	}
	return strconv.Itoa(idx)
}

// ParseLabels accepts an id2label JSON object, a JSON array of names, or
// plain text with one name per line.
func ParseLabels(data []byte) (Labels, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("labels file is empty")
	}

	switch trimmed[0] {
	case '{':
		var raw map[string]string
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, fmt.Errorf("invalid id2label JSON: %w", err)
		}
		labels := make(Labels, len(raw))
		for key, name := range raw {
			idx, err := strconv.Atoi(key)
			if err != nil {
				return nil, fmt.Errorf("invalid class index %q: %w", key, err)
			}
			labels[idx] = name
		}
		return labels, nil

	case '[':
		var names []string
		if err := json.Unmarshal(trimmed, &names); err != nil {
			return nil, fmt.Errorf("invalid label list JSON: %w", err)
		}
		return fromList(names), nil

	default:
		lines := strings.Split(strings.ReplaceAll(string(trimmed), "\r\n", "\n"), "\n")
		for i := range lines {
			lines[i] = strings.TrimSpace(lines[i])
		}
		return fromList(lines), nil
	}
}

func fromList(names []string) Labels {
	labels := make(Labels, len(names))
	for i, name := range names {
		labels[i] = name
	}
	return labels
}

func LoadLabelsFile(path string) (Labels, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read labels: %w", err)
	}
	return ParseLabels(data)
}

// FetchLabels downloads a label file. On any failure it logs and returns
// FallbackLabels.
func FetchLabels(ctx context.Context, client *resty.Client, url string) Labels {
	res, err := client.R().SetContext(ctx).Get(url)
	if err != nil {
		slog.Error("error fetching labels", "url", url, "error", err)
		return FallbackLabels
	}
	if !res.IsSuccess() {
		slog.Error("error fetching labels", "url", url, "status_code", res.StatusCode())
		return FallbackLabels
	}

	labels, err := ParseLabels(res.Body())
	if err != nil {
		slog.Error("error parsing fetched labels", "url", url, "error", err)
		return FallbackLabels
	}
	return labels
}
