package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/upload", r.URL.Path)
		w.Write([]byte(`{"status":"success","model":"uploaded_net.onnx","labels":""}`))
	}))
	defer srv.Close()

	modelPath := filepath.Join(t.TempDir(), "net.onnx")
	require.NoError(t, os.WriteFile(modelPath, []byte("m"), 0o644))

	var out bytes.Buffer
	require.NoError(t, run([]string{"-server", srv.URL, "upload", "-model", modelPath}, &out))
	assert.Equal(t, "Upload successful: uploaded_net.onnx\n", out.String())
}

func TestRunUploadWithoutModel(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run([]string{"-server", "http://127.0.0.1:1", "upload"}, &out))
	assert.Equal(t, "Please choose an ONNX model file.\n", out.String())
}

func TestRunPredict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"predicted_label":"tabby & co","confidence":0.91}`))
	}))
	defer srv.Close()

	var out bytes.Buffer
	require.NoError(t, run([]string{"-server", srv.URL, "predict", "-url", "http://x/cat.jpg"}, &out))
	assert.Equal(t, "Predicted: tabby & co\nConfidence: 0.91\n", out.String())
}

func TestRunPredictServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "image_url is required", http.StatusBadRequest)
	}))
	defer srv.Close()

	var out bytes.Buffer
	require.NoError(t, run([]string{"-server", srv.URL, "predict"}, &out))
	assert.Equal(t, "Error: image_url is required\n", out.String())
}

func TestRunUsage(t *testing.T) {
	var out bytes.Buffer
	assert.ErrorIs(t, run([]string{"-server", "http://127.0.0.1:1"}, &out), errUsage)
	assert.ErrorIs(t, run([]string{"-server", "http://127.0.0.1:1", "train"}, &out), errUsage)
}
