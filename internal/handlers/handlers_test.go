package handlers

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/Brownie44l1/imageclassifier/internal/cache"
	"github.com/Brownie44l1/imageclassifier/internal/inference"
	"github.com/Brownie44l1/imageclassifier/internal/model"
	"github.com/Brownie44l1/imageclassifier/internal/rest"
	"github.com/Brownie44l1/imageclassifier/internal/storage"
	"github.com/Brownie44l1/imageclassifier/web"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type fakePredictor struct {
	mu        sync.Mutex
	calls     map[string]int
	reloads   [][2]string
	err       error
	reloadErr error
	onPredict func()
}

func newFakePredictor() *fakePredictor {
	return &fakePredictor{calls: map[string]int{}}
}

func (p *fakePredictor) PredictURL(ctx context.Context, url string) ([]byte, error) {
	if p.onPredict != nil {
		p.onPredict()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[url]++
	if p.err != nil {
		return nil, p.err
	}
	return []byte(`{"predicted_label":"cat","confidence":0.97,"class_index":1}`), nil
}

func (p *fakePredictor) Reload(ctx context.Context, modelPath, labelsPath string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reloads = append(p.reloads, [2]string{modelPath, labelsPath})
	return p.reloadErr
}

type fakeClassifier struct{}

func (fakeClassifier) Classify(img image.Image) (*model.Result, error) {
	return model.Decide([]float32{0.2, 0.8}, model.Labels{0: "dog", 1: "cat"})
}

func (fakeClassifier) ClassifyTensor(input []float32) (*model.Result, error) {
	return model.Decide(input, model.Labels{0: "dog", 1: "cat"})
}

func (fakeClassifier) Metadata() model.Metadata {
	return model.Metadata{InputShape: []int64{1, 2}, OutputShape: []int64{1, 2}}
}

func (fakeClassifier) Close() {}

var testAssets = fstest.MapFS{
	"index.html": {Data: []byte("<html>classifier</html>")},
	"app.js":     {Data: []byte("console.log(1)")},
}

type fixture struct {
	router    *chi.Mux
	predictor *fakePredictor
	cache     *cache.Cache
	uploadDir string
}

func setup(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		predictor: newFakePredictor(),
		cache:     cache.New(),
		uploadDir: t.TempDir(),
	}

	store, err := storage.NewLocalStore(f.uploadDir)
	require.NoError(t, err)

	if opts.Predictor == nil {
		opts.Predictor = f.predictor
	}
	opts.Store = store
	opts.Cache = f.cache
	opts.Assets = testAssets

	f.router = chi.NewRouter()
	NewHandler(opts).AddRoutes(f.router)
	return f
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func predictRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func multipartRequest(t *testing.T, path string, files map[string][2]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for field, file := range files {
		part, err := mw.CreateFormFile(field, file[0])
		require.NoError(t, err)
		_, err = io.WriteString(part, file[1])
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHealth(t *testing.T) {
	f := setup(t, Options{})
	rec := f.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestIndexAndStatic(t *testing.T) {
	f := setup(t, Options{})

	rec := f.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "classifier")

	rec = f.do(httptest.NewRequest(http.MethodGet, "/static/app.js", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "console.log(1)", rec.Body.String())

	rec = f.do(httptest.NewRequest(http.MethodGet, "/static/missing.js", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStaticServesWasmBundleFromStaticDir(t *testing.T) {
	staticDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(staticDir, "webui.wasm"), []byte("\x00asm"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(staticDir, "wasm_exec.js"), []byte("class Go {}"), 0o644))

	router := chi.NewRouter()
	NewHandler(Options{
		Predictor: newFakePredictor(),
		Assets:    web.Overlay(os.DirFS(staticDir), web.Static()),
	}).AddRoutes(router)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	rec := get("/static/webui.wasm")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/wasm", rec.Header().Get("Content-Type"))
	assert.Equal(t, "\x00asm", rec.Body.String())

	rec = get("/static/wasm_exec.js")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "class Go {}", rec.Body.String())

	rec = get("/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/static/webui.wasm")
}

func TestPredictValidation(t *testing.T) {
	f := setup(t, Options{})

	rec := f.do(predictRequest(`not json`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid request body\n", rec.Body.String())

	rec = f.do(predictRequest(`{"image_url":""}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "image_url is required\n", rec.Body.String())

	assert.Empty(t, f.predictor.calls)
}

func TestPredictIsCached(t *testing.T) {
	f := setup(t, Options{})

	for i := 0; i < 3; i++ {
		rec := f.do(predictRequest(`{"image_url":"http://x/cat.jpg"}`))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.JSONEq(t, `{"predicted_label":"cat","confidence":0.97,"class_index":1}`, rec.Body.String())
	}
	assert.Equal(t, 1, f.predictor.calls["http://x/cat.jpg"])
	assert.Equal(t, 1, f.cache.Len())
}

func TestPredictFinishingAfterUploadIsNotCached(t *testing.T) {
	f := setup(t, Options{})
	f.predictor.onPredict = func() {
		rec := f.do(multipartRequest(t, "/upload", map[string][2]string{
			"model": {"next.onnx", "m"},
		}))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := f.do(predictRequest(`{"image_url":"http://x/cat.jpg"}`))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, f.cache.Len())

	f.predictor.onPredict = nil
	f.do(predictRequest(`{"image_url":"http://x/cat.jpg"}`))
	assert.Equal(t, 2, f.predictor.calls["http://x/cat.jpg"])
	assert.Equal(t, 1, f.cache.Len())
}

func TestTrainIsPredictAlias(t *testing.T) {
	f := setup(t, Options{})

	req := httptest.NewRequest(http.MethodPost, "/train", strings.NewReader(`{"image_url":"http://x/a.jpg"}`))
	rec := f.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.predictor.calls["http://x/a.jpg"])
}

func TestPredictErrorsAreNotCached(t *testing.T) {
	f := setup(t, Options{})
	f.predictor.err = rest.CodedErrorf(http.StatusBadRequest, "Error downloading the image: 404 Not Found")

	for i := 0; i < 2; i++ {
		rec := f.do(predictRequest(`{"image_url":"http://x/gone.jpg"}`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Error downloading the image: 404 Not Found\n", rec.Body.String())
	}
	assert.Equal(t, 2, f.predictor.calls["http://x/gone.jpg"])
	assert.Zero(t, f.cache.Len())
}

func TestUploadStoresReloadsAndResetsCache(t *testing.T) {
	f := setup(t, Options{})
	f.cache.Set("http://x/old.jpg", []byte(`{}`))

	rec := f.do(multipartRequest(t, "/upload", map[string][2]string{
		"model":  {"resnet50.onnx", "onnx-bytes"},
		"labels": {"labels.txt", "cat\ndog\n"},
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"status":"success","model":"uploaded_resnet50.onnx","labels":"uploaded_labels.txt"}`, rec.Body.String())

	data, err := os.ReadFile(filepath.Join(f.uploadDir, "uploaded_resnet50.onnx"))
	require.NoError(t, err)
	assert.Equal(t, "onnx-bytes", string(data))

	require.Len(t, f.predictor.reloads, 1)
	assert.Equal(t, filepath.Join(f.uploadDir, "uploaded_resnet50.onnx"), f.predictor.reloads[0][0])
	assert.Equal(t, filepath.Join(f.uploadDir, "uploaded_labels.txt"), f.predictor.reloads[0][1])

	assert.Zero(t, f.cache.Len())
}

func TestUploadModelOnly(t *testing.T) {
	f := setup(t, Options{})

	rec := f.do(multipartRequest(t, "/upload", map[string][2]string{
		"model": {"net.onnx", "m"},
	}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"success","model":"uploaded_net.onnx","labels":""}`, rec.Body.String())
	assert.Equal(t, "", f.predictor.reloads[0][1])
}

func TestUploadWithoutModel(t *testing.T) {
	f := setup(t, Options{})

	rec := f.do(multipartRequest(t, "/upload", map[string][2]string{
		"labels": {"labels.txt", "cat"},
	}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "model file is required: "))
	assert.Empty(t, f.predictor.reloads)
}

func TestUploadReloadFailureKeepsCache(t *testing.T) {
	f := setup(t, Options{})
	f.predictor.reloadErr = rest.CodedErrorf(http.StatusBadRequest, "Failed to load model: bad graph")
	f.cache.Set("http://x/a.jpg", []byte(`{}`))

	rec := f.do(multipartRequest(t, "/upload", map[string][2]string{
		"model": {"net.onnx", "garbage"},
	}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Failed to load model: bad graph\n", rec.Body.String())
	assert.Equal(t, 1, f.cache.Len())
}

func TestUploadTooLarge(t *testing.T) {
	f := setup(t, Options{MaxUploadBytes: 64})

	rec := f.do(multipartRequest(t, "/upload", map[string][2]string{
		"model": {"net.onnx", strings.Repeat("x", 1024)},
	}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.predictor.reloads)
}

func TestRateLimit(t *testing.T) {
	f := setup(t, Options{Limiter: rate.NewLimiter(rate.Limit(0.001), 1)})

	rec := f.do(predictRequest(`{"image_url":"http://x/a.jpg"}`))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(predictRequest(`{"image_url":"http://x/a.jpg"}`))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate limit exceeded\n", rec.Body.String())

	rec = f.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGPUUtil(t *testing.T) {
	f := setup(t, Options{GPU: func(ctx context.Context) (string, error) {
		return "GPU 0: 42%", nil
	}})
	rec := f.do(httptest.NewRequest(http.MethodGet, "/gpu_util", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"utilization":"GPU 0: 42%"}`, rec.Body.String())

	f = setup(t, Options{GPU: func(ctx context.Context) (string, error) {
		return "", errors.New("executable file not found in $PATH")
	}})
	rec = f.do(httptest.NewRequest(http.MethodGet, "/gpu_util", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Error running nvidia-smi")
}

func TestMetricsEndpoint(t *testing.T) {
	f := setup(t, Options{})
	f.do(predictRequest(`{"image_url":"http://x/a.jpg"}`))

	rec := f.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `prediction_cache_lookups_total{result="miss"} 1`)
}

func localPredictor() *inference.LocalPredictor {
	return inference.NewLocalPredictor(fakeClassifier{}, nil, nil, nil)
}

func TestPredictTensor(t *testing.T) {
	f := setup(t, Options{Local: localPredictor()})

	req := httptest.NewRequest(http.MethodPost, "/predict/tensor", strings.NewReader(`{"image":[0.3,0.7]}`))
	rec := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"class":"cat","confidence":0.7,"predictions":{"dog":0.3,"cat":0.7}}`, rec.Body.String())

	req = httptest.NewRequest(http.MethodPost, "/predict/tensor", strings.NewReader(`{"image":[0.3]}`))
	rec = f.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Expected 2 values, got 1\n", rec.Body.String())
}

func TestPredictFromImage(t *testing.T) {
	f := setup(t, Options{Local: localPredictor()})

	var img bytes.Buffer
	require.NoError(t, png.Encode(&img, image.NewRGBA(image.Rect(0, 0, 4, 4))))

	rec := f.do(multipartRequest(t, "/predict/image", map[string][2]string{
		"image": {"face.png", img.String()},
	}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"class":"cat","confidence":0.8,"predictions":{"dog":0.2,"cat":0.8}}`, rec.Body.String())

	rec = f.do(multipartRequest(t, "/predict/image", map[string][2]string{
		"image": {"face.png", "not an image"},
	}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(multipartRequest(t, "/predict/image", map[string][2]string{
		"photo": {"face.png", img.String()},
	}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLocalOnlyEndpointsWithRemoteBackend(t *testing.T) {
	f := setup(t, Options{})

	req := httptest.NewRequest(http.MethodPost, "/predict/tensor", strings.NewReader(`{"image":[1]}`))
	rec := f.do(req)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}
