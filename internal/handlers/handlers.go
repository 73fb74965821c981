package handlers

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os/exec"
	"path/filepath"

	"github.com/Brownie44l1/imageclassifier/internal/cache"
	"github.com/Brownie44l1/imageclassifier/internal/fetch"
	"github.com/Brownie44l1/imageclassifier/internal/inference"
	"github.com/Brownie44l1/imageclassifier/internal/metrics"
	"github.com/Brownie44l1/imageclassifier/internal/model"
	"github.com/Brownie44l1/imageclassifier/internal/rest"
	"github.com/Brownie44l1/imageclassifier/internal/storage"
	"github.com/Brownie44l1/imageclassifier/pkg/api"
	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"
)

const (
	DefaultMaxUploadBytes = 100 << 20
	maxImageBytes         = 10 << 20
	multipartMemory       = 32 << 20
)

// GPUReporter returns the raw GPU utilisation report.
type GPUReporter func(ctx context.Context) (string, error)

func NvidiaSMI(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "nvidia-smi").Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}

type Options struct {
	Predictor inference.Predictor
	// Local is set when classification runs in process. The tensor and
	// image upload endpoints need it.
	Local          *inference.LocalPredictor
	Store          storage.ArtifactStore
	Cache          *cache.Cache
	Metrics        *metrics.Metrics
	MaxUploadBytes int64
	// Limiter throttles the prediction endpoints, nil for no limit.
	Limiter *rate.Limiter
	GPU     GPUReporter
	// Assets holds index.html and the static files.
	Assets fs.FS
}

type Handler struct {
	predictor      inference.Predictor
	local          *inference.LocalPredictor
	store          storage.ArtifactStore
	cache          *cache.Cache
	metrics        *metrics.Metrics
	maxUploadBytes int64
	limiter        *rate.Limiter
	gpu            GPUReporter
	assets         fs.FS
}

func NewHandler(opts Options) *Handler {
	h := &Handler{
		predictor:      opts.Predictor,
		local:          opts.Local,
		store:          opts.Store,
		cache:          opts.Cache,
		metrics:        opts.Metrics,
		maxUploadBytes: opts.MaxUploadBytes,
		limiter:        opts.Limiter,
		gpu:            opts.GPU,
		assets:         opts.Assets,
	}
	if h.cache == nil {
		h.cache = cache.New()
	}
	if h.metrics == nil {
		h.metrics = metrics.New()
	}
	if h.maxUploadBytes <= 0 {
		h.maxUploadBytes = DefaultMaxUploadBytes
	}
	if h.gpu == nil {
		h.gpu = NvidiaSMI
	}
	return h
}

func (h *Handler) AddRoutes(r chi.Router) {
	r.Get("/", h.Index)
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(h.assets)))
	r.Get("/health", h.Health)
	r.Get("/gpu_util", rest.RestHandler(h.GPUUtil))
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	r.Post("/upload", h.Upload)

	r.Group(func(r chi.Router) {
		r.Use(h.rateLimit)
		r.Post("/predict", h.Predict)
		r.Post("/train", h.Predict)
		r.Post("/predict/tensor", rest.RestHandler(h.PredictTensor))
		r.Post("/predict/image", rest.RestHandler(h.PredictFromImage))
	})
}

func (h *Handler) rateLimit(next http.Handler) http.Handler {
	if h.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.limiter.Allow() {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	http.ServeFileFS(w, r, h.assets, "index.html")
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	rest.WriteJsonResponse(w, map[string]string{"status": "healthy"})
}

func (h *Handler) GPUUtil(r *http.Request) (any, error) {
	out, err := h.gpu(r.Context())
	if err != nil {
		return nil, rest.CodedErrorf(http.StatusInternalServerError, "Error running nvidia-smi: %v", err)
	}
	return api.GPUUtilResponse{Utilization: out}, nil
}

// Upload stores the model (and labels, if sent), switches the predictor to
// them and drops every cached prediction.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	res, err := h.upload(w, r)
	if err != nil {
		rest.WriteError(w, r, err)
		return
	}
	rest.WriteJsonResponse(w, res)
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) (*api.UploadResponse, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, rest.CodedErrorf(http.StatusBadRequest, "Failed to parse form: %v", err)
	}
	defer r.MultipartForm.RemoveAll()

	modelFile, modelHeader, err := r.FormFile("model")
	if err != nil {
		return nil, rest.CodedErrorf(http.StatusBadRequest, "model file is required: %v", err)
	}
	defer modelFile.Close()

	modelPath, err := h.save(r.Context(), modelHeader, modelFile)
	if err != nil {
		return nil, err
	}

	labelsPath := ""
	labelsFile, labelsHeader, err := r.FormFile("labels")
	switch {
	case err == nil:
		defer labelsFile.Close()
		if labelsPath, err = h.save(r.Context(), labelsHeader, labelsFile); err != nil {
			return nil, err
		}
	case !errors.Is(err, http.ErrMissingFile):
		return nil, rest.CodedErrorf(http.StatusBadRequest, "Failed to read labels: %v", err)
	}

	err = h.predictor.Reload(r.Context(), modelPath, labelsPath)
	h.metrics.ModelReloaded(err)
	if err != nil {
		return nil, err
	}
	h.cache.Reset()

	res := &api.UploadResponse{Status: "success", Model: filepath.Base(modelPath)}
	if labelsPath != "" {
		res.Labels = filepath.Base(labelsPath)
	}
	slog.Info("model uploaded", "model", res.Model, "labels", res.Labels)
	return res, nil
}

func (h *Handler) save(ctx context.Context, header *multipart.FileHeader, file multipart.File) (string, error) {
	path, err := h.store.Save(ctx, header.Filename, file)
	if err != nil {
		return "", rest.CodedErrorf(http.StatusInternalServerError, "Failed to save %s: %v", header.Filename, err)
	}
	return path, nil
}

// Predict serves /predict and /train. Responses are cached by image URL
// until the next model upload.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	req, err := rest.ParseRequest[api.PredictRequest](r)
	if err != nil {
		rest.WriteError(w, r, err)
		return
	}
	if req.ImageURL == "" {
		http.Error(w, "image_url is required", http.StatusBadRequest)
		return
	}

	if body, ok := h.cache.Get(req.ImageURL); ok {
		h.metrics.CacheHit()
		rest.WriteRawJson(w, body)
		return
	}
	h.metrics.CacheMiss()

	gen := h.cache.Generation()
	body, err := h.predictor.PredictURL(r.Context(), req.ImageURL)
	if err != nil {
		rest.WriteError(w, r, err)
		return
	}

	// An upload during the prediction makes this answer stale for the cache.
	h.cache.SetIfCurrent(gen, req.ImageURL, body)
	rest.WriteRawJson(w, body)
}

var errNotLocal = rest.CodedErrorf(http.StatusNotImplemented, "Not available while predictions are served by a remote backend")

func (h *Handler) PredictTensor(r *http.Request) (any, error) {
	if h.local == nil {
		return nil, errNotLocal
	}

	req, err := rest.ParseRequest[api.TensorRequest](r)
	if err != nil {
		return nil, err
	}

	res, err := h.local.ClassifyTensor(req.Image)
	if err != nil {
		return nil, err
	}
	return tensorResponse(res), nil
}

func (h *Handler) PredictFromImage(r *http.Request) (any, error) {
	if h.local == nil {
		return nil, errNotLocal
	}

	r.Body = http.MaxBytesReader(nil, r.Body, maxImageBytes)
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		return nil, rest.CodedErrorf(http.StatusBadRequest, "Failed to parse form")
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("image")
	if err != nil {
		return nil, rest.CodedErrorf(http.StatusBadRequest, "No image file provided. Use 'image' as the form field name")
	}
	defer file.Close()

	slog.Info("received image", "file", header.Filename, "size", header.Size)

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, rest.CodedErrorf(http.StatusBadRequest, "Failed to read image: %v", err)
	}

	img, err := fetch.Decode(data)
	if err != nil {
		return nil, rest.CodedErrorf(http.StatusBadRequest, "Invalid image format. Supported: JPEG, PNG, GIF")
	}

	res, err := h.local.Classify(img)
	if err != nil {
		return nil, err
	}
	return tensorResponse(res), nil
}

func tensorResponse(res *model.Result) api.TensorResponse {
	return api.TensorResponse{
		Class:       res.Label,
		Confidence:  res.Confidence,
		Predictions: res.Predictions,
	}
}
