package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Brownie44l1/imageclassifier/internal/cache"
	"github.com/Brownie44l1/imageclassifier/internal/config"
	"github.com/Brownie44l1/imageclassifier/internal/fetch"
	"github.com/Brownie44l1/imageclassifier/internal/handlers"
	"github.com/Brownie44l1/imageclassifier/internal/inference"
	"github.com/Brownie44l1/imageclassifier/internal/metrics"
	"github.com/Brownie44l1/imageclassifier/internal/model"
	"github.com/Brownie44l1/imageclassifier/internal/storage"
	"github.com/Brownie44l1/imageclassifier/web"
	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

func main() {
	log.Println("Starting image classifier server...")

	envFile := config.EnvFlag(flag.CommandLine)
	flag.Parse()

	if err := config.LoadEnvFile(*envFile); err != nil {
		log.Fatal(err)
	}

	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN}); err != nil {
			log.Fatalf("Failed to initialize sentry: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	predictor, local := newPredictor(cfg)
	if local != nil {
		defer model.ShutdownRuntime()
		defer local.Close()
	}

	store, err := newStore(cfg)
	if err != nil {
		log.Fatalf("Failed to create artifact store: %v", err)
	}

	var limiter *rate.Limiter
	if cfg.PredictRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.PredictRateLimit), cfg.PredictRateBurst)
	}

	m := metrics.New()

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Content-Length", "Accept-Encoding", "Authorization"},
		MaxAge:         300,
	}))
	r.Use(m.Middleware)

	handler := handlers.NewHandler(handlers.Options{
		Predictor:      predictor,
		Local:          local,
		Store:          store,
		Cache:          cache.New(),
		Metrics:        m,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Limiter:        limiter,
		GPU:            handlers.NvidiaSMI,
		Assets:         web.Overlay(os.DirFS(cfg.StaticDir), web.Static()),
	})
	handler.AddRoutes(r)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}
	}()

	log.Printf("Server starting on port %s", cfg.Port)
	log.Println("Endpoints:")
	log.Println("  GET  /               - Web UI")
	log.Println("  GET  /health         - Health check")
	log.Println("  GET  /gpu_util       - nvidia-smi report")
	log.Println("  GET  /metrics        - Prometheus metrics")
	log.Println("  POST /upload         - Upload an ONNX model and optional labels")
	log.Println("  POST /predict        - Predict from an image URL")
	log.Println("  POST /predict/tensor - Raw array prediction")
	log.Println("  POST /predict/image  - Predict from image upload")
	log.Printf("Upload test: curl -X POST -F \"model=@model.onnx\" http://localhost:%s/upload", cfg.Port)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %s: %v", cfg.Port, err)
	}

	log.Println("Server stopped.")
}

// newPredictor proxies to the configured backend or, without one, classifies
// in process. local is nil in proxy mode.
func newPredictor(cfg config.ServerConfig) (inference.Predictor, *inference.LocalPredictor) {
	if backend := cfg.BackendURL(); backend != "" {
		log.Printf("Forwarding predictions to %s", backend)
		return inference.NewRemotePredictor(backend), nil
	}

	if err := model.InitRuntime(cfg.OnnxRuntimeLib); err != nil {
		log.Fatalf("Failed to initialize ONNX runtime: %v", err)
	}

	labels := loadLabels(cfg)

	var classifier inference.ImageClassifier
	if cfg.ModelPath != "" {
		log.Printf("Loading model from: %s", cfg.ModelPath)
		c, err := model.NewClassifier(cfg.ModelPath, labels)
		if err != nil {
			log.Printf("Failed to load model, waiting for an upload: %v", err)
		} else {
			classifier = c
			log.Printf("Model loaded: %s (%d classes)", cfg.ModelPath, c.Metadata().NumClasses())
		}
	} else {
		log.Println("No MODEL_PATH set, waiting for an upload")
	}

	local := inference.NewLocalPredictor(classifier, labels, inference.OnnxLoader, fetch.New(cfg.FetchTimeout))
	return local, local
}

func loadLabels(cfg config.ServerConfig) model.Labels {
	if cfg.LabelsPath != "" {
		labels, err := model.LoadLabelsFile(cfg.LabelsPath)
		if err != nil {
			log.Fatalf("Failed to load labels from %s: %v", cfg.LabelsPath, err)
		}
		return labels
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.FetchTimeout)
	defer cancel()
	return model.FetchLabels(ctx, resty.New(), cfg.LabelsURL)
}

func newStore(cfg config.ServerConfig) (storage.ArtifactStore, error) {
	local, err := storage.NewLocalStore(cfg.UploadDir)
	if err != nil {
		return nil, err
	}
	if cfg.S3Bucket == "" {
		return local, nil
	}

	log.Printf("Mirroring uploads to s3://%s/%s", cfg.S3Bucket, cfg.S3Prefix)
	return storage.NewS3Mirror(local, storage.S3Config{
		Bucket:          cfg.S3Bucket,
		Prefix:          cfg.S3Prefix,
		Endpoint:        cfg.S3EndpointURL,
		Region:          cfg.S3Region,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
	})
}
