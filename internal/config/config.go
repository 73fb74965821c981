package config

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const defaultEnvFile = ".env"

type ServerConfig struct {
	Port             string        `env:"PORT" envDefault:"8080"`
	ModelPath        string        `env:"MODEL_PATH"`
	LabelsPath       string        `env:"LABELS_PATH"`
	LabelsURL        string        `env:"LABELS_URL" envDefault:"https://huggingface.co/datasets/huggingface/label-files/raw/main/imagenet-1k-id2label.json"`
	UploadDir        string        `env:"UPLOAD_DIR" envDefault:"uploads"`
	StaticDir        string        `env:"STATIC_DIR" envDefault:"web/static"`
	InferenceBackend string        `env:"INFERENCE_BACKEND_URL"`
	PythonService    string        `env:"PYTHON_SERVICE_URL"`
	OnnxRuntimeLib   string        `env:"ONNXRUNTIME_LIB"`
	MaxUploadBytes   int64         `env:"MAX_UPLOAD_BYTES" envDefault:"104857600"`
	FetchTimeout     time.Duration `env:"FETCH_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout  time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	SentryDSN        string        `env:"SENTRY_DSN"`
	PredictRateLimit float64       `env:"PREDICT_RATE_LIMIT" envDefault:"0"`
	PredictRateBurst int           `env:"PREDICT_RATE_BURST" envDefault:"10"`

	S3Bucket          string `env:"S3_BUCKET"`
	S3Prefix          string `env:"S3_PREFIX" envDefault:"models/"`
	S3EndpointURL     string `env:"S3_ENDPOINT_URL"`
	S3Region          string `env:"AWS_REGION" envDefault:"us-east-1"`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
}

// BackendURL is the inference service to proxy predictions to, empty when
// the server classifies in process.
func (c ServerConfig) BackendURL() string {
	if c.InferenceBackend != "" {
		return c.InferenceBackend
	}
	return c.PythonService
}

func (c ServerConfig) Validate() error {
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	if c.PredictRateLimit < 0 {
		return fmt.Errorf("PREDICT_RATE_LIMIT must not be negative, got %v", c.PredictRateLimit)
	}
	if c.PredictRateLimit > 0 && c.PredictRateBurst < 1 {
		return fmt.Errorf("PREDICT_RATE_BURST must be at least 1 when rate limiting, got %d", c.PredictRateBurst)
	}
	return nil
}

type ClientConfig struct {
	ServerURL string `env:"CLASSIFIER_URL" envDefault:"http://localhost:8080"`
}

func LoadServer() (ServerConfig, error) {
	var cfg ServerConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("error parsing config: %w", err)
	}
	return cfg, cfg.Validate()
}

func LoadClient() (ClientConfig, error) {
	var cfg ClientConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("error parsing config: %w", err)
	}
	return cfg, nil
}

// LoadEnvFile loads variables from path into the environment. With no path
// it tries ./.env and carries on with os.Environ if there is none.
func LoadEnvFile(path string) error {
	if path == "" {
		if _, err := os.Stat(defaultEnvFile); errors.Is(err, os.ErrNotExist) {
			log.Printf("no env file specified, using os.Environ only")
			return nil
		}
		path = defaultEnvFile
	}

	log.Printf("loading env from file %s", path)
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("error loading .env file '%s': %w", path, err)
	}
	return nil
}

// EnvFlag registers the -env flag on fs.
func EnvFlag(fs *flag.FlagSet) *string {
	return fs.String("env", "", "path to load env from")
}
