package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	BackendQdrant   = "qdrant"
	BackendPgVector = "pgvector"

	ExtractorDocconv = "docconv"
	ExtractorPlain   = "pdf"

	defaultJournalPath = "data/journal.db"
)

type Config struct {
	CatalogURL     string        `validate:"required,url"`
	CatalogToken   string        `validate:"required"`
	CatalogTimeout time.Duration `validate:"gt=0"`

	VectorBackend        string `validate:"oneof=qdrant pgvector"`
	QdrantURL            string `validate:"required_if=VectorBackend qdrant"`
	QdrantAPIKey         string
	Collection           string `validate:"required"`
	CollectionAutoCreate bool
	DatabaseURL          string `validate:"required_if=VectorBackend pgvector"`

	BucketName   string `validate:"required"`
	S3Endpoint   string `validate:"omitempty,url"`
	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string `validate:"required"`

	NumWorkers     int     `validate:"gte=1"`
	EmbedBatchSize int     `validate:"gte=1,lte=100"`
	AIAPIKey       string  `validate:"required"`
	EmbedModel     string  `validate:"required"`
	EmbedDim       int     `validate:"gte=1"`
	EmbedMaxTokens int     `validate:"gte=2"`
	EmbedInputMax  int     `validate:"gtefield=EmbedMaxTokens"`
	EmbedRPS       float64 `validate:"gt=0"`
	ChunkOverlap   int     `validate:"gte=0,ltfield=EmbedMaxTokens"`

	BM25K      float64 `validate:"gt=0"`
	BM25B      float64 `validate:"gte=0,lte=1"`
	BM25AvgLen float64 `validate:"gt=0"`

	PollPeriod time.Duration `validate:"gt=0"`
	CacheDir   string        `validate:"required"`
	MirrorDir  string        `validate:"required"`
	Extractor  string        `validate:"oneof=docconv pdf"`

	JournalPath string `validate:"required"`
	OpsAddr     string

	LogLevel     string `validate:"oneof=debug info warn error"`
	LogFormat    string `validate:"oneof=json text"`
	OTLPEndpoint string
}

// LoadConfig loads the environment variables and return config
func LoadConfig() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	cfg := &Config{
		CatalogURL:     strings.TrimRight(getEnv("CATALOG_API_URL", ""), "/"),
		CatalogToken:   getEnv("CATALOG_AUTH_TOKEN", ""),
		CatalogTimeout: time.Duration(getEnvInt("CATALOG_TIMEOUT_SECONDS", 60)) * time.Second,

		VectorBackend:        strings.ToLower(getEnv("VECTOR_BACKEND", BackendQdrant)),
		QdrantURL:            getEnv("QDRANT_URL", "localhost:6334"),
		QdrantAPIKey:         getEnv("QDRANT_API_KEY", ""),
		Collection:           getEnv("QDRANT_COLLECTION", "moodle"),
		CollectionAutoCreate: getEnvBool("COLLECTION_AUTO_CREATE", true),
		DatabaseURL:          getEnv("DATABASE_URL", ""),

		BucketName:   getEnv("S3_BUCKET", ""),
		S3Endpoint:   getEnv("S3_ENDPOINT", ""),
		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-1"),

		NumWorkers:     getEnvInt("NUM_WORKERS", 4),
		EmbedBatchSize: getEnvInt("BI_ENCODER_BATCH_SIZE", 32),
		AIAPIKey:       getEnv("GEMINI_API_KEY", ""),
		EmbedModel:     getEnv("EMBED_MODEL", "text-embedding-004"),
		EmbedDim:       getEnvInt("EMBED_DIM", 768),
		EmbedMaxTokens: getEnvInt("EMBED_MAX_TOKENS", 512),
		EmbedInputMax:  getEnvInt("EMBED_INPUT_LIMIT", 2048),
		EmbedRPS:       getEnvFloat("EMBED_RPS", 5),
		ChunkOverlap:   getEnvInt("CHUNK_OVERLAP", 25),

		BM25K:      getEnvFloat("BM25_K", 1.2),
		BM25B:      getEnvFloat("BM25_B", 0.75),
		BM25AvgLen: getEnvFloat("BM25_AVG_LEN", 256),

		PollPeriod: time.Duration(getEnvInt("CORPORA_UPDATE_PERIOD", 300)) * time.Second,
		CacheDir:   getEnv("CACHE_DIR", "cache"),
		MirrorDir:  getEnv("MIRROR_DIR", "s3"),
		Extractor:  strings.ToLower(getEnv("EXTRACTOR", ExtractorDocconv)),

		JournalPath: getEnv("JOURNAL_PATH", defaultJournalPath),
		OpsAddr:     getEnv("OPS_ADDR", ":8080"),

		LogLevel:     strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:    strings.ToLower(getEnv("LOG_FORMAT", "json")),
		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the struct tags and reports every failing field at once.
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("validate config: %w", err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(fields, ", "))
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("WARN: %s=%q not a number, using default %g", key, v, def)
		return def
	}
	return f
}

func getEnvBool(key string, def bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a bool, using default %t", key, v, def)
		return def
	}
	return b
}

// LoadJournalPath reads only JOURNAL_PATH, for commands that need nothing else.
func LoadJournalPath() string {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load()
	}
	return getEnv("JOURNAL_PATH", defaultJournalPath)
}
