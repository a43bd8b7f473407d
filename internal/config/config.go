package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration (env + Viper).
type Config struct {
	Env                 string
	Port                string
	SessionSecret       string
	DatabaseURL         string
	RedisURL            string
	FrontendURLEndsWith string
	DevPassword         string
	AllowCrossSiteDev   bool
	HealthAdminKey      string

	Blob   BlobConfig
	OpenAI OpenAIConfig

	ThumbnailTTL     time.Duration
	ImportChunkSize  int
	LedgerMaxRetries int
}

// BlobConfig selects and configures the label photo store.
type BlobConfig struct {
	Backend           string // "supabase" or "s3"
	Bucket            string
	SupabaseURL       string
	SupabaseSecretKey string // service_role key, not the anon key
	S3Endpoint        string
	S3Region          string
	S3AccessKey       string
	S3SecretKey       string
	S3UsePathStyle    bool
}

type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	_ = viper.ReadInConfig()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("WINE_IMAGES_BUCKET", "wine-images")
	viper.SetDefault("BLOB_BACKEND", "supabase")
	viper.SetDefault("S3_REGION", "us-east-1")
	viper.SetDefault("THUMBNAIL_TTL_SECONDS", 3600)
	viper.SetDefault("IMPORT_CHUNK_SIZE", 500)
	viper.SetDefault("LEDGER_MAX_RETRIES", 3)
	viper.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	viper.SetDefault("OPENAI_BASE_URL", "https://api.openai.com/v1")

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	dbURL := viper.GetString("DATABASE_URL_DEV")
	if env == "production" {
		dbURL = viper.GetString("DATABASE_URL_PROD")
	} else if env == "test" {
		dbURL = viper.GetString("DATABASE_URL_TEST")
	}
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}

	backend := strings.ToLower(strings.TrimSpace(viper.GetString("BLOB_BACKEND")))
	bucket := viper.GetString("WINE_IMAGES_BUCKET")
	if backend == "s3" && viper.GetString("S3_BUCKET") != "" {
		bucket = viper.GetString("S3_BUCKET")
	}

	return &Config{
		Env:                 env,
		Port:                viper.GetString("PORT"),
		SessionSecret:       viper.GetString("SESSION_SECRET"),
		DatabaseURL:         dbURL,
		RedisURL:            viper.GetString("REDIS_URL"),
		FrontendURLEndsWith: viper.GetString("FRONTEND_URL_ENDS_WITH"),
		DevPassword:         viper.GetString("DEV_PASSWORD"),
		AllowCrossSiteDev:   strings.EqualFold(viper.GetString("ALLOW_CROSS_SITE_DEV"), "true"),
		HealthAdminKey:      viper.GetString("HEALTH_ADMIN_KEY"),
		Blob: BlobConfig{
			Backend:           backend,
			Bucket:            bucket,
			SupabaseURL:       viper.GetString("SUPABASE_URL"),
			SupabaseSecretKey: viper.GetString("SUPABASE_SECRET_KEY"),
			S3Endpoint:        viper.GetString("S3_ENDPOINT"),
			S3Region:          viper.GetString("S3_REGION"),
			S3AccessKey:       viper.GetString("S3_ACCESS_KEY"),
			S3SecretKey:       viper.GetString("S3_SECRET_KEY"),
			S3UsePathStyle:    viper.GetBool("S3_USE_PATH_STYLE"),
		},
		OpenAI: OpenAIConfig{
			APIKey:  viper.GetString("OPENAI_API_KEY"),
			Model:   viper.GetString("OPENAI_MODEL"),
			BaseURL: viper.GetString("OPENAI_BASE_URL"),
		},
		ThumbnailTTL:     time.Duration(viper.GetInt("THUMBNAIL_TTL_SECONDS")) * time.Second,
		ImportChunkSize:  viper.GetInt("IMPORT_CHUNK_SIZE"),
		LedgerMaxRetries: viper.GetInt("LEDGER_MAX_RETRIES"),
	}, nil
}
