package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	OCR       OCRConfig       `yaml:"ocr" mapstructure:"ocr"`
	Mistral   MistralConfig   `yaml:"mistral" mapstructure:"mistral"`
	NLP       NLPConfig       `yaml:"nlp" mapstructure:"nlp"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Notion    NotionConfig    `yaml:"notion" mapstructure:"notion"`
	Inbox     InboxConfig     `yaml:"inbox" mapstructure:"inbox"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the run history database.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // sqlite | postgres
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the upload server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	MaxUploadMB int64    `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
	Limit       int `yaml:"limit" mapstructure:"limit"`
}

// ExtractConfig tunes the cascade and field heuristics.
type ExtractConfig struct {
	MinTextChars    int     `yaml:"min_text_chars" mapstructure:"min_text_chars"`
	MinNativeChars  int     `yaml:"min_native_chars" mapstructure:"min_native_chars"`
	MaxItems        int     `yaml:"max_items" mapstructure:"max_items"`
	NoiseFloor      float64 `yaml:"noise_floor" mapstructure:"noise_floor"`
	DateWindowYears int     `yaml:"date_window_years" mapstructure:"date_window_years"`
	RulesFile       string  `yaml:"rules_file" mapstructure:"rules_file"`
}

// OCRConfig configures text acquisition from PDFs and images.
type OCRConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"` // tesseract | mistral | none
	PDFText       string `yaml:"pdf_text" mapstructure:"pdf_text"` // native | pdftotext
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	PdfToPPMPath  string `yaml:"pdftoppm_path" mapstructure:"pdftoppm_path"`
	TesseractPath string `yaml:"tesseract_path" mapstructure:"tesseract_path"`
	TesseractLang string `yaml:"tesseract_lang" mapstructure:"tesseract_lang"`
	DPI           int    `yaml:"dpi" mapstructure:"dpi"`
	MaxPages      int    `yaml:"max_pages" mapstructure:"max_pages"`
	TimeoutSecs   int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// MistralConfig holds Mistral OCR API settings.
type MistralConfig struct {
	APIKey      string  `yaml:"api_key" mapstructure:"api_key"`
	Model       string  `yaml:"model" mapstructure:"model"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	MaxAttempts int     `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// NLPConfig selects the entity oracle.
type NLPConfig struct {
	Provider      string  `yaml:"provider" mapstructure:"provider"` // none | anthropic
	Model         string  `yaml:"model" mapstructure:"model"`
	MaxInputChars int     `yaml:"max_input_chars" mapstructure:"max_input_chars"`
	RatePerSec    float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// AnthropicConfig holds Anthropic API credentials.
type AnthropicConfig struct {
	Key        string `yaml:"api_key" mapstructure:"api_key"`
	MaxRetries int    `yaml:"max_retries" mapstructure:"max_retries"`
}

// NotionConfig holds Notion API credentials and the ledger database ID.
type NotionConfig struct {
	Token      string  `yaml:"token" mapstructure:"token"`
	LedgerDB   string  `yaml:"ledger_db" mapstructure:"ledger_db"`
	RatePerSec float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// InboxConfig configures remote document sources.
type InboxConfig struct {
	FTPUser     string `yaml:"ftp_user" mapstructure:"ftp_user"`
	FTPPassword string `yaml:"ftp_password" mapstructure:"ftp_password"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("NFE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "nfe.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_upload_mb", 20)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("batch.concurrency", 4)
	v.SetDefault("batch.limit", 0)
	v.SetDefault("extract.min_text_chars", 50)
	v.SetDefault("extract.min_native_chars", 100)
	v.SetDefault("extract.max_items", 5)
	v.SetDefault("extract.noise_floor", 10.0)
	v.SetDefault("extract.date_window_years", 10)
	v.SetDefault("extract.rules_file", "")
	v.SetDefault("ocr.provider", "tesseract")
	v.SetDefault("ocr.pdf_text", "native")
	v.SetDefault("ocr.pdftotext_path", "pdftotext")
	v.SetDefault("ocr.pdftoppm_path", "pdftoppm")
	v.SetDefault("ocr.tesseract_path", "tesseract")
	v.SetDefault("ocr.tesseract_lang", "por")
	v.SetDefault("ocr.dpi", 300)
	v.SetDefault("ocr.max_pages", 10)
	v.SetDefault("ocr.timeout_secs", 120)
	v.SetDefault("mistral.api_key", "")
	v.SetDefault("mistral.model", "mistral-ocr-latest")
	v.SetDefault("mistral.rate_per_sec", 2.0)
	v.SetDefault("mistral.max_attempts", 3)
	v.SetDefault("nlp.provider", "none")
	v.SetDefault("nlp.model", "claude-haiku-4-5-20251001")
	v.SetDefault("nlp.max_input_chars", 20000)
	v.SetDefault("nlp.rate_per_sec", 2.0)
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.max_retries", 2)
	v.SetDefault("notion.token", "")
	v.SetDefault("notion.ledger_db", "")
	v.SetDefault("notion.rate_per_sec", 3.0)
	v.SetDefault("inbox.ftp_user", "anonymous")
	v.SetDefault("inbox.ftp_password", "anonymous")
	v.SetDefault("inbox.timeout_secs", 30)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Modes are
// "extract", "batch" and "serve"; all problems are reported together.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "extract", "batch", "serve":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.OCR.Provider {
	case "tesseract", "none":
	case "mistral":
		if c.Mistral.APIKey == "" {
			errs = append(errs, "mistral.api_key is required for ocr.provider=mistral")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown ocr.provider %q", c.OCR.Provider))
	}
	if c.OCR.PDFText != "native" && c.OCR.PDFText != "pdftotext" {
		errs = append(errs, fmt.Sprintf("unknown ocr.pdf_text %q", c.OCR.PDFText))
	}

	switch c.NLP.Provider {
	case "none":
	case "anthropic":
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.api_key is required for nlp.provider=anthropic")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown nlp.provider %q", c.NLP.Provider))
	}

	if mode != "extract" {
		switch c.Store.Driver {
		case "sqlite", "postgres":
			if c.Store.DatabaseURL == "" {
				errs = append(errs, "store.database_url is required")
			}
		default:
			errs = append(errs, fmt.Sprintf("unknown store.driver %q", c.Store.Driver))
		}
	}

	switch mode {
	case "batch":
		if c.Batch.Concurrency < 1 || c.Batch.Concurrency > 64 {
			errs = append(errs, "batch.concurrency must be between 1 and 64")
		}
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Server.MaxUploadMB <= 0 {
			errs = append(errs, "server.max_upload_mb must be > 0")
		}
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
