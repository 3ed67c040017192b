package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port               int      `mapstructure:"port"`
		CorsAllowedOrigins []string `mapstructure:"cors_allowed_origins"`
		CorsAllowedMethods []string `mapstructure:"cors_allowed_methods"`
		CorsAllowedHeaders []string `mapstructure:"cors_allowed_headers"`
	} `mapstructure:"server"`

	Database struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		MaxConns int32  `mapstructure:"max_conns"`
	} `mapstructure:"database"`

	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`

	JWT struct {
		Secret          string `mapstructure:"secret"`
		ExpirationHours int    `mapstructure:"expiration_hours"`
		Issuer          string `mapstructure:"issuer"`
	} `mapstructure:"jwt"`

	Log struct {
		Level      string `mapstructure:"level"`
		Format     string `mapstructure:"format"`
		TimeFormat string `mapstructure:"time_format"`
		Output     string `mapstructure:"output"`
	} `mapstructure:"log"`

	Billing BillingConfig `mapstructure:"billing"`

	Sepa SepaConfig `mapstructure:"sepa"`

	Payments struct {
		Currency        string `mapstructure:"currency"`
		ReferencePrefix string `mapstructure:"reference_prefix"`
	} `mapstructure:"payments"`

	Files struct {
		Dir string `mapstructure:"dir"`
	} `mapstructure:"files"`

	Archive ArchiveConfig `mapstructure:"archive"`

	Mail MailConfig `mapstructure:"mail"`

	Power struct {
		APIURL         string `mapstructure:"api_url"`
		User           string `mapstructure:"user"`
		Pass           string `mapstructure:"pass"`
		TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	} `mapstructure:"power"`
}

// BillingConfig drives the proration engine.
type BillingConfig struct {
	// AnchorDay is the day of month used for a package's first billing.
	AnchorDay      int    `mapstructure:"anchor_day"`
	StaleAfterDays int    `mapstructure:"stale_after_days"`
	Timezone       string `mapstructure:"timezone"`
	CompanyName    string `mapstructure:"company_name"`

	// SenderLine and InvoiceFooter are printed on invoice PDFs.
	SenderLine    string   `mapstructure:"sender_line"`
	InvoiceFooter []string `mapstructure:"invoice_footer"`
}

type SepaConfig struct {
	CreditorName    string `mapstructure:"creditor_name"`
	CreditorIBAN    string `mapstructure:"creditor_iban"`
	CreditorBIC     string `mapstructure:"creditor_bic"`
	CreditorID      string `mapstructure:"creditor_id"`
	Currency        string `mapstructure:"currency"`
	Instrument      string `mapstructure:"instrument"`
	Batch           bool   `mapstructure:"batch"`
	Schema          string `mapstructure:"schema"`
	ReferencePrefix string `mapstructure:"reference_prefix"`
}

type ArchiveConfig struct {
	Driver    string `mapstructure:"driver"`
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

type MailConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	BCC      string `mapstructure:"bcc"`
	Suppress bool   `mapstructure:"suppress"`
}

// Load reads configs/config.yaml (optional), the environment and .env.
func Load() (*Config, error) {
	// .env is optional, production sets real environment variables
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile("configs/config.yaml")
	v.AutomaticEnv()
	setDefaults(v)

	// Config file is optional
	_ = v.ReadInConfig()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_allowed_origins", []string{"*"})
	v.SetDefault("server.cors_allowed_methods", []string{"GET", "POST", "PUT", "OPTIONS"})
	v.SetDefault("server.cors_allowed_headers", []string{"Authorization", "Content-Type"})

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "housing")
	v.SetDefault("database.max_conns", 10)

	v.SetDefault("jwt.expiration_hours", 24)
	v.SetDefault("jwt.issuer", "housing-backend")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.time_format", "2006-01-02T15:04:05Z07:00")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("billing.anchor_day", 25)
	v.SetDefault("billing.stale_after_days", 30)
	v.SetDefault("billing.timezone", "Europe/Vienna")
	v.SetDefault("billing.company_name", "Funkfeuer")
	v.SetDefault("billing.sender_line", "Funkfeuer Wien, Postfach 1, 1010 Wien")

	v.SetDefault("sepa.currency", "EUR")
	v.SetDefault("sepa.instrument", "CORE")
	v.SetDefault("sepa.batch", true)
	v.SetDefault("sepa.schema", "pain.008.001.02")
	v.SetDefault("sepa.reference_prefix", "Housing-k")

	v.SetDefault("payments.currency", "EUR")
	v.SetDefault("payments.reference_prefix", "Housing-k")

	v.SetDefault("files.dir", "./files")

	v.SetDefault("archive.driver", "local")
	v.SetDefault("archive.region", "auto")

	v.SetDefault("mail.port", 25)
	v.SetDefault("mail.from", "Funkfeuer <root@localhost>")
	v.SetDefault("mail.suppress", true)

	v.SetDefault("power.timeout_seconds", 10)
}

func applyEnvOverrides(cfg *Config) {
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Database.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil && n > 0 {
			cfg.Database.Port = n
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.Database.User = user
	}
	if pass := os.Getenv("DB_PASSWORD"); pass != "" {
		cfg.Database.Password = pass
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.Database.Name = name
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.JWT.Secret = secret
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if pass := os.Getenv("REDIS_PASSWORD"); pass != "" {
		cfg.Redis.Password = pass
	}

	if pass := os.Getenv("SMTP_PASSWORD"); pass != "" {
		cfg.Mail.Password = pass
	}
	if key := os.Getenv("ARCHIVE_SECRET_KEY"); key != "" {
		cfg.Archive.SecretKey = key
	}
	if pass := os.Getenv("POWER_PASS"); pass != "" {
		cfg.Power.Pass = pass
	}
}

// Validate rejects settings the billing engine cannot work with.
func (c *Config) Validate() error {
	if c.Billing.AnchorDay < 1 || c.Billing.AnchorDay > 28 {
		return fmt.Errorf("billing.anchor_day must be between 1 and 28, got %d", c.Billing.AnchorDay)
	}
	if c.Billing.StaleAfterDays <= 0 {
		return fmt.Errorf("billing.stale_after_days must be positive, got %d", c.Billing.StaleAfterDays)
	}
	switch c.Sepa.Instrument {
	case "CORE", "B2B", "COR1":
	default:
		return fmt.Errorf("sepa.instrument %q is not supported", c.Sepa.Instrument)
	}
	switch c.Archive.Driver {
	case "local", "s3":
	default:
		return fmt.Errorf("archive.driver %q is not supported", c.Archive.Driver)
	}
	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}
