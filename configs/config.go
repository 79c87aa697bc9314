package configs

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	App struct {
		Name     string `koanf:"name"`
		HTTPAddr string `koanf:"http_addr"`
		LogLevel string `koanf:"log_level"`
		LogFile  string `koanf:"log_file"`
	} `koanf:"app"`

	HTTP struct {
		ReadTimeout     time.Duration `koanf:"read_timeout"`
		WriteTimeout    time.Duration `koanf:"write_timeout"`
		IdleTimeout     time.Duration `koanf:"idle_timeout"`
		ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	} `koanf:"http"`

	MySQL struct {
		DSN             string        `koanf:"dsn"`
		MaxOpenConns    int           `koanf:"max_open_conns"`
		MaxIdleConns    int           `koanf:"max_idle_conns"`
		ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	} `koanf:"mysql"`

	Redis struct {
		Addr     string `koanf:"addr"`
		Password string `koanf:"password"`
		DB       int    `koanf:"db"`
	} `koanf:"redis"`

	Idempotency struct {
		TTL time.Duration `koanf:"ttl"`
	} `koanf:"idempotency"`

	Rabbit struct {
		URL      string `koanf:"url"`
		Exchange string `koanf:"exchange"`
		Prefetch int    `koanf:"prefetch"`
	} `koanf:"rabbitmq"`

	Kafka struct {
		Brokers    []string `koanf:"brokers"`
		GroupID    string   `koanf:"group_id"`
		TopicStock string   `koanf:"topic_stock"`
		Enabled    bool     `koanf:"enabled"`
	} `koanf:"kafka"`

	Security struct {
		JWTSecret string `koanf:"jwt_secret"`
		Issuer    string `koanf:"issuer"`
		Audience  string `koanf:"audience"`
	} `koanf:"security"`

	Pricing struct {
		FreeShippingThreshold string `koanf:"free_shipping_threshold"`
		FlatShippingFee       string `koanf:"flat_shipping_fee"`
		Currency              string `koanf:"currency"`
	} `koanf:"pricing"`

	Cart struct {
		AnonTTL       time.Duration `koanf:"anon_ttl"`
		MergeLockTTL  time.Duration `koanf:"merge_lock_ttl"`
		MergeLockWait time.Duration `koanf:"merge_lock_wait"`
	} `koanf:"cart"`

	Checkout struct {
		CommitTimeout  time.Duration `koanf:"commit_timeout"`
		PaymentMethods []string      `koanf:"payment_methods"`
	} `koanf:"checkout"`

	Outbox struct {
		Transport    string        `koanf:"transport"` // rabbitmq | inline
		PollInterval time.Duration `koanf:"poll_interval"`
		BatchSize    int           `koanf:"batch_size"`
		MaxRetries   int           `koanf:"max_retries"`
		BaseBackoff  time.Duration `koanf:"base_backoff"`
		Lease        time.Duration `koanf:"lease"`
	} `koanf:"outbox"`

	Loyalty struct {
		PointsPerUnit int64 `koanf:"points_per_unit"`
	} `koanf:"loyalty"`

	Tracing struct {
		Enabled     bool    `koanf:"enabled"`
		Endpoint    string  `koanf:"endpoint"`
		SampleRatio float64 `koanf:"sample_ratio"`
	} `koanf:"tracing"`

	Referral struct {
		BonusPoints   int64  `koanf:"bonus_points"`
		MinOrderTotal string `koanf:"min_order_total"`
	} `koanf:"referral"`
}

func Load(pathDir, envName string) (Config, error) {
	k := koanf.New(".")
	// 1) base
	if err := k.Load(file.Provider(fmt.Sprintf("%s/base.yaml", pathDir)), yaml.Parser()); err != nil {
		return Config{}, fmt.Errorf("load base: %w", err)
	}

	// 2) env override (dev/staging/prod). Optional: allow missing for local runs.
	_ = k.Load(file.Provider(fmt.Sprintf("%s/%s.yaml", pathDir, envName)), yaml.Parser())

	// 3) environment variables override (prefix CHECKOUTAPI_, nested with __)
	// e.g. CHECKOUTAPI_MYSQL__DSN, CHECKOUTAPI_SECURITY__JWT_SECRET
	if err := k.Load(env.Provider("CHECKOUTAPI_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "CHECKOUTAPI_")
		s = strings.ReplaceAll(s, "__", ".")
		return strings.ToLower(s)
	}), nil); err != nil {
		return Config{}, fmt.Errorf("env overlay: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.ShutdownTimeout <= 0 {
		c.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if c.Idempotency.TTL <= 0 {
		c.Idempotency.TTL = 24 * time.Hour
	}
	if c.Cart.AnonTTL <= 0 {
		c.Cart.AnonTTL = 30 * 24 * time.Hour
	}
	if c.Cart.MergeLockTTL <= 0 {
		c.Cart.MergeLockTTL = 10 * time.Second
	}
	if c.Cart.MergeLockWait <= 0 {
		c.Cart.MergeLockWait = 3 * time.Second
	}
	if c.Checkout.CommitTimeout <= 0 {
		c.Checkout.CommitTimeout = 5 * time.Second
	}
	if c.Outbox.Transport == "" {
		c.Outbox.Transport = "rabbitmq"
	}
	if c.Outbox.PollInterval <= 0 {
		c.Outbox.PollInterval = time.Second
	}
	if c.Outbox.BatchSize <= 0 {
		c.Outbox.BatchSize = 50
	}
	if c.Outbox.MaxRetries <= 0 {
		c.Outbox.MaxRetries = 10
	}
	if c.Outbox.BaseBackoff <= 0 {
		c.Outbox.BaseBackoff = 2 * time.Second
	}
	if c.Outbox.Lease <= 0 {
		c.Outbox.Lease = 30 * time.Second
	}
	if c.Loyalty.PointsPerUnit <= 0 {
		c.Loyalty.PointsPerUnit = 1
	}
	if c.Rabbit.Exchange == "" {
		c.Rabbit.Exchange = "checkout.side_effects"
	}
	if c.Rabbit.Prefetch <= 0 {
		c.Rabbit.Prefetch = 50
	}
}

func (c Config) Validate() error {
	if c.App.HTTPAddr == "" {
		return fmt.Errorf("app.http_addr required")
	}
	if c.MySQL.DSN == "" {
		return fmt.Errorf("mysql.dsn required")
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr required")
	}
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("security.jwt_secret required")
	}
	if len(c.Checkout.PaymentMethods) == 0 {
		return fmt.Errorf("checkout.payment_methods required")
	}
	switch c.Outbox.Transport {
	case "rabbitmq":
		if c.Rabbit.URL == "" {
			return fmt.Errorf("rabbitmq.url required when outbox.transport=rabbitmq")
		}
	case "inline":
	default:
		return fmt.Errorf("outbox.transport must be rabbitmq or inline, got %q", c.Outbox.Transport)
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing.endpoint required when tracing.enabled")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers required when kafka.enabled")
	}
	return nil
}
