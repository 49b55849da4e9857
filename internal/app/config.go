package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/shukshop/storefront/internal/domain/pricing"
	"github.com/shukshop/storefront/internal/notify"
	"github.com/shukshop/storefront/internal/paypal"
)

// Config holds the complete application configuration, loadable from
// environment variables (STORE_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (STORE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	ImageBaseURL string `default:"" usage:"Base URL for product images (e.g. https://cdn.example.com/images)" flag:"image-base-url"`
	APIKeyPepper string `usage:"HMAC pepper for admin API key hashing (STORE_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Pricing      PricingConfig
	PayPal       PayPalConfig `env:"PAYPAL" flag:"paypal"`
	SMTP         SMTPConfig
	AMQP         AMQPConfig
	Cooldown     CooldownConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// PricingConfig holds the order total constants. Amounts are decimal strings
// in shop currency.
type PricingConfig struct {
	FreeShippingThreshold string `default:"200" usage:"Discounted total that waives the delivery fee" flag:"free-shipping-threshold"`
	FlatShippingFee       string `default:"20"  usage:"Flat delivery fee below the threshold" flag:"flat-shipping-fee"`
	MinimumPurchase       string `default:"100" usage:"Smallest final total accepted at checkout" flag:"minimum-purchase"`
}

// Domain converts the string amounts into a pricing.Config.
func (c PricingConfig) Domain() (pricing.Config, error) {
	threshold, err := decimal.NewFromString(c.FreeShippingThreshold)
	if err != nil {
		return pricing.Config{}, errors.Wrap(err, "free shipping threshold")
	}
	fee, err := decimal.NewFromString(c.FlatShippingFee)
	if err != nil {
		return pricing.Config{}, errors.Wrap(err, "flat shipping fee")
	}
	minimum, err := decimal.NewFromString(c.MinimumPurchase)
	if err != nil {
		return pricing.Config{}, errors.Wrap(err, "minimum purchase")
	}
	return pricing.Config{
		FreeShippingThreshold: threshold,
		FlatShippingFee:       fee,
		MinimumPurchase:       minimum,
	}, nil
}

// PayPalConfig holds the REST API credentials used to verify captures.
type PayPalConfig struct {
	ClientID     string `usage:"PayPal REST client id (STORE_PAYPAL_CLIENT_ID)" flag:"paypal-client-id"`
	ClientSecret string `usage:"PayPal REST client secret (STORE_PAYPAL_CLIENT_SECRET)" flag:"paypal-client-secret"`
	Mode         string `default:"sandbox" usage:"PayPal environment: sandbox or live" flag:"paypal-mode"`
}

// SMTPConfig holds confirmation e-mail settings. Empty Host disables mail.
type SMTPConfig struct {
	Host       string `usage:"SMTP host; empty disables order e-mails" flag:"smtp-host"`
	Port       int    `default:"587" usage:"SMTP port" flag:"smtp-port"`
	Username   string `usage:"SMTP username" flag:"smtp-username"`
	Password   string `usage:"SMTP password" flag:"smtp-password"`
	From       string `usage:"From address for order e-mails" flag:"smtp-from"`
	AdminEmail string `usage:"Back-office address copied on every order" flag:"smtp-admin-email"`
}

// AMQPConfig holds the optional order event publisher settings. Empty URL
// disables publishing.
type AMQPConfig struct {
	URL   string `usage:"AMQP broker URL; empty disables order events" flag:"amqp-url"`
	Queue string `default:"orders.created" usage:"Queue for order created events" flag:"amqp-queue"`
}

// CooldownConfig throttles repeated storefront actions per session.
type CooldownConfig struct {
	AddToCart   time.Duration `default:"400ms" usage:"Quiet period between add-to-cart calls" flag:"cooldown-add-to-cart"`
	ApplyCoupon time.Duration `default:"2s"    usage:"Quiet period between quote calls" flag:"cooldown-apply-coupon"`
	Checkout    time.Duration `default:"4s"    usage:"Quiet period between checkout attempts" flag:"cooldown-checkout"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers. Credentials
// require explicit origins: the Fetch standard forbids a credentialed
// wildcard, and an empty allow-list would silently deny every browser.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// wildcard reports whether the origin list allows everyone.
func (c CORSConfig) wildcard() bool {
	if len(c.Origins) == 0 {
		return true
	}
	for _, o := range c.Origins {
		if o == "*" {
			return true
		}
	}
	return false
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform-specific defaults. Missing required settings
// fail here, before the server starts.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "STORE",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set STORE_DATABASE_URL or DATABASE_URL")
	}
	if cfg.APIKeyPepper == "" {
		return nil, errors.New("API key pepper is required: set STORE_API_KEY_PEPPER")
	}
	if cfg.CORS.AllowCredentials && cfg.CORS.wildcard() {
		return nil, errors.New("CORS credentials require explicit origins: set STORE_CORS_ORIGINS")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables
// (Railway, Render, etc.) that use standard names like DATABASE_URL and PORT
// to the application's STORE_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}

// MailConfig converts the SMTP section for the notify package.
func (c SMTPConfig) MailConfig() notify.MailConfig {
	return notify.MailConfig{
		Host:       c.Host,
		Port:       c.Port,
		Username:   c.Username,
		Password:   c.Password,
		From:       c.From,
		AdminEmail: c.AdminEmail,
	}
}

// ClientConfig converts the PayPal section for the paypal package.
func (c PayPalConfig) ClientConfig() paypal.Config {
	return paypal.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Mode:         c.Mode,
	}
}
