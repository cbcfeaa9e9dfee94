package config

import (
	"fmt"
	"os"
	"strings"

	httpapi "github.com/jekabolt/waitlist-manager/internal/api/http"
	"github.com/jekabolt/waitlist-manager/internal/drip"
	"github.com/jekabolt/waitlist-manager/internal/mail"
	"github.com/jekabolt/waitlist-manager/internal/payment/stripe"
	"github.com/jekabolt/waitlist-manager/internal/store"
	"github.com/jekabolt/waitlist-manager/log"
	"github.com/spf13/viper"
)

// Config represents the global configuration for the service.
type Config struct {
	DB            store.Config   `mapstructure:"mysql"`
	Logger        log.Config     `mapstructure:"logger"`
	HTTP          httpapi.Config `mapstructure:"http"`
	Mailer        mail.Config    `mapstructure:"mailer"`
	Drip          drip.Config    `mapstructure:"drip"`
	StripePayment stripe.Config  `mapstructure:"stripe_payment"`
}

// LoadConfig loads the configuration from a file and/or environment variables.
// Environment variables take precedence over config file values.
// Env vars use underscores and uppercase, e.g., MYSQL_DSN, STRIPE_PAYMENT_SECRET_KEY.
// Nested config keys use double underscore, e.g., MYSQL__DSN for mysql.dsn
func LoadConfig(cfgFile string) (*Config, error) {
	viper.SetConfigType("toml")

	// Enable environment variable support
	// Viper will automatically read env vars and override config file values
	viper.AutomaticEnv()
	// Replace dots and dashes with underscores in env var names
	// e.g., mysql.dsn -> MYSQL__DSN, http.admin_api_key -> HTTP__ADMIN_API_KEY
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "__", "-", "__"))

	// Bind common environment variables to config keys
	bindEnvVars()

	// Try to read config file (optional - can work with env vars only)
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			// If config file doesn't exist, continue with env vars only
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %v", err)
			}
		}
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("$HOME/config/waitlist-manager")
		viper.AddConfigPath("/etc/waitlist-manager")
		// Try to read config, but don't fail if it doesn't exist
		_ = viper.ReadInConfig()
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config into struct: %v", err)
	}

	// Handle MySQL DSN construction from individual env vars if DSN is not set
	if config.DB.DSN == "" {
		mysqlHost := os.Getenv("MYSQL_HOST")
		mysqlPort := os.Getenv("MYSQL_PORT")
		mysqlUser := os.Getenv("MYSQL_USER")
		mysqlPassword := os.Getenv("MYSQL_PASSWORD")
		mysqlDatabase := os.Getenv("MYSQL_DATABASE")

		if mysqlHost != "" {
			if mysqlPort == "" {
				mysqlPort = "3306"
			}
			if mysqlUser != "" && mysqlPassword != "" && mysqlDatabase != "" {
				config.DB.DSN = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8&parseTime=true",
					mysqlUser, mysqlPassword, mysqlHost, mysqlPort, mysqlDatabase)
			}
		}
	}

	return &config, nil
}

// bindEnvVars binds environment variables to config keys
// This allows using both nested keys (MYSQL__DSN) and flat keys (MYSQL_DSN)
func bindEnvVars() {
	// MySQL
	viper.BindEnv("mysql.dsn", "MYSQL_DSN")
	viper.BindEnv("mysql.automigrate", "MYSQL_AUTOMIGRATE")
	viper.BindEnv("mysql.max_open_connections", "MYSQL_MAX_OPEN_CONNECTIONS")
	viper.BindEnv("mysql.max_idle_connections", "MYSQL_MAX_IDLE_CONNECTIONS")
	viper.BindEnv("mysql.tls_ca_path", "MYSQL_TLS_CA_PATH")

	// Logger
	viper.BindEnv("logger.level", "LOG_LEVEL")
	viper.BindEnv("logger.add_source", "LOG_ADD_SOURCE")

	// HTTP
	viper.BindEnv("http.port", "HTTP_PORT")
	viper.BindEnv("http.address", "HTTP_ADDRESS")
	viper.BindEnv("http.allowed_origins", "HTTP_ALLOWED_ORIGINS")
	viper.BindEnv("http.admin_api_key", "HTTP_ADMIN_API_KEY")

	// Mailer
	viper.BindEnv("mailer.sendgrid_api_key", "MAILER_SENDGRID_API_KEY")
	viper.BindEnv("mailer.from_email", "MAILER_FROM_EMAIL")
	viper.BindEnv("mailer.from_email_name", "MAILER_FROM_EMAIL_NAME")
	viper.BindEnv("mailer.reply_to", "MAILER_REPLY_TO")
	viper.BindEnv("mailer.notify_email", "MAILER_NOTIFY_EMAIL")
	viper.BindEnv("mailer.site_base_url", "MAILER_SITE_BASE_URL")
	viper.BindEnv("mailer.worker_interval", "MAILER_WORKER_INTERVAL")

	// Drip campaign
	viper.BindEnv("drip.worker_interval", "DRIP_WORKER_INTERVAL")

	// Stripe Payment
	viper.BindEnv("stripe_payment.secret_key", "STRIPE_PAYMENT_SECRET_KEY")
	viper.BindEnv("stripe_payment.pub_key", "STRIPE_PAYMENT_PUB_KEY")
	viper.BindEnv("stripe_payment.webhook_secret", "STRIPE_PAYMENT_WEBHOOK_SECRET")
	viper.BindEnv("stripe_payment.currency", "STRIPE_PAYMENT_CURRENCY")
	viper.BindEnv("stripe_payment.fee_amount", "STRIPE_PAYMENT_FEE_AMOUNT")
	viper.BindEnv("stripe_payment.product_name", "STRIPE_PAYMENT_PRODUCT_NAME")
	viper.BindEnv("stripe_payment.success_url", "STRIPE_PAYMENT_SUCCESS_URL")
	viper.BindEnv("stripe_payment.cancel_url", "STRIPE_PAYMENT_CANCEL_URL")
}
