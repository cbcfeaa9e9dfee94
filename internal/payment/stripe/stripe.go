package stripe

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v79/client"
)

type Config struct {
	SecretKey     string `mapstructure:"secret_key"`
	PubKey        string `mapstructure:"pub_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	Currency      string `mapstructure:"currency"`
	FeeAmount     string `mapstructure:"fee_amount"`
	ProductName   string `mapstructure:"product_name"`
	SuccessURL    string `mapstructure:"success_url"`
	CancelURL     string `mapstructure:"cancel_url"`
}

// Processor opens and reads back hosted checkout sessions for the waitlist
// signup fee.
type Processor struct {
	c   *Config
	sc  *client.API
	fee decimal.Decimal
}

func New(c *Config) (*Processor, error) {
	if c.SecretKey == "" || c.SuccessURL == "" || c.CancelURL == "" {
		return nil, fmt.Errorf("incomplete stripe config: %+v", c)
	}

	fee, err := decimal.NewFromString(c.FeeAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid fee amount %q: %w", c.FeeAmount, err)
	}
	if fee.IsNegative() || fee.IsZero() {
		return nil, fmt.Errorf("fee amount must be positive, got %s", fee)
	}

	if c.Currency == "" {
		c.Currency = "usd"
	}
	if c.ProductName == "" {
		c.ProductName = "Waitlist reservation"
	}

	sc := &client.API{}
	sc.Init(c.SecretKey, nil)

	return &Processor{
		c:   c,
		sc:  sc,
		fee: fee,
	}, nil
}
