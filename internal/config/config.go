package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/televita/rxprice/internal/domain/pricing"
	"github.com/televita/rxprice/internal/platform/auth"
	"github.com/televita/rxprice/internal/platform/pbsapi"
)

type Config struct {
	Port            string        `mapstructure:"PORT"`
	Env             string        `mapstructure:"ENV"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
	RequestTimeout  time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	UpstreamTimeout time.Duration `mapstructure:"UPSTREAM_TIMEOUT"`
	CORSOrigins     []string      `mapstructure:"CORS_ORIGINS"`

	// Token exchange
	TokenURL          string        `mapstructure:"TOKEN_URL"`
	ClientID          string        `mapstructure:"CLIENT_ID"`
	ClientSecret      string        `mapstructure:"CLIENT_SECRET"`
	Scope             string        `mapstructure:"SCOPE"`
	SubscriptionKey   string        `mapstructure:"OCP_APIM_SUBSCRIPTION_KEY"`
	PrivateKeyPath    string        `mapstructure:"PRIVATE_KEY_PATH"`
	AssertionSubject  string        `mapstructure:"ASSERTION_SUBJECT"`
	AssertionName     string        `mapstructure:"ASSERTION_NAME"`
	AssertionIssuer   string        `mapstructure:"ASSERTION_ISSUER"`
	AssertionAudience string        `mapstructure:"ASSERTION_AUDIENCE"`
	AssertionPESType  string        `mapstructure:"ASSERTION_PES_TYPE"`
	TokenMaxAttempts  int           `mapstructure:"TOKEN_MAX_ATTEMPTS"`
	TokenRetryDelay   time.Duration `mapstructure:"TOKEN_RETRY_DELAY"`

	// PBS schedule API
	PBSBaseURL          string        `mapstructure:"PBS_BASE_URL"`
	PBSAPIKey           string        `mapstructure:"PBS_API_KEY"`
	PBSMaxAttempts      int           `mapstructure:"PBS_MAX_ATTEMPTS"`
	PBSBackoffBase      time.Duration `mapstructure:"PBS_BACKOFF_BASE"`
	PBSFallbackPrevious bool          `mapstructure:"PBS_FALLBACK_PREVIOUS"`

	PriceBookPath string `mapstructure:"PRICEBOOK_PATH"`
	FHIRAPIBase   string `mapstructure:"FHIR_API_BASE"`

	// Fee table, as decimal strings.
	GeneralCap         string `mapstructure:"GENERAL_CAP"`
	ConcessionalCap    string `mapstructure:"CONCESSIONAL_CAP"`
	DispensingFee      string `mapstructure:"DISPENSING_FEE"`
	ContainerFee       string `mapstructure:"CONTAINER_FEE"`
	ExtraDispensingFee string `mapstructure:"EXTRA_DISPENSING_FEE"`
	PharmaceuticalFee  string `mapstructure:"PHARMACEUTICAL_FEE"`
	WSDFDPAdjustment   string `mapstructure:"WSD_FDP_ADJUSTMENT"`
	WSDBrandMarkup     string `mapstructure:"WSD_BRAND_MARKUP"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "REQUEST_TIMEOUT", "UPSTREAM_TIMEOUT", "CORS_ORIGINS",
	"TOKEN_URL", "CLIENT_ID", "CLIENT_SECRET", "SCOPE", "OCP_APIM_SUBSCRIPTION_KEY",
	"PRIVATE_KEY_PATH", "ASSERTION_SUBJECT", "ASSERTION_NAME", "ASSERTION_ISSUER",
	"ASSERTION_AUDIENCE", "ASSERTION_PES_TYPE", "TOKEN_MAX_ATTEMPTS", "TOKEN_RETRY_DELAY",
	"PBS_BASE_URL", "PBS_API_KEY", "PBS_MAX_ATTEMPTS", "PBS_BACKOFF_BASE", "PBS_FALLBACK_PREVIOUS",
	"PRICEBOOK_PATH", "FHIR_API_BASE",
	"GENERAL_CAP", "CONCESSIONAL_CAP", "DISPENSING_FEE", "CONTAINER_FEE",
	"EXTRA_DISPENSING_FEE", "PHARMACEUTICAL_FEE", "WSD_FDP_ADJUSTMENT", "WSD_BRAND_MARKUP",
}

// Load reads configuration from the environment, with an optional .env file
// in the working directory filling anything the environment leaves unset.
func Load() (*Config, error) {
	return load(".env")
}

func load(envFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	v.AutomaticEnv()

	claims := auth.DefaultAssertionClaims()
	fees := pricing.DefaultFees()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("UPSTREAM_TIMEOUT", "10s")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("TOKEN_URL", auth.DefaultTokenURL)
	v.SetDefault("PRIVATE_KEY_PATH", "converted_private_key.pem")
	v.SetDefault("ASSERTION_SUBJECT", claims.Subject)
	v.SetDefault("ASSERTION_NAME", claims.Name)
	v.SetDefault("ASSERTION_ISSUER", claims.Issuer)
	v.SetDefault("ASSERTION_AUDIENCE", claims.Audience)
	v.SetDefault("ASSERTION_PES_TYPE", claims.PESType)
	v.SetDefault("TOKEN_MAX_ATTEMPTS", 3)
	v.SetDefault("TOKEN_RETRY_DELAY", "5s")
	v.SetDefault("PBS_BASE_URL", pbsapi.DefaultBaseURL)
	v.SetDefault("PBS_MAX_ATTEMPTS", 3)
	v.SetDefault("PBS_BACKOFF_BASE", "1s")
	v.SetDefault("PBS_FALLBACK_PREVIOUS", false)
	v.SetDefault("PRICEBOOK_PATH", "Pricebook_1055053.csv")
	v.SetDefault("GENERAL_CAP", fees.GeneralCap.StringFixed(2))
	v.SetDefault("CONCESSIONAL_CAP", fees.ConcessionalCap.StringFixed(2))
	v.SetDefault("DISPENSING_FEE", fees.DispensingFee.StringFixed(2))
	v.SetDefault("CONTAINER_FEE", fees.ContainerFee.StringFixed(2))
	v.SetDefault("EXTRA_DISPENSING_FEE", fees.ExtraDispensingFee.StringFixed(2))
	v.SetDefault("PHARMACEUTICAL_FEE", fees.PharmaceuticalFee.StringFixed(2))
	v.SetDefault("WSD_FDP_ADJUSTMENT", fees.FlatFileFDPAdjustment.StringFixed(2))
	v.SetDefault("WSD_BRAND_MARKUP", fees.FlatFileBrandMarkup.StringFixed(2))

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))

	if cfg.PBSAPIKey == "" {
		cfg.PBSAPIKey = cfg.SubscriptionKey
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// AssertionClaims returns the configured subject assertion claims.
func (c *Config) AssertionClaims() auth.AssertionClaims {
	return auth.AssertionClaims{
		Subject:  c.AssertionSubject,
		Name:     c.AssertionName,
		Issuer:   c.AssertionIssuer,
		Audience: c.AssertionAudience,
		PESType:  c.AssertionPESType,
	}
}

// TokenExchangeConfig returns the client credentials for the token exchange.
func (c *Config) TokenExchangeConfig() auth.TokenExchangeConfig {
	return auth.TokenExchangeConfig{
		TokenURL:        c.TokenURL,
		ClientID:        c.ClientID,
		ClientSecret:    c.ClientSecret,
		Scope:           c.Scope,
		SubscriptionKey: c.SubscriptionKey,
	}
}

// Fees parses the fee table.
func (c *Config) Fees() (pricing.Fees, error) {
	var f pricing.Fees
	fields := []struct {
		key string
		raw string
		dst *decimal.Decimal
	}{
		{"GENERAL_CAP", c.GeneralCap, &f.GeneralCap},
		{"CONCESSIONAL_CAP", c.ConcessionalCap, &f.ConcessionalCap},
		{"DISPENSING_FEE", c.DispensingFee, &f.DispensingFee},
		{"CONTAINER_FEE", c.ContainerFee, &f.ContainerFee},
		{"EXTRA_DISPENSING_FEE", c.ExtraDispensingFee, &f.ExtraDispensingFee},
		{"PHARMACEUTICAL_FEE", c.PharmaceuticalFee, &f.PharmaceuticalFee},
		{"WSD_FDP_ADJUSTMENT", c.WSDFDPAdjustment, &f.FlatFileFDPAdjustment},
		{"WSD_BRAND_MARKUP", c.WSDBrandMarkup, &f.FlatFileBrandMarkup},
	}
	for _, fld := range fields {
		d, err := decimal.NewFromString(fld.raw)
		if err != nil {
			return pricing.Fees{}, fmt.Errorf("%s is not a decimal amount: %q", fld.key, fld.raw)
		}
		*fld.dst = d
	}
	return f, nil
}

// Validate checks that the configuration is safe to run. Production
// additionally requires the token-exchange credentials.
func (c *Config) Validate() error {
	if c.Env != "development" && c.Env != "production" {
		return fmt.Errorf("ENV must be \"development\" or \"production\", got %q", c.Env)
	}
	if c.TokenMaxAttempts < 1 {
		return fmt.Errorf("TOKEN_MAX_ATTEMPTS must be at least 1, got %d", c.TokenMaxAttempts)
	}
	if c.PBSMaxAttempts < 1 {
		return fmt.Errorf("PBS_MAX_ATTEMPTS must be at least 1, got %d", c.PBSMaxAttempts)
	}
	if c.TokenRetryDelay < 0 || c.PBSBackoffBase < 0 {
		return fmt.Errorf("retry delays must not be negative")
	}
	if c.RequestTimeout < 0 || c.UpstreamTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}

	fees, err := c.Fees()
	if err != nil {
		return err
	}
	if err := fees.Validate(); err != nil {
		return err
	}

	if c.IsProduction() {
		missing := map[string]string{
			"CLIENT_ID":                 c.ClientID,
			"CLIENT_SECRET":             c.ClientSecret,
			"OCP_APIM_SUBSCRIPTION_KEY": c.SubscriptionKey,
		}
		for _, k := range []string{"CLIENT_ID", "CLIENT_SECRET", "OCP_APIM_SUBSCRIPTION_KEY"} {
			if missing[k] == "" {
				return fmt.Errorf("%s is required in production", k)
			}
		}
	}

	return nil
}
