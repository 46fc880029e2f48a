package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL string `yaml:"url" validate:"required"`
}

type RedisConfig struct {
	URL      string `yaml:"url" validate:"required"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type TelegramConfig struct {
	Token        string  `yaml:"token" validate:"required"`
	Workers      int     `yaml:"workers"` // polling workers
	AdminIDs     []int64 `yaml:"admin_ids"`
	OpsChannelID int64   `yaml:"ops_channel_id"` // operational log channel; 0 disables
}

type WebConfig struct {
	Port           int    `yaml:"port"`
	AdminJWTSecret string `yaml:"admin_jwt_secret"`
}

type YooKassaConfig struct {
	Enabled        bool     `yaml:"enabled"`
	ShopID         string   `yaml:"shop_id"`
	SecretKey      string   `yaml:"secret_key"`
	ReturnURL      string   `yaml:"return_url"`
	AllowedSubnets []string `yaml:"allowed_subnets"` // webhook source allowlist, CIDR
}

type CryptoPayConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	Asset   string `yaml:"asset"`
}

type TributeConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
}

type StarsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type PhoneTransferConfig struct {
	Enabled     bool   `yaml:"enabled"`
	PhoneNumber string `yaml:"phone_number"`
	BankName    string `yaml:"bank_name"`
}

type ProvidersConfig struct {
	YooKassa       YooKassaConfig      `yaml:"yookassa"`
	CryptoPay      CryptoPayConfig     `yaml:"cryptopay"`
	Tribute        TributeConfig       `yaml:"tribute"`
	Stars          StarsConfig         `yaml:"stars"`
	PhoneTransfer  PhoneTransferConfig `yaml:"phone_transfer"`
	RequestTimeout time.Duration       `yaml:"request_timeout"` // outbound gateway calls
}

type ReconcilerConfig struct {
	Interval   time.Duration `yaml:"interval"`    // 0 disables the reconciler
	StaleAfter time.Duration `yaml:"stale_after"` // awaiting rows older than this get polled
	BatchSize  int           `yaml:"batch_size"`
}

type PanelConfig struct {
	BaseURL string `yaml:"base_url"` // empty disables panel access links
	APIKey  string `yaml:"api_key"`
}

// PlanConfig is one purchasable period. Amount is in the currency's minor
// units; StarsAmount is the Telegram Stars price for the same period.
type PlanConfig struct {
	Months      int    `yaml:"months" validate:"required,gt=0"`
	Amount      int64  `yaml:"amount" validate:"required,gt=0"`
	Currency    string `yaml:"currency" validate:"required"`
	StarsAmount int64  `yaml:"stars_amount"`
}

type ReferralConfig struct {
	Enabled      bool `yaml:"enabled"`
	RefereeDays  int  `yaml:"referee_days"`
	ReferrerDays int  `yaml:"referrer_days"`
}

type Config struct {
	Log        LogConfig        `yaml:"log"`
	Database   DatabaseConfig   `yaml:"database" validate:"required"`
	Redis      RedisConfig      `yaml:"redis" validate:"required"`
	Telegram   TelegramConfig   `yaml:"telegram" validate:"required"`
	Web        WebConfig        `yaml:"web"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
	Panel      PanelConfig      `yaml:"panel"`
	Referral   ReferralConfig   `yaml:"referral"`
	Plans      []PlanConfig     `yaml:"plans" validate:"dive"`

	Runtime RuntimeConfig `yaml:"-"`
}

// Load reads and validates the YAML config. ${VAR} references in the file are
// expanded from the environment so secrets stay out of the file itself.
func Load(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	if err := cfg.checkProviders(); err != nil {
		return nil, err
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Telegram.Workers <= 0 {
		c.Telegram.Workers = 8
	}
	if c.Web.Port <= 0 {
		c.Web.Port = 8080
	}
	if c.Providers.RequestTimeout <= 0 {
		c.Providers.RequestTimeout = 15 * time.Second
	}
	if c.Providers.CryptoPay.Asset == "" {
		c.Providers.CryptoPay.Asset = "USDT"
	}
	if c.Reconciler.StaleAfter <= 0 {
		c.Reconciler.StaleAfter = 30 * time.Minute
	}
	if c.Reconciler.BatchSize <= 0 {
		c.Reconciler.BatchSize = 50
	}
	if c.Referral.RefereeDays <= 0 {
		c.Referral.RefereeDays = 3
	}
	if c.Referral.ReferrerDays <= 0 {
		c.Referral.ReferrerDays = 7
	}
}

// checkProviders enforces per-provider credential completeness only for the
// providers actually switched on.
func (c *Config) checkProviders() error {
	p := c.Providers
	if p.YooKassa.Enabled && (p.YooKassa.ShopID == "" || p.YooKassa.SecretKey == "") {
		return fmt.Errorf("providers.yookassa: shop_id and secret_key are required when enabled")
	}
	if p.CryptoPay.Enabled && p.CryptoPay.Token == "" {
		return fmt.Errorf("providers.cryptopay: token is required when enabled")
	}
	if p.Tribute.Enabled && p.Tribute.APIKey == "" {
		return fmt.Errorf("providers.tribute: api_key is required when enabled")
	}
	if p.PhoneTransfer.Enabled && p.PhoneTransfer.PhoneNumber == "" {
		return fmt.Errorf("providers.phone_transfer: phone_number is required when enabled")
	}
	if p.PhoneTransfer.Enabled && c.Web.AdminJWTSecret == "" {
		return fmt.Errorf("web.admin_jwt_secret is required when phone transfers are enabled")
	}
	return nil
}
