package infra

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"dutch_auction/internal/domain"
	"dutch_auction/pkg/chain"
)

// Config holds the full node configuration. Prices are decimal coin strings
// and are converted to value units once, at load time.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Auction struct {
		Program       string `yaml:"program"`
		Owner         string `yaml:"owner"`
		Registry      string `yaml:"registry"`
		TokenID       uint64 `yaml:"token_id"`
		StartingPrice string `yaml:"starting_price"`
		DiscountRate  string `yaml:"discount_rate"`
		FloorPrice    string `yaml:"floor_price"`
		DurationSec   uint64 `yaml:"duration_sec"`
	} `yaml:"auction"`

	Node struct {
		ListenAddr      string  `yaml:"listen_addr"`
		RegistryMode    string  `yaml:"registry_mode"` // "remote", "inproc", "mock"
		RegistryWSURL   string  `yaml:"registry_ws_url"`
		InboxSize       int     `yaml:"inbox_size"`
		RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
		RateBurst       int     `yaml:"rate_burst"`
	} `yaml:"node"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the config file, applies environment
// overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.Auction.Program == "" {
		return fmt.Errorf("auction program address is required")
	}
	if c.Node.ListenAddr == "" {
		return fmt.Errorf("node listen address is required")
	}
	switch c.Node.RegistryMode {
	case "remote":
		if c.Node.RegistryWSURL == "" {
			return fmt.Errorf("registry_ws_url is required in remote mode")
		}
	case "inproc", "mock", "":
	default:
		return fmt.Errorf("unknown registry mode %q", c.Node.RegistryMode)
	}
	if c.Node.InboxSize <= 0 {
		c.Node.InboxSize = 256
	}
	if c.Node.RateLimitPerSec <= 0 {
		c.Node.RateLimitPerSec = 20
	}
	if c.Node.RateBurst <= 0 {
		c.Node.RateBurst = 10
	}

	// The auction section must parse into a valid domain config.
	if _, _, err := c.AuctionConfig(); err != nil {
		return err
	}
	return nil
}

// AuctionConfig converts the auction section into the domain config plus the
// owner address.
func (c *Config) AuctionConfig() (domain.AuctionConfig, chain.ActorID, error) {
	starting, err := chain.ParseValue(orZero(c.Auction.StartingPrice))
	if err != nil {
		return domain.AuctionConfig{}, "", fmt.Errorf("starting_price: %w", err)
	}
	rate, err := chain.ParseValue(orZero(c.Auction.DiscountRate))
	if err != nil {
		return domain.AuctionConfig{}, "", fmt.Errorf("discount_rate: %w", err)
	}
	floor, err := chain.ParseValue(orZero(c.Auction.FloorPrice))
	if err != nil {
		return domain.AuctionConfig{}, "", fmt.Errorf("floor_price: %w", err)
	}

	cfg := domain.AuctionConfig{
		Registry:      chain.ActorID(c.Auction.Registry),
		TokenID:       chain.TokenID(c.Auction.TokenID),
		StartingPrice: starting,
		DiscountRate:  rate,
		FloorPrice:    floor,
		DurationSec:   c.Auction.DurationSec,
	}
	if err := cfg.Validate(); err != nil {
		return domain.AuctionConfig{}, "", err
	}
	owner := chain.ActorID(c.Auction.Owner)
	if owner.IsZero() {
		return domain.AuctionConfig{}, "", fmt.Errorf("auction owner is required")
	}
	return cfg, owner, nil
}

// ProgramID returns the auction program's own on-chain address.
func (c *Config) ProgramID() chain.ActorID {
	return chain.ActorID(c.Auction.Program)
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

// overrideWithEnv lets environment variables take precedence over the file.
func overrideWithEnv(cfg *Config) {
	if v := os.Getenv("AUCTIOND_LISTEN_ADDR"); v != "" {
		cfg.Node.ListenAddr = v
	}
	if v := os.Getenv("AUCTIOND_REGISTRY_WS_URL"); v != "" {
		cfg.Node.RegistryWSURL = v
	}
	if v := os.Getenv("AUCTIOND_OWNER"); v != "" {
		cfg.Auction.Owner = v
	}
	if v := os.Getenv("AUCTIOND_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
