package config

// Config is the full configuration tree. Values come from the config
// file, SHOPSETUP_* environment variables, and defaults, in that
// precedence order.
type Config struct {
	Shopify ShopifyConfig `mapstructure:"shopify" yaml:"shopify"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Uploads UploadsConfig `mapstructure:"uploads" yaml:"uploads"`
	Theme   ThemeConfig   `mapstructure:"theme" yaml:"theme"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// ShopifyConfig holds admin API connection settings.
type ShopifyConfig struct {
	// Shop is the myshopify domain, e.g. "acme-supply.myshopify.com".
	Shop string `mapstructure:"shop" yaml:"shop"`
	// Token is the admin access token. Supports ${ENV_VAR} references.
	Token             string `mapstructure:"token" yaml:"token"`
	APIVersion        string `mapstructure:"api_version" yaml:"api_version"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// UploadsConfig bounds the staged upload processing polls.
type UploadsConfig struct {
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds" yaml:"poll_interval_seconds"`
	MaxPolls            int `mapstructure:"max_polls" yaml:"max_polls"`
}

// ThemeConfig bounds the theme install processing polls.
type ThemeConfig struct {
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds" yaml:"poll_interval_seconds"`
	MaxPolls            int `mapstructure:"max_polls" yaml:"max_polls"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// DefaultConfig returns the configuration used when no file or
// environment overrides are present.
func DefaultConfig() *Config {
	return &Config{
		Shopify: ShopifyConfig{
			Token:             "${SHOPIFY_ADMIN_TOKEN}",
			APIVersion:        "2024-10",
			RequestsPerMinute: 120,
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8780,
		},
		Uploads: UploadsConfig{
			PollIntervalSeconds: 2,
			MaxPolls:            60,
		},
		Theme: ThemeConfig{
			PollIntervalSeconds: 2,
			MaxPolls:            60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
