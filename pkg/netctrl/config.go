package netctrl

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Target             string        `mapstructure:"target"`
	MatchMode          string        `mapstructure:"match_mode"` // exact, prefix or substring
	RulePrefix         string        `mapstructure:"rule_prefix"`
	Interface          string        `mapstructure:"interface"`
	CommandTimeout     time.Duration `mapstructure:"command_timeout"`
	ConfirmSetup       bool          `mapstructure:"confirm_setup"`
	APIListenAddr      string        `mapstructure:"api_listen_address"`
	EnableManagement   bool          `mapstructure:"enable_management"`
	ManagementApp      string        `mapstructure:"management_app"`
	ManagementPassword string        `mapstructure:"management_password"`
	LogDBFile          string        `mapstructure:"log_db_file"`
	JournalDBFile      string        `mapstructure:"journal_db_file"`
	ConfigFile         string        `mapstructure:"config_file"`
}

func DefaultConfig() *Config {
	return &Config{
		MatchMode:        "exact",
		RulePrefix:       "netctrl",
		CommandTimeout:   10 * time.Second,
		ConfirmSetup:     false,
		APIListenAddr:    "", // disabled unless configured
		EnableManagement: true,
		ManagementApp:    "netctrl",
		LogDBFile:        "logs.db",
		JournalDBFile:    "journal.db",
		ConfigFile:       "netctrl", // netctrl.yaml
	}
}

// LoadConfig loads configuration from file and environment, in that order of
// precedence below defaults. CLI flags override individual fields afterwards.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	viper.SetConfigName(cfg.ConfigFile)
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/netctrl-go/")
	viper.AddConfigPath("$HOME/.netctrl-go")
	viper.SetEnvPrefix("NETCTRL") // NETCTRL_...
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file was found but another error was produced
			return nil, err
		}
		// No config file is fine; defaults and env apply.
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
