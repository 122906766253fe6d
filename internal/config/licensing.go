package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// LicensingConfig is the hot-reloadable licensing policy.
type LicensingConfig struct {
	// LazyInviteExpiry excludes pending invitations past their expiry from
	// seat counts without waiting for the sweep job.
	LazyInviteExpiry bool `mapstructure:"lazyInviteExpiry"`
	// DemoExpiredSurfaces are the only surfaces a demo company keeps once its
	// trial has ended.
	DemoExpiredSurfaces []string `mapstructure:"demoExpiredSurfaces"`
	// Packages maps a package type to the surfaces it exposes.
	Packages map[string][]string `mapstructure:"packages"`
}

var requiredPackages = []string{"full_access", "operations", "troubleshooting", "demo"}

func DefaultLicensingConfig() LicensingConfig {
	all := []string{
		"dashboard", "work_orders", "equipment", "preventive_maintenance", "parts",
		"rca", "troubleshooting", "training", "users", "billing", "settings",
	}
	return LicensingConfig{
		LazyInviteExpiry:    true,
		DemoExpiredSurfaces: []string{"billing", "settings"},
		Packages: map[string][]string{
			"full_access": all,
			"operations": {
				"dashboard", "work_orders", "equipment", "preventive_maintenance", "parts",
				"rca", "training", "users", "billing", "settings",
			},
			"troubleshooting": {"troubleshooting"},
			"demo":            all,
		},
	}
}

type LicensingConfigHolder struct {
	current atomic.Value // holds LicensingConfig
}

// NewStaticLicensingConfigHolder serves a fixed policy without watching files.
func NewStaticLicensingConfigHolder(cfg LicensingConfig) *LicensingConfigHolder {
	holder := &LicensingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewLicensingConfigHolder(log *zap.Logger) (*LicensingConfigHolder, error) {
	log = log.Named("config.licensing")
	v := viper.New()

	v.SetConfigName("licensing")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/plantops")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PLANTOPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultLicensingConfig()
	v.SetDefault("licensing.lazyInviteExpiry", defaults.LazyInviteExpiry)
	v.SetDefault("licensing.demoExpiredSurfaces", defaults.DemoExpiredSurfaces)
	v.SetDefault("licensing.packages", defaults.Packages)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileFound = false
	}

	cfg, err := decodeLicensing(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticLicensingConfigHolder(cfg)
	log.Info("licensing policy loaded",
		zap.Bool("from_file", fileFound),
		zap.Bool("lazy_invite_expiry", cfg.LazyInviteExpiry),
	)

	if fileFound {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := decodeLicensing(v)
			if err != nil {
				log.Warn("licensing policy reload rejected", zap.String("file", e.Name), zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("licensing policy reloaded", zap.String("file", e.Name))
		})
	}

	return holder, nil
}

func (h *LicensingConfigHolder) Get() LicensingConfig {
	return h.current.Load().(LicensingConfig)
}

func decodeLicensing(v *viper.Viper) (LicensingConfig, error) {
	var cfg LicensingConfig
	if err := v.UnmarshalKey("licensing", &cfg); err != nil {
		return LicensingConfig{}, err
	}
	if err := ValidateLicensingConfig(cfg); err != nil {
		return LicensingConfig{}, err
	}
	return cfg, nil
}

func ValidateLicensingConfig(cfg LicensingConfig) error {
	for _, pkg := range requiredPackages {
		if len(cfg.Packages[pkg]) == 0 {
			return fmt.Errorf("licensing.packages.%s cannot be empty", pkg)
		}
	}
	return nil
}
