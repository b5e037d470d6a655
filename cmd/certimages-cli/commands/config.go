package commands

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	"certimages-backend/lib/configutil"
	"certimages-backend/lib/imageurl"
	"certimages-backend/lib/restyutil"
	"certimages-backend/lib/scrapers/certpage"
	"certimages-backend/lib/sqliteutil"
	"certimages-backend/lib/transport"
	"certimages-backend/services/certimages"
	"certimages-backend/services/certimages/db"
)

const (
	configName = "certimages.json5"
	proxiesEnv = "CERTIMAGES_PROXIES"
)

type Config struct {
	Proxies           []string `json:"proxies"`
	InsecureTransport bool     `json:"insecure_transport"`
	PrimaryBaseURL    string   `json:"primary_base_url"`
	// Mirrors replaces the default mirror list when set.
	Mirrors    []string `json:"mirrors"`
	CDNHost    string   `json:"cdn_host"`
	CDNBaseURL string   `json:"cdn_base_url"`

	Tier                 string `json:"tier"`
	Mode                 string `json:"mode"`
	Workers              int    `json:"workers"`
	MaxImages            int    `json:"max_images"`
	PreviewFallbackLimit int    `json:"preview_fallback_limit"`
	DisableProbing       bool   `json:"disable_probing"`

	MaxAttempts      int `json:"max_attempts"`
	ThrottleMillis   int `json:"throttle_ms"`
	RetryDelayMillis int `json:"retry_delay_ms"`

	Database string `json:"database"`
}

var defaultConfig = Config{
	PrimaryBaseURL: certpage.DefaultPrimaryBaseURL,
	CDNHost:        "cloudfront.net",
	CDNBaseURL:     certimages.DefaultCDNBaseURL,
	Tier:           string(imageurl.Original),
	Mode:           string(certimages.Download),
	Workers:        4,
}

// loadConfig merges the config file over the defaults and extends the
// proxy pool from the environment (.env files included).
func loadConfig() (Config, error) {
	var cfg Config
	var err error
	if configPath != "" {
		cfg, err = configutil.ReadConfig[Config](configPath)
		if err != nil {
			return Config{}, fmt.Errorf("read %s: %w", configPath, err)
		}
		cfg, err = configutil.WithDefaults(cfg, defaultConfig)
	} else {
		cfg, err = configutil.ReadWithDefaults(configName, defaultConfig)
	}
	if err != nil {
		return Config{}, err
	}

	err = configutil.LoadEnv(".env", ".env.local")
	if err != nil {
		return Config{}, err
	}
	cfg.Proxies = append(cfg.Proxies, configutil.SplitList(os.Getenv(proxiesEnv))...)

	if dbPath != "" {
		cfg.Database = dbPath
	}
	return cfg, nil
}

func (c Config) serviceOptions() (certimages.Options, error) {
	opts := certimages.Options{
		Transport: transport.Options{
			Proxies:           c.Proxies,
			InsecureTransport: c.InsecureTransport,
			MaxAttempts:       c.MaxAttempts,
			RetryDelay:        time.Duration(c.RetryDelayMillis) * time.Millisecond,
			ThrottleInterval:  time.Duration(c.ThrottleMillis) * time.Millisecond,
		},
		Page: certpage.Options{
			PrimaryBaseURL: c.PrimaryBaseURL,
			Mirrors:        c.Mirrors,
		},
		CDNHost:              c.CDNHost,
		CDNBaseURL:           c.CDNBaseURL,
		DisableProbing:       c.DisableProbing,
		PreviewFallbackLimit: c.PreviewFallbackLimit,
		MaxImages:            c.MaxImages,
	}
	if dumpDir != "" {
		out, err := restyutil.NewFilesystemOutput(dumpDir)
		if err != nil {
			return certimages.Options{}, err
		}
		opts.Transport.InstrumentOutput = out
	}
	return opts, nil
}

func openDatabase(path string) (*sql.DB, error) {
	if path == "" {
		return nil, nil
	}
	return sqliteutil.OpenDB(db.Schema, path)
}

// newService returns the configured service and a cleanup func.
func newService(cfg Config) (*certimages.Service, func(), error) {
	opts, err := cfg.serviceOptions()
	if err != nil {
		return nil, nil, err
	}
	database, err := openDatabase(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", cfg.Database, err)
	}
	service, err := certimages.NewService(database, opts)
	if err != nil {
		if database != nil {
			database.Close()
		}
		return nil, nil, err
	}
	return service, func() {
		if database != nil {
			database.Close()
		}
	}, nil
}

// tierAndMode resolves the flags over the config values.
func tierAndMode(cfg Config, tierFlag, modeFlag string) (imageurl.Tier, certimages.Mode, error) {
	if tierFlag == "" {
		tierFlag = cfg.Tier
	}
	if modeFlag == "" {
		modeFlag = cfg.Mode
	}
	tier, err := imageurl.ParseTier(tierFlag)
	if err != nil {
		return "", "", err
	}
	mode, err := certimages.ParseMode(modeFlag)
	if err != nil {
		return "", "", err
	}
	return tier, mode, nil
}
