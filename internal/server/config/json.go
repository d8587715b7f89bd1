package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/zoneboard/internal/flagx"
	"github.com/dmitrijs2005/zoneboard/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations use
// timex.Duration so both "15m" and integer nanoseconds are accepted.
type JsonConfig struct {
	Env           string `json:"env"`
	HTTPAddr      string `json:"http_addr"`
	GRPCAddr      string `json:"grpc_addr"`
	DatabaseDSN   string `json:"database_dsn"`
	RedisURL      string `json:"redis_url"`
	PublicBaseURL string `json:"magic_link_base_url"`

	SessionSecret     string `json:"session_secret"`
	CertificateSecret string `json:"certificate_secret"`

	AccessTokenTTL      timex.Duration `json:"access_token_ttl"`
	LoginTokenTTL       timex.Duration `json:"login_token_ttl"`
	RefreshTokenTTLDays int            `json:"refresh_token_ttl_days"`
	CertificateTTLDays  int            `json:"certificate_ttl_days"`

	MagicLinkMaxRequests int            `json:"magic_link_max_requests"`
	MagicLinkWindow      timex.Duration `json:"magic_link_window"`

	RequestTimeout  timex.Duration `json:"request_timeout"`
	ShutdownTimeout timex.Duration `json:"shutdown_timeout"`

	SettingsMaxBytes    int `json:"settings_max_bytes"`
	SettingsRetainCount int `json:"settings_retain_count"`

	PurgeInterval      timex.Duration `json:"purge_interval"`
	PurgeRetentionDays int            `json:"purge_retention_days"`

	AllowedProductIDs         []string `json:"allowed_product_ids"`
	EntitlementKey            string   `json:"entitlement_key"`
	GooglePlayPackageName     string   `json:"google_play_package"`
	GooglePlayCredentialsFile string   `json:"google_play_credentials"`

	SMTPHost     string `json:"smtp_host"`
	SMTPPort     int    `json:"smtp_port"`
	SMTPUsername string `json:"smtp_username"`
	SMTPPassword string `json:"smtp_password"`
	SMTPFrom     string `json:"smtp_from"`

	S3RootUser     string `json:"s3_root_user"`
	S3RootPassword string `json:"s3_root_password"`
	S3Bucket       string `json:"s3_bucket"`
	S3Region       string `json:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`
}

// parseJson loads the file named by -c/-config (or ZB_CONFIG_PATH) and
// copies every field that is present and non-zero into config. Without a
// path nothing happens; an unreadable or invalid file panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigPath(os.Args[1:])

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.Env, c.Env)
	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.GRPCAddr, c.GRPCAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.RedisURL, c.RedisURL)
	setString(&config.PublicBaseURL, c.PublicBaseURL)

	setString(&config.SessionSecret, c.SessionSecret)
	setString(&config.CertificateSecret, c.CertificateSecret)

	setDuration(&config.AccessTokenTTL, c.AccessTokenTTL)
	setDuration(&config.LoginTokenTTL, c.LoginTokenTTL)
	setInt(&config.RefreshTokenTTLDays, c.RefreshTokenTTLDays)
	setInt(&config.CertificateTTLDays, c.CertificateTTLDays)

	setInt(&config.MagicLinkMaxRequests, c.MagicLinkMaxRequests)
	setDuration(&config.MagicLinkWindow, c.MagicLinkWindow)

	setDuration(&config.RequestTimeout, c.RequestTimeout)
	setDuration(&config.ShutdownTimeout, c.ShutdownTimeout)

	setInt(&config.SettingsMaxBytes, c.SettingsMaxBytes)
	setInt(&config.SettingsRetainCount, c.SettingsRetainCount)

	setDuration(&config.PurgeInterval, c.PurgeInterval)
	setInt(&config.PurgeRetentionDays, c.PurgeRetentionDays)

	if len(c.AllowedProductIDs) > 0 {
		config.AllowedProductIDs = c.AllowedProductIDs
	}
	setString(&config.EntitlementKey, c.EntitlementKey)
	setString(&config.GooglePlayPackageName, c.GooglePlayPackageName)
	setString(&config.GooglePlayCredentialsFile, c.GooglePlayCredentialsFile)

	setString(&config.SMTPHost, c.SMTPHost)
	setInt(&config.SMTPPort, c.SMTPPort)
	setString(&config.SMTPUsername, c.SMTPUsername)
	setString(&config.SMTPPassword, c.SMTPPassword)
	setString(&config.SMTPFrom, c.SMTPFrom)

	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
