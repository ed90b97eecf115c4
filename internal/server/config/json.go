package config

import (
	"time"

	"github.com/sarbazinfo/sarbaz-server/internal/filex"
	"github.com/sarbazinfo/sarbaz-server/internal/flagx"
	"github.com/sarbazinfo/sarbaz-server/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// It uses timex.Duration for interval fields, which allows parsing both
// string values such as "1s" and integer nanoseconds.
//
// This struct is an intermediate DTO (Data Transfer Object) used only for
// reading JSON configuration files. After unmarshalling, its fields are
// copied into the runtime Config struct which uses time.Duration.
type JsonConfig struct {
	EndpointAddr                 string         `json:"endpoint_addr"`
	DatabaseDSN                  string         `json:"database_dsn"`
	SecretKey                    string         `json:"secret_key"`
	JWTIssuer                    string         `json:"jwt_issuer"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
	IdentityTimeout              timex.Duration `json:"identity_timeout"`
	GoogleClientID               string         `json:"google_client_id"`
	GooglePackageName            string         `json:"google_package_name"`
	GoogleSubscriptionID         string         `json:"google_subscription_id"`
	GoogleCredentialsFile        string         `json:"google_credentials_file"`
	AppleBundleID                string         `json:"apple_bundle_id"`
	AppleProductID               string         `json:"apple_product_id"`
	AppleRootCertFile            string         `json:"apple_root_cert_file"`
	VendorTimeout                timex.Duration `json:"vendor_timeout"`
	SyncInterval                 timex.Duration `json:"sync_interval"`
	AIFreeDailyLimit             int            `json:"ai_free_daily_limit"`
	AIUpstreamURL                string         `json:"ai_upstream_url"`
	AIUpstreamKey                string         `json:"ai_upstream_key"`
	AIUpstreamTimeout            timex.Duration `json:"ai_upstream_timeout"`
	AppInfoFile                  string         `json:"app_info_file"`
	ShutdownTimeout              timex.Duration `json:"shutdown_timeout"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The lookup order for the JSON file path is:
//
//	The -c or -config command-line flags.
//	If it is not set, no JSON file is loaded.
//
// If the file path is found, parseJson reads and unmarshals it into a
// JsonConfig and copies the values present in the file into the target
// Config. Fields absent from the file keep their current values, so a
// partial file only overrides what it names. If the file cannot be read or
// contains invalid JSON, the function panics.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	if err := filex.LoadJSON(jsonConfigFile, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddr, c.EndpointAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.JWTIssuer, c.JWTIssuer)
	setDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	setDuration(&config.RefreshTokenValidityDuration, c.RefreshTokenValidityDuration)
	setDuration(&config.IdentityTimeout, c.IdentityTimeout)
	setString(&config.GoogleClientID, c.GoogleClientID)
	setString(&config.GooglePackageName, c.GooglePackageName)
	setString(&config.GoogleSubscriptionID, c.GoogleSubscriptionID)
	setString(&config.GoogleCredentialsFile, c.GoogleCredentialsFile)
	setString(&config.AppleBundleID, c.AppleBundleID)
	setString(&config.AppleProductID, c.AppleProductID)
	setString(&config.AppleRootCertFile, c.AppleRootCertFile)
	setDuration(&config.VendorTimeout, c.VendorTimeout)
	setDuration(&config.SyncInterval, c.SyncInterval)
	if c.AIFreeDailyLimit != 0 {
		config.AIFreeDailyLimit = c.AIFreeDailyLimit
	}
	setString(&config.AIUpstreamURL, c.AIUpstreamURL)
	setString(&config.AIUpstreamKey, c.AIUpstreamKey)
	setDuration(&config.AIUpstreamTimeout, c.AIUpstreamTimeout)
	setString(&config.AppInfoFile, c.AppInfoFile)
	setDuration(&config.ShutdownTimeout, c.ShutdownTimeout)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = time.Duration(v.Duration)
	}
}
