package config

import (
	"flag"
	"os"
	"time"

	"github.com/sarbazinfo/sarbaz-server/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-t int      access token validity, minutes
//	-r int      refresh token validity, minutes
//	-e string   Google OAuth client id
//	-g string   Google service account credentials file
//	-p string   Apple root certificate file (PEM or DER)
//	-u string   AI upstream URL
//	-k string   AI upstream API key
//	-l int      free-tier daily AI request limit
//	-f string   app info JSON file
//	-n int      entitlement sync interval, minutes
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes using
//     flagx.FilterArgs, avoiding collisions with other components.
//   - Duration flags are accepted as integers in minutes and then converted
//     to time.Duration values.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-t", "-r", "-e", "-g", "-p", "-u", "-k", "-l", "-f", "-n"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddr, "a", config.EndpointAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	accessTokenValidityDuration := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access_token_validity_duration (in minutes)")
	refreshTokenValidityDuration := fs.Int("r", int(config.RefreshTokenValidityDuration.Minutes()), "refresh_token_validity_duration (in minutes)")

	fs.StringVar(&config.GoogleClientID, "e", config.GoogleClientID, "Google OAuth client id")
	fs.StringVar(&config.GoogleCredentialsFile, "g", config.GoogleCredentialsFile, "Google service account credentials file")
	fs.StringVar(&config.AppleRootCertFile, "p", config.AppleRootCertFile, "Apple root certificate file")
	fs.StringVar(&config.AIUpstreamURL, "u", config.AIUpstreamURL, "AI upstream URL")
	fs.StringVar(&config.AIUpstreamKey, "k", config.AIUpstreamKey, "AI upstream API key")
	fs.IntVar(&config.AIFreeDailyLimit, "l", config.AIFreeDailyLimit, "free-tier daily AI request limit")
	fs.StringVar(&config.AppInfoFile, "f", config.AppInfoFile, "app info JSON file")

	syncInterval := fs.Int("n", int(config.SyncInterval.Minutes()), "sync_interval (in minutes)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenValidityDuration = time.Duration(*accessTokenValidityDuration) * time.Minute
	config.RefreshTokenValidityDuration = time.Duration(*refreshTokenValidityDuration) * time.Minute
	config.SyncInterval = time.Duration(*syncInterval) * time.Minute
}
