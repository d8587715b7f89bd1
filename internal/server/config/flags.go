package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/zoneboard/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-g string   gRPC health bind address (e.g., ":50051")
//	-d string   PostgreSQL DSN
//	-r string   Redis URL, empty disables magic link rate limiting
//	-s string   session (access token) secret
//	-k string   entitlement certificate secret
//	-t int      access token validity, minutes
//	-l int      login token validity, minutes
//	-e string   environment: local, dev or prod
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, so -c/-config stays with the JSON loader.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-g", "-d", "-r", "-s", "-k", "-t", "-l", "-e"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run the HTTP API")
	fs.StringVar(&config.GRPCAddr, "g", config.GRPCAddr, "address and port to run the gRPC health endpoint")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.RedisURL, "r", config.RedisURL, "redis URL")
	fs.StringVar(&config.SessionSecret, "s", config.SessionSecret, "session secret")
	fs.StringVar(&config.CertificateSecret, "k", config.CertificateSecret, "certificate secret")

	accessTokenTTL := fs.Int("t", int(config.AccessTokenTTL.Minutes()), "access token validity (in minutes)")
	loginTokenTTL := fs.Int("l", int(config.LoginTokenTTL.Minutes()), "login token validity (in minutes)")

	fs.StringVar(&config.Env, "e", config.Env, "environment (local, dev, prod)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenTTL = time.Duration(*accessTokenTTL) * time.Minute
	config.LoginTokenTTL = time.Duration(*loginTokenTTL) * time.Minute
}
