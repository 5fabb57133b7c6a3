// Package main mints operator bearer tokens for the /api/ops endpoints.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/aqforecast/aqforecast/internal/auth"
)

func main() {
	_ = godotenv.Load()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	subject := flag.String("subject", "", "operator identifier placed in the sub claim")
	expiry := flag.Duration("expiry", auth.DefaultAccessTokenExpiry, "token lifetime")
	flag.Parse()

	if *subject == "" {
		log.Fatal().Msg("-subject is required")
	}

	key := os.Getenv("JWT_SIGNING_KEY")
	if key == "" {
		log.Fatal().Msg("JWT_SIGNING_KEY must be set")
	}

	svc := auth.NewJWTService(auth.JWTConfig{
		SigningKey: key,
		Expiry:     *expiry,
	})

	token, expiresAt, err := svc.GenerateAccessToken(*subject)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to sign token")
	}

	log.Info().
		Str("subject", *subject).
		Str("expires_at", expiresAt.UTC().Format(time.RFC3339)).
		Msg("operator token issued")

	fmt.Println(token)
}
