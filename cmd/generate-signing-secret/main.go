package main

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/justinabrahms/chessduel/internal/auth"
)

func main() {
	var (
		size     int
		mint     bool
		secret   string
		userID   string
		username string
		ttl      time.Duration
	)
	flag.IntVar(&size, "bytes", 32, "Secret length in bytes")
	flag.BoolVar(&mint, "mint", false, "Issue a token signed with -secret instead of generating a secret")
	flag.StringVar(&secret, "secret", os.Getenv("CHESSD_AUTH_JWT_SECRET"), "Signing secret used by -mint")
	flag.StringVar(&userID, "user-id", "", "Subject of the minted token")
	flag.StringVar(&username, "username", "", "Username claim of the minted token")
	flag.DurationVar(&ttl, "ttl", 24*time.Hour, "Lifetime of the minted token")
	flag.Parse()

	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})

	if mint {
		tokens, err := auth.NewTokens(secret, ttl)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid signing secret")
		}
		if userID == "" {
			log.Fatal().Msg("-user-id is required with -mint")
		}
		token, exp, err := tokens.Issue(userID, username)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to issue token")
		}
		log.Info().Time("expiresAt", exp).Str("userID", userID).Msg("Token issued")
		fmt.Println(token)
		return
	}

	if size < 16 {
		log.Fatal().Int("bytes", size).Msg("Secret must be at least 16 bytes")
	}
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		log.Fatal().Err(err).Msg("Failed to generate secret")
	}

	fmt.Println("=== SIGNING SECRET (Keep this secret!) ===")
	fmt.Println("Set as auth.jwt_secret in config.yaml or CHESSD_AUTH_JWT_SECRET:")
	fmt.Println()
	fmt.Println(hex.EncodeToString(buf))
	fmt.Println()
	fmt.Println("=== IMPORTANT SECURITY NOTES ===")
	fmt.Println("1. NEVER commit the secret to version control")
	fmt.Println("2. Rotating the secret invalidates every issued token")
}
