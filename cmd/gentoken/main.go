// gentoken mints a session token for calling the completion API locally.
//
//	gentoken --user 5f1b8e3c2a4d6e0f1a2b3c4d --username camper --ttl 24h
//
// The signing secret comes from --secret, or JWT_SECRET in the environment
// or a .env file.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/terra-clan/challenge-tracker/internal/auth"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		userID   string
		username string
		secret   string
		ttl      time.Duration
	)

	flagSet := pflag.NewFlagSet("gentoken", pflag.ContinueOnError)
	flagSet.StringVarP(&userID, "user", "u", "", "user id to put in the sub claim (required)")
	flagSet.StringVar(&username, "username", "", "username claim")
	flagSet.StringVar(&secret, "secret", "", "signing secret (default: $JWT_SECRET)")
	flagSet.DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	if userID == "" {
		return errors.New("--user is required")
	}

	if secret == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load .env: %w", err)
		}
		secret = os.Getenv("JWT_SECRET")
	}
	if secret == "" {
		return errors.New("no signing secret: pass --secret or set JWT_SECRET")
	}

	token, err := auth.IssueToken(secret, userID, username, ttl)
	if err != nil {
		return err
	}

	fmt.Println(token)
	return nil
}
