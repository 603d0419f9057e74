// Command token issues a bearer token for local development and smoke tests.
package main

import (
	"flag"
	"fmt"

	"github.com/safar/arun-store/internal/auth"
	"github.com/safar/arun-store/internal/config"
	"github.com/safar/arun-store/internal/logging"
)

func main() {
	userID := flag.Int64("user", 0, "user id to put in the token subject")
	staff := flag.Bool("staff", false, "issue a staff token")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		panic(err)
	}

	if *userID <= 0 {
		log.Fatal("Usage: token -user <id> [-staff]")
	}

	token, err := auth.NewTokenManager(cfg.Auth).Issue(*userID, *staff)
	if err != nil {
		log.Fatalf("Issue token: %v", err)
	}

	fmt.Println(token)
}
