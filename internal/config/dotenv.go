package config

import (
	"log"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads a .env file into the process environment before Load
// reads it, trying ../.env then .env — the same two-location fallback
// the teacher's cmd/server and cmd/streamer entrypoints use so the
// binary works whether it's run from the repo root or its own cmd
// directory. Failing to load either file is not an error: if neither
// loads (missing or malformed), it logs one line and carries on with
// the process environment.
func LoadDotEnv() {
	if err := godotenv.Load("../.env"); err != nil {
		if err := godotenv.Load(".env"); err != nil {
			log.Printf("config: no .env file found, using defaults and process environment")
		}
	}
}
