//go:build dev

package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Dev builds pick up ./.env automatically. Variables already set in the
// environment win.
func loadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(".env")
}
