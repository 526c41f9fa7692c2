// Command swsweep removes the caches and service worker registrations of one
// or more origins, to recover browsers stuck on a broken worker update.
package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("✗ swsweep failed")
		os.Exit(1)
	}
}
