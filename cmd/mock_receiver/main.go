package main

import (
	"os"

	"github.com/fox-gonic/fox"
	"github.com/qiniu/alarmhook/internal/mockreceiver"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	log.Info().Msg("Starting mock webhook receiver")

	addr := ":9998"
	if port := os.Getenv("RECEIVER_PORT"); port != "" {
		addr = ":" + port
	}

	router := fox.New()
	mockreceiver.New().Register(router)

	log.Info().Msgf("Starting mock receiver on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatal().Err(err).Msg("Failed to start server")
	}
}
