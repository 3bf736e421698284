package main

import (
	"github.com/peppermint/listing-service/internal/app"
	"github.com/peppermint/listing-service/internal/app/config"
)

func main() {
	cfg := config.MustLoad()
	app.Run(cfg)
}
