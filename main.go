package main

import (
	"embed"
	"io/fs"
	"log"

	"media-dubber/internal/bootstrap"
)

//go:embed frontend
var embedded embed.FS

func main() {
	assets, err := fs.Sub(embedded, "frontend")
	if err != nil {
		log.Fatalf("frontend assets: %v", err)
	}

	app, err := bootstrap.NewWithAssets(assets)
	if err != nil {
		log.Fatalf("bootstrap app: %v", err)
	}

	if err := app.Run(); err != nil {
		log.Fatalf("run app: %v", err)
	}
}
