package main

import (
	"log"

	"nura/config"
	"nura/server"
)

func main() {
	cfg := config.MustLoad()
	app := &server.App{}
	if err := app.Initialize(cfg); err != nil {
		log.Fatal(err)
	}
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
