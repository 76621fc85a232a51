package main

import (
	"log"

	"github.com/m3rciful/formbot/bots/formbot/app"
	"github.com/m3rciful/formbot/bots/formbot/config"
	corecmd "github.com/m3rciful/formbot/core/cmd"
)

func main() {
	err := corecmd.Run(corecmd.Options{
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			cfg, err := config.Load(path)
			if err != nil {
				return nil, err
			}
			return cfg, nil
		},
		Bootstrap: app.BootstrapCarrier,
	})
	if err != nil {
		log.Fatal(err)
	}
}
