package main

import (
	"flag"

	"github.com/fisker/zaudit-backend/internal/app"
)

func main() {
	cfgPath := flag.String("config", "", "配置文件路径（默认 config/config.yaml，可用 ZAUDIT_CONFIG 覆盖）")
	flag.Parse()

	// Initialize application
	application, err := app.Initialize(*cfgPath)
	if err != nil {
		panic(err)
	}

	// Start server
	app.StartServer(application)
}
