package main

import (
	"aklineservice/cmd/trading/app"
	"aklineservice/pkg/log"
)

func main() {
	logConfig := log.DefaultConfig()
	logConfig.LogDir = "logs"
	logConfig.Level = "info"
	log.InitWithConfig(logConfig)

	log.Info("kline service starting: version=%s log_dir=%s log_level=%s", "1.0.0", logConfig.LogDir, logConfig.Level)

	a := app.NewApp()
	if err := a.Run(); err != nil {
		log.Fatal("failed to start application: %v", err)
	}

	log.Info("kline service stopped")
}
