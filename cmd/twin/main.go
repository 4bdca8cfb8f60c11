package main

import (
	"os"

	"github.com/comigor/twin/internal/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logger.L.Error("twin failed", "error", err)
		os.Exit(1)
	}
}
