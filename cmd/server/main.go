package main

import (
	"fmt"
	"os"

	"github.com/waveline/waveline-backend/internal/app"
	"github.com/waveline/waveline-backend/internal/platform/envutil"
)

func main() {
	a, err := app.New()
	if err != nil {
		fmt.Printf("failed to initialize app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	a.Start()

	port := envutil.Str("PORT", "8080")
	a.Log.Info("server listening", "port", port)
	if err := a.Run(":" + port); err != nil {
		a.Log.Error("server exited", "error", err)
		os.Exit(1)
	}
}
