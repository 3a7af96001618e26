package main

import (
	"fmt"
	"os"

	"tenantgate/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "tenantgate: %v\n", err)
		os.Exit(1)
	}
}
