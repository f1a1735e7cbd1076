// Command gentypes regenerates Go row types from the backend's schema.
//
//	go run ./cmd/gentypes --out internal/dbtypes/types.go
package main

import (
	"fmt"
	"os"

	"github.com/jrsteele09/go-auth-starter/internal/config"
)

func main() {
	if err := newRootCmd(config.New()).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		os.Exit(1)
	}
}
