package main

import (
	"os"

	"github.com/enterprise-universe/universe-gateway/cmd/universe/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
