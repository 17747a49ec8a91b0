// simctl drives the settlement simulator from the command line.
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/pamilerinsimon03/WemaTrust/internal/cli"
)

var version = "dev"

func main() {
	// OPS_JWT_SECRET and WEMATRUST_URL may live in a local .env file.
	_ = godotenv.Load()

	if err := cli.Execute(version); err != nil {
		os.Exit(1)
	}
}
