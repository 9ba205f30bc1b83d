// Command pipeline runs dataset ingestion from the command line or serves the
// HTTP trigger API.
package main

import (
	"os"

	_ "github.com/JonMunkholm/ingestpipe/internal/core/datasets" // Register datasets
)

func main() {
	os.Exit(execute(os.Args[1:]))
}
