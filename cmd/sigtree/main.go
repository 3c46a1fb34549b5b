// Command sigtree builds a signature-annotated R-tree over a geo store and
// validates it against a full-text oracle.
//
//	sigtree import -i dataset.json --db ./data/store
//	sigtree build -i ./data/store -t qgram --check --out s3://bucket/indexes
package main

import (
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// Object store credentials may live in a local .env file.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
