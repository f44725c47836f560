// Command tsvload reads tab-separated dataset files, joins enrichment
// datasets onto a primary one, converts every row into a typed document and
// bulk-loads the documents into a document store.
package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	// register all backends with the storage factory.
	_ "tsvload/internal/storage/all"
)

func main() {
	// A missing .env is fine; its values only seed TSVLOAD_* variables.
	_ = godotenv.Load()

	if err := NewRootCommand(os.Stdin, os.Stdout, os.Stderr).Execute(); err != nil {
		log.Printf("tsvload: %v", err)
		os.Exit(1)
	}
}
