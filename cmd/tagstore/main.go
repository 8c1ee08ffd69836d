// Package main provides the entry point for the tagstore CLI.
package main

import (
	"os"

	"github.com/Mariyan2/AI-Powered-Clothing-Tagging-Marketplace/cmd/tagstore/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
