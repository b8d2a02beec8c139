// Package main is the entry point for the wakeword CLI.
//
// Usage:
//
//	wakeword [flags] <command> [args]
//
// Commands:
//
//	serve    - HTTP API (upload, train, detect, list, download)
//	extract  - Print MFCC features of an audio file
//	match    - Nearest stored template for an audio file
//	train    - Store labeled samples and retrain the classifier
//	detect   - Classify an audio file
//	labels   - Stored sample count per label
//	export   - Write the dataset as a zip archive
//	locate   - Find a template clip inside a longer recording
//	config   - Print the effective configuration
package main

import (
	"fmt"
	"os"

	"github.com/zrma/go-wakeword/cmd/wakeword/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
