package main

import (
	"embed"
	"fmt"
	"io/fs"
	"os"

	"github.com/Warzone2100/warzone2100-sub038/pkg/app"
)

//go:embed samples
var embeddedSamples embed.FS

func main() {
	samples, err := fs.Sub(embeddedSamples, "samples")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	application := app.New(samples)
	if err := application.Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
