package main

import (
	"fmt"
	"os"

	"github.com/blackwell-systems/docmirror/internal/app"
	"github.com/blackwell-systems/docmirror/internal/fault"
	"github.com/blackwell-systems/docmirror/internal/output"
)

func main() {
	if err := app.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, output.Fail("Error: %v", err))
		if remedy := fault.RemedyOf(err); remedy != "" {
			fmt.Fprintf(os.Stderr, "Remedy: %s\n", remedy)
		}
		os.Exit(fault.ExitCode(err))
	}
}
