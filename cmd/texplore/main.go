// Command texplore runs a model-based agent against a simulated environment
// and inspects stored policies.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/sw965/texplore/config"
	"github.com/sw965/texplore/factored"
	"github.com/sw965/texplore/planner"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "texplore:", err)
		if isConfigError(err) {
			os.Exit(-1)
		}
		os.Exit(1)
	}
}

func isConfigError(err error) bool {
	return errors.Is(err, config.ErrInvalidConfig) ||
		errors.Is(err, planner.ErrInvalidConfig) ||
		errors.Is(err, factored.ErrInvalidOptions)
}
