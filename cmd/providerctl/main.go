// Package main is the operator CLI for the provider registry: it lists the supported
// networks and checks that configured networks build and answer.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
