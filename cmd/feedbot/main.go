// Package main is the entry point for the feedbot syndication bot: a
// one-shot batch CLI (§4.13), not a long-lived daemon, so main only has to
// hand off to the cobra dispatcher and translate its result into an exit
// code.
package main

import (
	"os"

	"feedbot/internal/adapters/cli"
)

func main() {
	os.Exit(cli.Execute())
}
