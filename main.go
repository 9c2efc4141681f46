// Package main is the entry point for the querypilot CLI, a natural-language
// question answering assistant for relational databases.
package main

import (
	"querypilot/cli/cmd"
)

func main() {
	cmd.Execute()
}
