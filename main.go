// Package main is the entry point for the rebundle CLI.
package main

import "gooze.dev/pkg/rebundle/cmd"

func main() {
	cmd.Execute()
}
