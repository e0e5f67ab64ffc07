// Package main provides the operator CLI for the AlreadyDone server.
package main

import "github.com/alreadydone/alreadydone-server/cmd/alreadyctl/commands"

func main() {
	commands.Execute()
}
