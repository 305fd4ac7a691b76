package main

import "github.com/apx-embedded/goapx/cmd/apxrouter/cmd"

func main() {
	cmd.Execute()
}
