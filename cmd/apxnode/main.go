package main

import "github.com/apx-embedded/goapx/cmd/apxnode/cmd"

func main() {
	cmd.Execute()
}
