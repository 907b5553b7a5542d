package main

import (
	"go-favorites-archive/cmd/favorites-archive/cmd"
)

func main() {
	// Execute the root command (defined in cmd/root.go)
	cmd.Execute()
}
