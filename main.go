package main

import (
	"github.com/sammcj/llmem/cmd"
)

// Version is set during the build process with -ldflags "-X main.Version=..."
var Version string

func main() {
	if Version != "" {
		cmd.Version = Version
	}
	cmd.Execute()
}
