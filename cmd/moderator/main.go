package main

import (
	"os"

	"github.com/whisper/comment-moderator/cmd/moderator/cmd"
)

// Version information, set with -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	cmd.SetVersion(version, commit)
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
