// Command reconnode is the network reconnaissance node.
package main

import "github.com/anstrom/reconnode/cmd/cli"

// Set by ldflags: -X main.version=... -X main.commit=... -X main.buildTime=...
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildTime)
	cli.Execute()
}
