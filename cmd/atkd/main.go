// Command atkd is the daemon entrypoint: it defers to cmd.Execute for
// cobra command dispatch (currently one subcommand, serve).
package main

import "github.com/mellowtone/atkd/cmd"

func main() {
	cmd.Execute()
}
