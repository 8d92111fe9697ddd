// Command storyloop drives a story backlog through implementation, publication,
// review and post-merge verification, one iteration at a time.
package main

import "storyloop/internal/cli"

func main() {
	cli.Execute()
}
