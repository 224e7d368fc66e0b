package main

import "github.com/polysync-labs/reconciler/internal/cli"

func main() {
	cli.Execute()
}
