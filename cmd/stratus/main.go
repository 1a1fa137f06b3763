package main

import "github.com/stratusforge/stratus/pkg/cli"

func main() {
	cli.Main()
}
