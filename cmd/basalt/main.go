package main

import "github.com/basalthq/basalt/internal/cli"

func main() {
	cli.Execute()
}
