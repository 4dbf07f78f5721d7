package main

import "github.com/blackmichael/skyreader/internal/cli"

func main() {
	cli.Execute()
}
