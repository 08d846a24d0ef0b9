package main

import (
	"os"

	"reprounzip/internal/cli"
)

func main() {
	os.Exit(cli.Main(os.Args[1:]))
}
