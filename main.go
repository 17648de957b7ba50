package main

import (
	"os"

	"github.com/serroba/sketchbook/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
