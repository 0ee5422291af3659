package main

import (
	"os"

	"github.com/nhle/mail2tasks/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
