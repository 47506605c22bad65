package main

import (
	"github.com/dossierlabs/dossier-messaging/internal/cli"
)

func main() {
	cli.Execute()
}
