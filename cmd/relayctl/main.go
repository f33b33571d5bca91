package main

import (
	"github.com/arcadelink/relay/internal/cli"
)

func main() {
	cli.Execute()
}
