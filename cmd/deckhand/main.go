/*
2025 Deckhand <technical@deckhand.sh>
*/
package main

import (
	"os"

	"github.com/deckhand-sh/deckhand/internal/cli"
)

var version = "devel"

func main() {
	cli.Run(version, os.Args)
}
