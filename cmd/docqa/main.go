// Command docqa answers questions about a document using retrieval-augmented
// generation. It provides a CLI (via Cobra), an interactive terminal chat,
// and an HTTP server.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/docqa-go/cmd/docqa/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
