// main package for doc2speech
package main

import (
	"fmt"
	"os"
)

func main() {
	err := newRootCommand().Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "doc2speech exited with error: %v\n", err)
		os.Exit(1)
	}
}
