// Command screenrec records the screen, optionally with microphone audio and
// a camera overlay, into an MP4 file.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
