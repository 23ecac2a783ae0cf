// Command adapt queries observers and maintains the observations file their
// data is persisted in.
package main

import "os"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
