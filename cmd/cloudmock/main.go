// Command cloudmock serves a stateful mock of the cloud console API.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
