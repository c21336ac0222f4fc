// Package main is the entry point for the tessera host daemon and CLI.
package main

func main() {
	Execute()
}
