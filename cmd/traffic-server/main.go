// Package main is the entry point of the train traffic control digital twin.
// It only handles command parsing and dependency injection.
// NO business logic belongs here.
package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
