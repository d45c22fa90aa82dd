package common

import (
	"fmt"
	"os"
	"runtime/debug"
)

// PanicHandler is deferred at the top of each binary's main.
func PanicHandler() {
	if r := recover(); r != nil {
		fmt.Printf("Panic caught in opi: %v\n", r)
		debug.PrintStack()
		os.Exit(1)
	}
}
