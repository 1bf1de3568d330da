// Command civiclens is the operator CLI: it scores and predicts complaint
// texts and manages users and API tokens of the complaint API.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
