// Command requestpingctl runs operator tasks against a RequestPing
// deployment: key bootstrap, migrations, and one-shot resubmission sweeps.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
