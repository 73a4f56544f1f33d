// Command ospfsim runs a topology of simulated OSPF routers and reports how
// their adjacencies came up.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
