// Command queuemgr is the broker's operator CLI: manager
// start/stop/list/empty/install plus config fmt/validate.
package main

import (
	"fmt"
	"os"
)

func main() {
	os.Exit(Main(os.Args))
}

func Main(args []string) int {
	if len(args) < 2 {
		printHelp()
		return 2
	}

	switch args[1] {
	case "manager":
		return managerCmd(args[2:])
	case "list":
		return listCmd(args[2:])
	case "empty":
		return emptyCmd(args[2:])
	case "install":
		return installCmd(args[2:])
	case "config":
		return configCmd(args[2:])
	case "help", "-h", "--help":
		printHelp()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[1])
		printHelp()
		return 2
	}
}

func printHelp() {
	fmt.Fprintln(os.Stdout, "queuemgr")
	fmt.Fprintln(os.Stdout, "")
	fmt.Fprintln(os.Stdout, "Usage:")
	fmt.Fprintln(os.Stdout, "  queuemgr manager start --config ./queuemgr.yml [--pid-file ./queuemgr.pid] [--log-level info] [--watch]")
	fmt.Fprintln(os.Stdout, "  queuemgr manager stop --pid-file ./queuemgr.pid")
	fmt.Fprintln(os.Stdout, "  queuemgr list <queue> --endpoint http://127.0.0.1:6438")
	fmt.Fprintln(os.Stdout, "  queuemgr empty <queue> --endpoint http://127.0.0.1:6438")
	fmt.Fprintln(os.Stdout, "  queuemgr install disk [<path>]")
	fmt.Fprintln(os.Stdout, "  queuemgr install sqlite [<path>]")
	fmt.Fprintln(os.Stdout, "  queuemgr install postgres <host> <user> <pass> <db> [--port --socket --prefix]")
	fmt.Fprintln(os.Stdout, "  queuemgr config fmt --config ./queuemgr.yml")
	fmt.Fprintln(os.Stdout, "  queuemgr config validate --config ./queuemgr.yml [--format json|text]")
}
