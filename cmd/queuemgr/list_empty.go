package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/assaf/reliable-msg/internal/message"
	"github.com/assaf/reliable-msg/internal/transport"
)

// listCmd prints a queue's current header list from a running manager.
func listCmd(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	endpoint := fs.String("endpoint", defaultEndpoint(), "manager RPC endpoint")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	pos := fs.Args()
	if len(pos) != 1 {
		fmt.Fprintln(os.Stderr, "usage: queuemgr list <queue> [--endpoint http://host:port]")
		return 2
	}

	c := transport.NewClient(*endpoint, 0, nil)
	headers, err := c.List(pos[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 1
	}
	for _, h := range headers {
		fmt.Fprintf(os.Stdout, "%s\tpriority=%d\tdelivery=%s\n", h.ID(), h.Priority(), h.Delivery())
	}
	return 0
}

// emptyCmd drains every message currently in a queue via repeated
// best-effort gets.
func emptyCmd(args []string) int {
	fs := flag.NewFlagSet("empty", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	endpoint := fs.String("endpoint", defaultEndpoint(), "manager RPC endpoint")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	pos := fs.Args()
	if len(pos) != 1 {
		fmt.Fprintln(os.Stderr, "usage: queuemgr empty <queue> [--endpoint http://host:port]")
		return 2
	}

	c := transport.NewClient(*endpoint, 0, nil)
	n := 0
	for {
		msg, err := c.Dequeue(pos[0], message.AnySelector{}, "")
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			return 1
		}
		if msg == nil {
			break
		}
		n++
	}
	fmt.Fprintf(os.Stdout, "emptied %d message(s) from %q\n", n, pos[0])
	return 0
}

func defaultEndpoint() string {
	return "http://127.0.0.1:6438"
}
