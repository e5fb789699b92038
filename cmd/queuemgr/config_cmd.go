package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/assaf/reliable-msg/internal/config"
)

func configCmd(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "missing subcommand: fmt | validate")
		return 2
	}
	switch args[0] {
	case "fmt":
		return configFormat(args[1:])
	case "validate":
		return configValidate(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown config subcommand: %s\n", args[0])
		return 2
	}
}

func configFormat(args []string) int {
	fs := flag.NewFlagSet("config fmt", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	configPath := fs.String("config", "./queuemgr.yml", "path to config file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 1
	}
	out, err := config.Format(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 1
	}
	os.Stdout.Write(out)
	return 0
}

func configValidate(args []string) int {
	fs := flag.NewFlagSet("config validate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	configPath := fs.String("config", "./queuemgr.yml", "path to config file")
	format := fs.String("format", "json", "output format: json|text")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 1
	}
	res := config.Validate(cfg)

	if *format == "text" {
		msg := config.FormatValidationText(res)
		if res.OK {
			fmt.Fprintln(os.Stdout, msg)
			return 0
		}
		fmt.Fprintln(os.Stderr, msg)
		return 1
	}

	out, err := config.FormatValidationJSON(res)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 1
	}
	if res.OK {
		fmt.Fprintln(os.Stdout, out)
		return 0
	}
	fmt.Fprintln(os.Stderr, out)
	return 1
}
