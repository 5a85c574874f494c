package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/nholding/cycle-book/internal/commands"
)

const usage = `Usage: cycle-book [command] [options]

Commands:
  serve           Run the HTTP API (default)
  hash-password   Print a bcrypt hash for basic auth

Run "cycle-book <command> -h" for command options.
`

func main() {
	args := os.Args[1:]
	cmd := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "serve":
		err = commands.Serve(args)
	case "hash-password":
		err = commands.HashPassword(args, os.Stdin, os.Stdout)
	case "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "cycle-book:", err)
		os.Exit(1)
	}
}
