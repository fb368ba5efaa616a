package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

const usage = `Usage: gtfsjson <command> [flags]

Commands:
  convert    build the JSON document from the GTFS tables in the data directory
  validate   check the GTFS tables and print a summary (exit 1 on errors)
  update     download the feed, install its tables and print the changed files

Run "gtfsjson <command> -h" for the flags of a command.
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
