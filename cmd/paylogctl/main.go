// Command paylogctl administers a paylog database: schema migrations,
// currencies, cached debtor balances and the balance event stream.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

const usage = `usage: paylogctl <command> [arguments]

commands:
  migrate up                      apply pending migrations
  migrate down [-steps N]         roll back N migrations (default 1)
  migrate version                 print the applied schema version
  currency list [-all]            list active (or all) currencies
  currency add CODE NAME [-inactive]
  currency activate CODE
  currency deactivate CODE
  currency delete CODE
  balance recompute [-user ID]    rebuild cached debtor balances
  balance check [-repair]         report cached balances that drifted
  events watch                    print balance events from AMQP
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one command and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	app, err := newApp(stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "paylogctl: %v\n", err)
		return 1
	}
	defer app.close()

	group, sub, rest := args[0], args[1], args[2:]
	var cmdErr error
	switch group {
	case "migrate":
		cmdErr = app.migrate(sub, rest)
	case "currency":
		cmdErr = app.currency(ctx, sub, rest)
	case "balance":
		cmdErr = app.balance(ctx, sub, rest)
	case "events":
		cmdErr = app.events(ctx, sub, rest)
	default:
		cmdErr = errUsage
	}

	switch {
	case cmdErr == errUsage:
		fmt.Fprint(stderr, usage)
		return 2
	case cmdErr != nil:
		fmt.Fprintf(stderr, "paylogctl: %v\n", cmdErr)
		return 1
	}
	return 0
}
