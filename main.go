// httplink opens a single outbound HTTP(S) client connection.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"httplink/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "httplink: %v\n", err)
		os.Exit(1)
	}
}
