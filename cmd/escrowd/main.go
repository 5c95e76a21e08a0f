// Command escrowd runs the escrow layer HTTP service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/DeBounty-Network/escrow_layer/internal/runtime"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := runtime.NewApplication()
	if err != nil {
		fmt.Fprintf(os.Stderr, "escrowd: %v\n", err)
		os.Exit(1)
	}

	runErr := app.Run(ctx)

	if err := app.Shutdown(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "escrowd: shutdown: %v\n", err)
		if runErr == nil {
			os.Exit(1)
		}
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "escrowd: %v\n", runErr)
		os.Exit(1)
	}
}
