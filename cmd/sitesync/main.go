// Command sitesync builds a Hugo site and publishes it additively to an
// S3-compatible bucket.
//
//	sitesync publish prd
//	sitesync plan --skip-build stg
//	sitesync targets
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
