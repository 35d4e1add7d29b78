// Command toolchat-math serves the arithmetic tools as a standalone MCP
// provider.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/dotcommander/toolchat/internal/tools"
	"github.com/dotcommander/toolchat/internal/tools/mathtools"
)

// Version is set at build time.
var Version = "dev" //nolint:gochecknoglobals

func main() {
	listen := flag.StringP("listen", "l", "", "serve streamable HTTP on this address instead of stdio")
	grace := flag.Duration("shutdown-grace", 5*time.Second, "time allowed for in-flight requests on shutdown")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := tools.Serve(ctx, mathtools.NewServer(Version), *listen, *grace); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
