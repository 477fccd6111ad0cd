package main

import (
	"context"
	"surveysync/cmd/surveysync/commands"
	"surveysync/lib/osutil"
)

func main() {
	ctx, stop := osutil.SignalContext(context.Background())
	defer stop()
	commands.ExecuteContext(ctx)
}
