// Termtest is a testing tool for Unix terminal I/O. Lacking simple PTY support, running this tool
// manually is easier than writing automated tests.
package main

import (
	"context"
	"time"

	"github.com/lihanrui2913/radon-os-sub001/internal/log"
	"github.com/lihanrui2913/radon-os-sub001/internal/tty"
)

var logger = log.DefaultLogger()

func main() {
	ctx := context.Background()

	ctx, console, cancel := tty.ConsoleContext(ctx)
	defer cancel()

	timeout := time.After(5 * time.Second)

	select {
	case <-ctx.Done():
		logger.Debug("cause", context.Cause(ctx))
	default:
	}

	logger.Info("Reading console. Type keys.")

	for {
		select {
		case key := <-console.Keys():
			logger.Info("key", "byte", key)
		case <-timeout:
			cancel()
			return
		case <-ctx.Done():
			if ctx.Err() != nil {
				logger.Error(context.Cause(ctx).Error())
			} else {
				logger.Info("done")
			}

			return
		}
	}
}
