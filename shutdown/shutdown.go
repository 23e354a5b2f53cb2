// Package shutdown turns termination signals into context cancellation.
package shutdown

import (
	"context"
	"os"
	"os/signal"
)

// Notify relays termination signals to ch.
func Notify(ch chan os.Signal) {
	signal.Notify(ch, signals()...)
}

// Context is canceled on the first termination signal. A second signal
// is left to the default handler once stop has been called.
func Context(parent context.Context) (ctx context.Context, stop context.CancelFunc) {
	return signal.NotifyContext(parent, signals()...)
}
