package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/Varn22/pixel-time-tracker/internal/ui"
)

// Execute runs trackerctl against the configured store and exits non-zero on failure.
func Execute() {
	root := NewRootCmd(OpenBackend)
	if err := root.ExecuteContext(context.Background()); err != nil {
		msg := err.Error()
		if isNotFound(err) {
			msg = "no such user"
		}
		fmt.Fprintln(os.Stderr, ui.Bad.Render(ui.IconError+" "+msg))
		os.Exit(1)
	}
}
