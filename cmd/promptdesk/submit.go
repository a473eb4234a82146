// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/promptdesk/internal/coordinator"
	"github.com/pdiddy/promptdesk/pkg/types"
)

var submitCmd = &cobra.Command{
	Use:   "submit <prompt>",
	Short: "Submit one prompt and print its state transitions",
	Long: `Submit sends a single prompt through the coordinator, prints each UI
state transition as it happens, and prints the response text at the end.
Interrupt cancels the request. The outcome is recorded in history.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSubmit,
}

func runSubmit(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a, err := newApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	return submitAndWait(ctx, a.coord, strings.Join(args, " "), out)
}

// submitAndWait submits p, prints transitions to w until the submission
// finishes, and cancels it if ctx ends first.
func submitAndWait(ctx context.Context, c *coordinator.Coordinator, p string, w io.Writer) error {
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	states := c.Subscribe(subCtx)
	<-states // current state, before the submission

	task, err := c.Submit(p)
	if err != nil {
		return err
	}
	token := task.Submission().Token

	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for st := range states {
			fmt.Fprintln(w, formatState(st))
			if st.CurrentToken == token && !st.Loading {
				return
			}
		}
	}()

	select {
	case <-task.Done():
	case <-ctx.Done():
		c.Cancel()
		<-task.Done()
	}
	<-printed

	o := task.Outcome()
	switch o.Status {
	case types.StatusApplied:
		fmt.Fprintf(w, "\n%s\n", o.Result)
		return nil
	case types.StatusErrored:
		return fmt.Errorf("prompt failed: %s", o.Error)
	default:
		return fmt.Errorf("prompt %s", o.Status)
	}
}

func formatState(st types.UIState) string {
	line := fmt.Sprintf("[token %d] %s", st.CurrentToken, st.Status)
	if st.Loading {
		line += " (loading)"
	}
	if st.Error != "" {
		line += ": " + st.Error
	}
	return line
}

func init() {
	rootCmd.AddCommand(submitCmd)
}
