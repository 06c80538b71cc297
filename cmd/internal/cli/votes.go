package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"pointy/cmd/internal/app"
	"pointy/cmd/internal/pointing"
	"pointy/cmd/internal/remote"

	"github.com/spf13/cobra"
)

var voteCmd = &cobra.Command{
	Use:   "vote [session-id] [user-id] [value]",
	Short: "Cast a vote for a participant",
	Args:  cobra.ExactArgs(3),
	RunE:  runVote,
}

var revealCmd = &cobra.Command{
	Use:   "reveal [session-id]",
	Short: "Show every vote in a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runReveal,
}

var hideCmd = &cobra.Command{
	Use:   "hide [session-id]",
	Short: "Hide votes again",
	Args:  cobra.ExactArgs(1),
	RunE:  runHide,
}

var clearCmd = &cobra.Command{
	Use:   "clear [session-id]",
	Short: "Reset every vote in a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runClear,
}

func init() {
	for _, c := range []*cobra.Command{revealCmd, hideCmd, clearCmd} {
		c.Flags().String("key", "", "Facilitator key (default: the stored key)")
	}
	hideCmd.Flags().Bool("points", false, "Facilitator also votes")
	clearCmd.Flags().Bool("http", false, "Clear over HTTP instead of the socket")
}

func runVote(cmd *cobra.Command, args []string) error {
	sessionID, userID, value := args[0], args[1], args[2]
	return withApp(cmd, func(ctx context.Context, a *app.App, out io.Writer) error {
		if err := a.API().Vote(ctx, sessionID, userID, value); err != nil {
			if remote.IsStatus(err, http.StatusForbidden) {
				return fmt.Errorf("vote rejected: votes may already be shown: %w", err)
			}
			return err
		}
		fmt.Fprintln(out, "vote recorded")
		return nil
	})
}

// runReveal and runClear go over the socket. Waiting for the connection id first means
// the command is written on an open channel before the app closes.
func runReveal(cmd *cobra.Command, args []string) error {
	return facilitatorSocketCommand(cmd, args[0], func(key string) pointing.Command {
		return pointing.ShowVotes{SessionID: args[0], FacilitatorSessionKey: key}
	}, "votes shown")
}

func runClear(cmd *cobra.Command, args []string) error {
	if useHTTP, _ := cmd.Flags().GetBool("http"); useHTTP {
		return runClearHTTP(cmd, args[0])
	}
	return facilitatorSocketCommand(cmd, args[0], func(key string) pointing.Command {
		return pointing.ClearVotes{SessionID: args[0], FacilitatorSessionKey: key}
	}, "votes cleared")
}

func facilitatorSocketCommand(cmd *cobra.Command, sessionID string, build func(key string) pointing.Command, done string) error {
	flagKey, _ := cmd.Flags().GetString("key")
	return withApp(cmd, func(ctx context.Context, a *app.App, out io.Writer) error {
		key, err := resolveKey(ctx, a.Keys(), sessionID, flagKey)
		if err != nil {
			return err
		}
		if _, err := a.Sessions().WaitConnectionID(ctx); err != nil {
			return err
		}
		if err := a.Sessions().Execute(ctx, build(key)); err != nil {
			return err
		}
		fmt.Fprintln(out, done)
		return nil
	})
}

func runClearHTTP(cmd *cobra.Command, sessionID string) error {
	flagKey, _ := cmd.Flags().GetString("key")
	return withApp(cmd, func(ctx context.Context, a *app.App, out io.Writer) error {
		key, err := resolveKey(ctx, a.Keys(), sessionID, flagKey)
		if err != nil {
			return err
		}
		if err := a.API().ClearVotes(ctx, sessionID, key); err != nil {
			return err
		}
		fmt.Fprintln(out, "votes cleared")
		return nil
	})
}

// runHide has no socket action; it goes through the HTTP session update.
func runHide(cmd *cobra.Command, args []string) error {
	sessionID := args[0]
	flagKey, _ := cmd.Flags().GetString("key")
	points, _ := cmd.Flags().GetBool("points")
	return withApp(cmd, func(ctx context.Context, a *app.App, out io.Writer) error {
		key, err := resolveKey(ctx, a.Keys(), sessionID, flagKey)
		if err != nil {
			return err
		}
		err = a.API().UpdateSession(ctx, sessionID, key, remote.UpdateSessionRequest{
			VotesShown:        false,
			FacilitatorPoints: points,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "votes hidden")
		return nil
	})
}
