package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"pointy/cmd/internal/app"
	"pointy/cmd/internal/keystore"
	"pointy/cmd/internal/pointing"
	"pointy/cmd/internal/remote"

	"github.com/spf13/cobra"
)

var facilitateCmd = &cobra.Command{
	Use:   "facilitate",
	Short: "Start a new session as its facilitator and follow it",
	Args:  cobra.NoArgs,
	RunE:  runFacilitate,
}

var resumeCmd = &cobra.Command{
	Use:   "resume [session-id]",
	Short: "Load a session you facilitate and follow it",
	Args:  cobra.ExactArgs(1),
	RunE:  runResume,
}

var joinCmd = &cobra.Command{
	Use:   "join [session-id]",
	Short: "Join a session as a participant and follow it",
	Args:  cobra.ExactArgs(1),
	RunE:  runJoin,
}

var watchCmd = &cobra.Command{
	Use:   "watch [session-id]",
	Short: "Follow a session without joining it",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func init() {
	facilitateCmd.Flags().String("name", "", "Facilitator display name")
	facilitateCmd.Flags().String("handle", "", "Facilitator handle")
	facilitateCmd.Flags().Bool("points", false, "Facilitator also votes")
	facilitateCmd.Flags().Bool("http", false, "Create the session over HTTP instead of the socket")
	_ = facilitateCmd.MarkFlagRequired("name")

	resumeCmd.Flags().String("key", "", "Facilitator key (default: the stored key)")
	resumeCmd.Flags().Bool("http", false, "Attach over HTTP instead of the socket")

	joinCmd.Flags().String("name", "", "Display name")
	joinCmd.Flags().String("handle", "", "Handle")
	_ = joinCmd.MarkFlagRequired("name")
}

func runFacilitate(cmd *cobra.Command, _ []string) error {
	name, _ := cmd.Flags().GetString("name")
	handle, _ := cmd.Flags().GetString("handle")
	points, _ := cmd.Flags().GetBool("points")
	useHTTP, _ := cmd.Flags().GetBool("http")

	return withApp(cmd, func(ctx context.Context, a *app.App, out io.Writer) error {
		connID, err := a.Sessions().WaitConnectionID(ctx)
		if err != nil {
			return err
		}
		sub := a.Sessions().Subscribe("")
		defer sub.Close()

		user := pointing.NewUser(name, handle)
		if useHTTP {
			view, err := a.API().CreateSession(ctx, remote.CreateSessionRequest{
				Facilitator:       remote.Facilitator{UserID: user.UserID, Name: user.Name, Handle: user.Handle},
				FacilitatorPoints: points,
				ConnectionID:      connID,
			})
			if err != nil {
				return err
			}
			if err := a.Sessions().Execute(ctx, pointing.SetFacilitatorSession{Session: view}); err != nil {
				return err
			}
		} else {
			if err := a.Sessions().Execute(ctx, pointing.BeginSession{Facilitator: user, FacilitatorPoints: points}); err != nil {
				return err
			}
		}

		if err := printFacilitatorHeader(ctx, out, sub.C()); err != nil {
			return err
		}
		return streamUpdates(ctx, out, cmd.ErrOrStderr(), sub.C(), a.Errors())
	})
}

// printFacilitatorHeader waits for the first facilitated session and prints its id and key.
func printFacilitatorHeader(ctx context.Context, out io.Writer, updates <-chan pointing.Session) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sess, ok := <-updates:
			if !ok {
				return errors.New("session store closed")
			}
			if !sess.IsFacilitator {
				continue
			}
			fmt.Fprintf(out, "session id:      %s\n", sess.SessionID)
			fmt.Fprintf(out, "facilitator key: %s\n", sess.FacilitatorSessionKey)
			fmt.Fprint(out, formatSession(sess))
			return nil
		}
	}
}

func runResume(cmd *cobra.Command, args []string) error {
	sessionID := args[0]
	flagKey, _ := cmd.Flags().GetString("key")
	useHTTP, _ := cmd.Flags().GetBool("http")

	return withApp(cmd, func(ctx context.Context, a *app.App, out io.Writer) error {
		key, err := resolveKey(ctx, a.Keys(), sessionID, flagKey)
		if err != nil {
			return err
		}
		connID, err := a.Sessions().WaitConnectionID(ctx)
		if err != nil {
			return err
		}
		sub := a.Sessions().Subscribe(sessionID)
		defer sub.Close()

		if useHTTP {
			view, err := a.API().SetFacilitatorSession(ctx, sessionID, key, remote.SetFacilitatorSessionRequest{
				MarkActive:   true,
				ConnectionID: connID,
			})
			if err != nil {
				return err
			}
			err = a.Sessions().Execute(ctx, pointing.SetFacilitatorSession{Session: view})
			if err != nil {
				return err
			}
		} else {
			err := a.Sessions().Execute(ctx, pointing.LoadFacilitatorSession{
				SessionID:             sessionID,
				FacilitatorSessionKey: key,
				MarkActive:            true,
			})
			if err != nil {
				return err
			}
		}
		return streamUpdates(ctx, out, cmd.ErrOrStderr(), sub.C(), a.Errors())
	})
}

func runJoin(cmd *cobra.Command, args []string) error {
	sessionID := args[0]
	name, _ := cmd.Flags().GetString("name")
	handle, _ := cmd.Flags().GetString("handle")

	return withApp(cmd, func(ctx context.Context, a *app.App, out io.Writer) error {
		connID, err := a.Sessions().WaitConnectionID(ctx)
		if err != nil {
			return err
		}
		sub := a.Sessions().Subscribe(sessionID)
		defer sub.Close()

		user := pointing.NewUser(name, handle)
		err = a.API().JoinSession(ctx, sessionID, user.UserID, remote.JoinSessionRequest{
			Name:         user.Name,
			Handle:       user.Handle,
			ConnectionID: connID,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "joined %s as user %s\n", sessionID, user.UserID)

		if err := a.Sessions().Execute(ctx, pointing.LoadSession{SessionID: sessionID, MarkActive: true}); err != nil {
			return err
		}
		return streamUpdates(ctx, out, cmd.ErrOrStderr(), sub.C(), a.Errors())
	})
}

func runWatch(cmd *cobra.Command, args []string) error {
	sessionID := args[0]

	return withApp(cmd, func(ctx context.Context, a *app.App, out io.Writer) error {
		connID, err := a.Sessions().WaitConnectionID(ctx)
		if err != nil {
			return err
		}
		sub := a.Sessions().Subscribe(sessionID)
		defer sub.Close()

		if err := a.API().WatchSession(ctx, sessionID, connID); err != nil {
			return err
		}
		if err := a.Sessions().Execute(ctx, pointing.LoadSession{SessionID: sessionID}); err != nil {
			return err
		}
		return streamUpdates(ctx, out, cmd.ErrOrStderr(), sub.C(), a.Errors())
	})
}

// resolveKey prefers an explicit key, then the key store.
func resolveKey(ctx context.Context, keys keystore.Store, sessionID, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	e, err := keys.Get(ctx, sessionID)
	if errors.Is(err, keystore.ErrNotFound) {
		return "", fmt.Errorf("no stored facilitator key for session %s; pass --key", sessionID)
	}
	if err != nil {
		return "", err
	}
	return e.FacilitatorKey, nil
}
