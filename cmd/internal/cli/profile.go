package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"pointy/cmd/internal/app"
	"pointy/cmd/internal/profile"
	"pointy/cmd/internal/remote"

	"github.com/spf13/cobra"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show or update the signed-in user's profile",
	Args:  cobra.NoArgs,
	RunE:  runProfile,
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List stored facilitator keys",
	Args:  cobra.NoArgs,
	RunE:  runKeys,
}

var devkeyCmd = &cobra.Command{
	Use:   "devkey",
	Short: "Generate a PASETO v4 signing key for the development identity provider",
	Args:  cobra.NoArgs,
	RunE:  runDevkey,
}

func init() {
	profileCmd.Flags().String("name", "", "New display name")
	profileCmd.Flags().String("handle", "", "New handle")
}

func runProfile(cmd *cobra.Command, _ []string) error {
	name, _ := cmd.Flags().GetString("name")
	handle, _ := cmd.Flags().GetString("handle")

	return withApp(cmd, func(ctx context.Context, a *app.App, out io.Writer) error {
		ps := a.Profile()
		if err := ps.WaitReady(ctx); err != nil {
			return err
		}
		if !ps.SignedIn() {
			fmt.Fprintln(out, "signed out")
			return nil
		}

		if name != "" || handle != "" {
			upd := remote.ProfileUpdate{Name: name}
			if handle != "" {
				upd.Handle = &handle
			}
			if err := ps.UpdateProfile(ctx, upd); err != nil {
				return err
			}
		} else {
			// Initialize fetches in the background; fetch again so the result is
			// available here or its failure lands in the error sink.
			ps.FetchProfile(ctx)
		}

		p := ps.Profile()
		if p == nil {
			if err := a.Errors().Ack(); err != nil {
				return err
			}
			return errors.New("profile unavailable")
		}
		fmt.Fprint(out, formatProfile(ps.UserID(), p))
		return nil
	})
}

func formatProfile(userID string, p *remote.Profile) string {
	handle := "-"
	if p.Handle != nil && *p.Handle != "" {
		handle = *p.Handle
	}
	return fmt.Sprintf("user:   %s\nname:   %s\nemail:  %s\nhandle: %s\n", userID, p.Name, p.Email, handle)
}

func runKeys(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App, out io.Writer) error {
		entries, err := a.Keys().List(ctx)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintln(out, "No stored facilitator keys.")
			return nil
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SESSION\tKEY\tCREATED")
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", e.SessionID, e.FacilitatorKey, e.CreatedAt.Format("2006-01-02 15:04"))
		}
		return tw.Flush()
	})
}

func runDevkey(cmd *cobra.Command, _ []string) error {
	secret := profile.GenerateKeyHex()
	p, err := profile.NewPasetoProvider(profile.PasetoConfig{SecretKeyHex: secret, UserID: "dev"})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "POINTY_PASETO_V4_SECRET_KEY_HEX=%s\n", secret)
	fmt.Fprintf(out, "# public key (give this to the API for verification)\n# %s\n", p.PublicKeyHex())
	return nil
}
