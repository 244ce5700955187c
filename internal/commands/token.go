package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	request "github.com/zhangxinping666/admin-mp-sub001"
)

func (a *app) tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the stored session tokens",
	}

	var access, refresh string
	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Store tokens obtained from a login",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if access == "" || refresh == "" {
				return fmt.Errorf("both --access and --refresh are required")
			}
			tokens := request.Tokens{AccessToken: access, RefreshToken: refresh}
			if err := a.client.Credentials().Set(cmd.Context(), tokens); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "tokens stored")
			return nil
		},
	}
	setCmd.Flags().StringVar(&access, "access", "", "access token")
	setCmd.Flags().StringVar(&refresh, "refresh", "", "refresh token")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Forget the stored tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.client.Credentials().Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "tokens cleared")
			return nil
		},
	}

	cmd.AddCommand(setCmd, clearCmd)
	return cmd
}
