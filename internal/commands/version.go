package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	request "github.com/zhangxinping666/admin-mp-sub001"
)

func versionCmd(out io.Writer) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if asJSON {
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(request.GetBuildInfo())
			}
			fmt.Fprintln(out, request.GetVersion())
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print build metadata as JSON")
	return cmd
}
