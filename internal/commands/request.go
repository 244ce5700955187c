package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	request "github.com/zhangxinping666/admin-mp-sub001"
)

func (a *app) getCmd() *cobra.Command {
	var params []string

	cmd := &cobra.Command{
		Use:   "get <path>",
		Short: "GET a path and print the envelope data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := parseParams(params)
			if err != nil {
				return err
			}
			resp, err := a.client.Get(cmd.Context(), args[0], query)
			if err != nil {
				return err
			}
			return a.printData(resp)
		},
	}
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "query parameter as key=value (repeatable, order kept)")
	return cmd
}

func (a *app) postCmd() *cobra.Command {
	var data string

	cmd := &cobra.Command{
		Use:   "post <path>",
		Short: "POST a JSON body and print the envelope data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var body interface{}
			if data != "" {
				if !json.Valid([]byte(data)) {
					return fmt.Errorf("--data is not valid JSON")
				}
				body = json.RawMessage(data)
			}
			resp, err := a.client.Post(cmd.Context(), args[0], body)
			if err != nil {
				return err
			}
			return a.printData(resp)
		},
	}
	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body")
	return cmd
}

func (a *app) exportCmd() *cobra.Command {
	var (
		params []string
		out    string
	)

	cmd := &cobra.Command{
		Use:   "export <path>",
		Short: "Download an export file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := parseParams(params)
			if err != nil {
				return err
			}
			resp, err := a.client.Download(cmd.Context(), args[0], query)
			if err != nil {
				return err
			}

			target := out
			if target == "" {
				target = filepath.Base(resp.Filename)
			}
			if target == "" || target == "." || target == string(filepath.Separator) {
				target = "export.bin"
			}
			if err := os.WriteFile(target, resp.Blob, 0644); err != nil {
				return fmt.Errorf("writing %s: %w", target, err)
			}
			fmt.Fprintf(a.out, "%s (%d bytes)\n", target, len(resp.Blob))
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "query parameter as key=value (repeatable, order kept)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default: server filename)")
	return cmd
}

func (a *app) printData(resp *request.Response) error {
	data := resp.Data()
	if len(data) == 0 {
		fmt.Fprintln(a.out, "null")
		return nil
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		return fmt.Errorf("formatting response: %w", err)
	}
	fmt.Fprintln(a.out, pretty.String())
	return nil
}

func parseParams(raw []string) (request.Params, error) {
	var params request.Params
	for _, kv := range raw {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --param %q: want key=value", kv)
		}
		params = params.Add(key, value)
	}
	return params, nil
}
