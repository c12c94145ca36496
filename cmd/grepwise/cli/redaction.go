package cli

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

// NewRedactionCommand returns the `grepwise redaction` subcommand tree,
// which inspects and updates a running server's field-redaction config.
func NewRedactionCommand() *cobra.Command {
	var addr, token, output string

	cmd := &cobra.Command{
		Use:   "redaction",
		Short: "Manage sensitive-field redaction on a running grepwise server",
	}
	cmd.PersistentFlags().StringVar(&addr, "addr", "http://127.0.0.1:8080", "server address")
	cmd.PersistentFlags().StringVar(&token, "token", "", "bearer token")
	cmd.PersistentFlags().StringVarP(&output, "output", "o", "json", "output format: json")

	cmd.AddCommand(newRedactionGetCommand(&addr, &token, &output))
	cmd.AddCommand(newRedactionSetCommand(&addr, &token, &output))
	cmd.AddCommand(newRedactionReloadCommand(&addr, &token))

	return cmd
}

func newRedactionGetCommand(addr, token, output *string) *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Show the active redaction config",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(*addr, *token)
			var cfg map[string]any
			if err := client.do("GET", "/redaction/config", nil, &cfg); err != nil {
				return err
			}
			return newPrinter(*output).json(cfg)
		},
	}
}

func newRedactionSetCommand(addr, token, output *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Replace the redaction config from a grouped JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var cfg map[string]any
			if err := json.Unmarshal(raw, &cfg); err != nil {
				return err
			}

			client := newAPIClient(*addr, *token)
			var saved map[string]any
			if err := client.do("POST", "/redaction/config", cfg, &saved); err != nil {
				return err
			}
			return newPrinter(*output).json(saved)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path to a grouped redaction config JSON file")
	cmd.MarkFlagRequired("file")
	return cmd
}

func newRedactionReloadCommand(addr, token *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Reload the redaction config from the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(*addr, *token)
			return client.do("POST", "/redaction/reload", nil, nil)
		},
	}
}
