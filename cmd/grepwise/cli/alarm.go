package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

type alarmDTO struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Query          string   `json:"query"`
	WindowMillis   int64    `json:"windowMillis"`
	ThresholdOp    string   `json:"thresholdOp"`
	ThresholdValue float64  `json:"thresholdValue"`
	IntervalMillis int64    `json:"intervalMillis"`
	GroupBy        []string `json:"groupBy,omitempty"`
	ThrottleMillis int64    `json:"throttleMillis,omitempty"`
	Channels       []string `json:"channels,omitempty"`
	Enabled        bool     `json:"enabled"`
	LastEvalTS     int64    `json:"lastEvalTs,omitempty"`
	LastFiredTS    int64    `json:"lastFiredTs,omitempty"`
	LastState      string   `json:"lastState,omitempty"`
}

// NewAlarmCommand returns the `grepwise alarm` subcommand tree, which
// manages alarms on a running server over its HTTP API.
func NewAlarmCommand() *cobra.Command {
	var addr, token, output string

	cmd := &cobra.Command{
		Use:   "alarm",
		Short: "Manage alarms on a running grepwise server",
	}
	cmd.PersistentFlags().StringVar(&addr, "addr", "http://127.0.0.1:8080", "server address")
	cmd.PersistentFlags().StringVar(&token, "token", "", "bearer token")
	cmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "output format: table|json")

	cmd.AddCommand(newAlarmListCommand(&addr, &token, &output))
	cmd.AddCommand(newAlarmCreateCommand(&addr, &token, &output))
	cmd.AddCommand(newAlarmDeleteCommand(&addr, &token))
	cmd.AddCommand(newAlarmEvaluateCommand(&addr, &token, &output))

	return cmd
}

func newAlarmListCommand(addr, token, output *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all alarms",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(*addr, *token)
			var alarms []alarmDTO
			if err := client.do("GET", "/alarms", nil, &alarms); err != nil {
				return err
			}

			p := newPrinter(*output)
			if *output == "json" {
				return p.json(alarms)
			}
			rows := make([][]string, 0, len(alarms))
			for _, a := range alarms {
				rows = append(rows, []string{a.ID, a.Name, a.Query, fmt.Sprintf("%v", a.Enabled), a.LastState})
			}
			p.table([]string{"ID", "NAME", "QUERY", "ENABLED", "LAST STATE"}, rows)
			return nil
		},
	}
}

func newAlarmCreateCommand(addr, token, output *string) *cobra.Command {
	var a alarmDTO
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an alarm",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(*addr, *token)
			var created alarmDTO
			if err := client.do("POST", "/alarms", a, &created); err != nil {
				return err
			}
			return newPrinter(*output).json(created)
		},
	}
	cmd.Flags().StringVar(&a.ID, "id", "", "alarm id")
	cmd.Flags().StringVar(&a.Name, "name", "", "alarm name")
	cmd.Flags().StringVar(&a.Query, "query", "", "SPL query text")
	cmd.Flags().Int64Var(&a.WindowMillis, "window-ms", 60000, "evaluation window in milliseconds")
	cmd.Flags().StringVar(&a.ThresholdOp, "op", ">", "threshold operator: >, >=, <, <=, =, !=")
	cmd.Flags().Float64Var(&a.ThresholdValue, "threshold", 0, "threshold value")
	cmd.Flags().Int64Var(&a.IntervalMillis, "interval-ms", 60000, "evaluation interval in milliseconds")
	cmd.Flags().StringSliceVar(&a.GroupBy, "group-by", nil, "fields to group observations by")
	cmd.Flags().Int64Var(&a.ThrottleMillis, "throttle-ms", 0, "minimum time between notifications")
	cmd.Flags().StringSliceVar(&a.Channels, "channel", nil, "notification sink names")
	cmd.Flags().BoolVar(&a.Enabled, "enabled", true, "whether the alarm starts enabled")
	cmd.MarkFlagRequired("id")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("query")
	return cmd
}

func newAlarmDeleteCommand(addr, token *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an alarm",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(*addr, *token)
			return client.do("DELETE", "/alarms/"+args[0], nil, nil)
		},
	}
}

func newAlarmEvaluateCommand(addr, token, output *string) *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate <id>",
		Short: "Force an immediate evaluation of an alarm",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(*addr, *token)
			var a alarmDTO
			if err := client.do("POST", "/alarms/"+args[0]+"/evaluate", nil, &a); err != nil {
				return err
			}
			return newPrinter(*output).json(a)
		},
	}
}
