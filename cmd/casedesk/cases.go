package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	casedomain "github.com/sentinel-ops/casedesk/internal/case/domain"
	"github.com/sentinel-ops/casedesk/internal/server"
	"github.com/sentinel-ops/casedesk/internal/shared/logger"
	"github.com/sentinel-ops/casedesk/internal/shared/types"
	"github.com/spf13/cobra"
)

var casesAs string

var casesCmd = &cobra.Command{
	Use:   "cases",
	Short: "Print every case as a table",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Store.Driver != "postgres" {
			return fmt.Errorf("cases needs a persistent store, set STORE_DRIVER=postgres")
		}
		// The table is printed once; skip the replay cache and event stream.
		cfg.Idempotency.Enabled = false
		cfg.KurrentDB.Enabled = false

		app, err := server.New(cmd.Context(), cfg, logger.New(cfg.Logging))
		if err != nil {
			return err
		}
		defer app.Close()

		cases, err := app.Cases.GetAllCases(cmd.Context(), types.Principal(casesAs))
		if err != nil {
			return err
		}
		renderCases(cmd.OutOrStdout(), cases)
		return nil
	},
}

func init() {
	casesCmd.Flags().StringVar(&casesAs, "as", "", "registered principal to read as")
	casesCmd.MarkFlagRequired("as")
}

var severityColors = map[casedomain.Severity]func(a ...interface{}) string{
	casedomain.SeverityLow:      color.New(color.FgCyan).SprintFunc(),
	casedomain.SeverityMedium:   color.New(color.FgYellow).SprintFunc(),
	casedomain.SeverityHigh:     color.New(color.FgRed).SprintFunc(),
	casedomain.SeverityCritical: color.New(color.BgRed, color.FgWhite, color.Bold).SprintFunc(),
}

func renderCases(w io.Writer, cases []casedomain.Case) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "Severity", "Status", "Title", "Reporter", "Analyst", "Notes", "Updated"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for _, c := range cases {
		severity := string(c.Severity)
		if paint, ok := severityColors[c.Severity]; ok {
			severity = paint(severity)
		}
		analyst := "-"
		if c.AssignedAnalyst != nil {
			analyst = c.AssignedAnalyst.String()
		}
		table.Append([]string{
			c.ID.String(),
			severity,
			string(c.Status),
			c.Title,
			c.Reporter.String(),
			analyst,
			strconv.Itoa(len(c.Notes)),
			c.UpdatedAt.Time().Format("2006-01-02 15:04:05"),
		})
	}
	table.Render()
}
