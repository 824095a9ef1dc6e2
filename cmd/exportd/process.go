package main

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"cohortline/exportd/pkg/cli"
	"cohortline/exportd/pkg/config"
	"cohortline/exportd/pkg/export"
	"cohortline/exportd/pkg/export/jobs"
)

var processFlags struct {
	request    requestFlags
	requester  string
	exportType string
	statuses   []string
	limit      int
	markSeen   bool
}

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Manage background export processes",
	Long: `Submit, list and inspect background export processes.

Processes are executed by "exportd run". A requester may have one CREATED or
PROCESSING export per export type at a time.`,
}

var processSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Queue a background export",
	Example: `  exportd process submit --requester u1 --deployment d1 -p format=CSV
  exportd process submit --requester u1 --type USER --deployment d1 -p userIds='["u1"]'`,
	Args: cobra.NoArgs,
	RunE: runProcessSubmit,
}

var processListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List processes",
	Example: `  exportd process list --requester u1 --status CREATED,PROCESSING`,
	Args:    cobra.NoArgs,
	RunE:    runProcessList,
}

var processShowCmd = &cobra.Command{
	Use:   "show <process-id>",
	Short: "Show one process",
	Args:  cobra.ExactArgs(1),
	RunE:  runProcessShow,
}

func init() {
	rootCmd.AddCommand(processCmd)
	processCmd.AddCommand(processSubmitCmd, processListCmd, processShowCmd)

	processFlags.request.register(processSubmitCmd, true)
	processSubmitCmd.Flags().StringVar(&processFlags.requester, "requester", "", "id of the requesting user (required)")
	processSubmitCmd.Flags().StringVar(&processFlags.exportType, "type", string(export.ExportTypeDefault), "export type: DEFAULT, USER, SUMMARY_REPORT")
	_ = processSubmitCmd.MarkFlagRequired("requester")

	processListCmd.Flags().StringVar(&processFlags.requester, "requester", "", "filter by requester")
	processListCmd.Flags().StringVar(&processFlags.request.deployment, "deployment", "", "filter by deployment")
	processListCmd.Flags().StringVar(&processFlags.request.organization, "organization", "", "filter by organization")
	processListCmd.Flags().StringSliceVar(&processFlags.statuses, "status", nil, "filter by status (comma-separated)")
	processListCmd.Flags().StringVar(&processFlags.exportType, "type", "", "filter by export type")
	processListCmd.Flags().IntVar(&processFlags.limit, "limit", 50, "maximum number of processes")

	processShowCmd.Flags().BoolVar(&processFlags.markSeen, "mark-seen", false, "mark a finished process as seen")
}

func runProcessSubmit(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	in, err := processFlags.request.input()
	if err != nil {
		return err
	}

	a, err := openStorage(config.GetConfig())
	if err != nil {
		return cli.NewCommandError("process submit", err)
	}
	defer a.Close(context.WithoutCancel(ctx))
	if err := a.openLocker(ctx); err != nil {
		return cli.NewCommandError("process submit", err)
	}

	p, err := a.tracker().Submit(ctx, jobs.Submission{
		RequesterID: processFlags.requester,
		ExportType:  export.ExportType(strings.ToUpper(processFlags.exportType)),
		Scope:       in.Scope,
		Params:      in.Params,
		ProfileName: in.ProfileName,
	})
	if err != nil {
		return cli.NewCommandError("process submit", err)
	}
	return printResult(processTable{p})
}

func runProcessList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := openStorage(config.GetConfig())
	if err != nil {
		return cli.NewCommandError("process list", err)
	}
	defer a.Close(ctx)

	q := export.ProcessQuery{
		RequesterID:    processFlags.requester,
		DeploymentID:   processFlags.request.deployment,
		OrganizationID: processFlags.request.organization,
		Limit:          processFlags.limit,
	}
	for _, s := range processFlags.statuses {
		q.Statuses = append(q.Statuses, export.ProcessStatus(strings.ToUpper(s)))
	}
	if processFlags.exportType != "" {
		q.ExportTypes = []export.ExportType{export.ExportType(strings.ToUpper(processFlags.exportType))}
	}

	processes, err := a.tracker().List(ctx, q)
	if err != nil {
		return cli.NewCommandError("process list", err)
	}
	return printResult(processTable(processes))
}

func runProcessShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openStorage(config.GetConfig())
	if err != nil {
		return cli.NewCommandError("process show", err)
	}
	defer a.Close(ctx)

	tr := a.tracker()
	if processFlags.markSeen {
		if err := tr.MarkSeen(ctx, args[0]); err != nil {
			return cli.NewCommandError("process show", err)
		}
	}
	p, err := tr.Get(ctx, args[0])
	if err != nil {
		return cli.NewCommandError("process show", err)
	}
	return printResult(processTable{p})
}

// processTable renders processes for the table formatter.
type processTable []*export.Process

func (t processTable) Headers() []string {
	return []string{"ID", "STATUS", "TYPE", "REQUESTER", "SCOPE", "SEEN", "UPDATED", "RESULT"}
}

func (t processTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, p := range t {
		result := p.Error
		if !p.Result.IsZero() {
			result = p.Result.Bucket + "/" + p.Result.Key
		}
		rows = append(rows, []string{
			p.ID,
			string(p.Status),
			string(p.ExportType),
			p.RequesterID,
			processScope(p),
			strconv.FormatBool(p.Seen),
			p.UpdateDateTime.Format(time.RFC3339),
			result,
		})
	}
	return rows
}

func processScope(p *export.Process) string {
	switch {
	case p.DeploymentID != "":
		return "deployment:" + p.DeploymentID
	case p.OrganizationID != "":
		return "organization:" + p.OrganizationID
	default:
		return "deployments"
	}
}
