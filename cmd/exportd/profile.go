package main

import (
	"errors"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"cohortline/exportd/pkg/cli"
	"cohortline/exportd/pkg/config"
	"cohortline/exportd/pkg/export"
)

var profileFlags struct {
	request   requestFlags
	name      string
	isDefault bool
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage export profiles",
	Long: `Export profiles are named parameter sets scoped to one deployment or one
organization. A default profile is the base of every export of its scope that
names no profile.`,
}

var profileSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Create or replace a profile",
	Example: `  exportd profile set --deployment d1 --name default --default -p view=DAY -p format=CSV
  exportd profile set --organization org1 --name research --params-file research.yaml`,
	Args: cobra.NoArgs,
	RunE: runProfileSet,
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the profiles of a scope",
	Args:  cobra.NoArgs,
	RunE:  runProfileList,
}

var profileDeleteCmd = &cobra.Command{
	Use:   "delete <profile-id>",
	Short: "Delete a profile",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfileDelete,
}

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.AddCommand(profileSetCmd, profileListCmd, profileDeleteCmd)

	profileFlags.request.register(profileSetCmd, false)
	profileSetCmd.Flags().StringVar(&profileFlags.name, "name", "", "profile name (required)")
	profileSetCmd.Flags().BoolVar(&profileFlags.isDefault, "default", false, "make this the scope's default profile")
	_ = profileSetCmd.MarkFlagRequired("name")

	profileListCmd.Flags().StringVar(&profileFlags.request.deployment, "deployment", "", "deployment id")
	profileListCmd.Flags().StringVar(&profileFlags.request.organization, "organization", "", "organization id")
}

func runProfileSet(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	content, err := profileFlags.request.values()
	if err != nil {
		return err
	}
	a, err := openStorage(config.GetConfig())
	if err != nil {
		return cli.NewCommandError("profile set", err)
	}
	defer a.Close(ctx)

	scope := profileFlags.request.scope()
	p := &export.Profile{
		Name:           profileFlags.name,
		DeploymentID:   scope.DeploymentID,
		OrganizationID: scope.OrganizationID,
		Content:        content,
		Default:        profileFlags.isDefault,
	}

	existing, err := a.store.FindProfile(ctx, p.Name, p.DeploymentID, p.OrganizationID)
	switch {
	case err == nil:
		p.ID = existing.ID
		err = a.store.UpdateProfile(ctx, p)
	case errors.Is(err, export.ErrNotFound):
		err = a.store.CreateProfile(ctx, p)
	}
	if err != nil {
		return cli.NewCommandError("profile set", err)
	}
	return printResult(profileTable{p})
}

func runProfileList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := openStorage(config.GetConfig())
	if err != nil {
		return cli.NewCommandError("profile list", err)
	}
	defer a.Close(ctx)

	profiles, err := a.store.ListProfiles(ctx, profileFlags.request.deployment, profileFlags.request.organization)
	if err != nil {
		return cli.NewCommandError("profile list", err)
	}
	return printResult(profileTable(profiles))
}

func runProfileDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openStorage(config.GetConfig())
	if err != nil {
		return cli.NewCommandError("profile delete", err)
	}
	defer a.Close(ctx)

	if err := a.store.DeleteProfile(ctx, args[0]); err != nil {
		return cli.NewCommandError("profile delete", err)
	}
	return nil
}

// profileTable renders profiles for the table formatter.
type profileTable []*export.Profile

func (t profileTable) Headers() []string {
	return []string{"ID", "NAME", "SCOPE", "DEFAULT", "PARAMS", "UPDATED"}
}

func (t profileTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, p := range t {
		scope := "deployment:" + p.DeploymentID
		if p.OrganizationID != "" {
			scope = "organization:" + p.OrganizationID
		}
		keys := slices.Sorted(maps.Keys(p.Content))
		rows = append(rows, []string{
			p.ID,
			p.Name,
			scope,
			strconv.FormatBool(p.Default),
			strings.Join(keys, ","),
			p.UpdateDateTime.Format(time.RFC3339),
		})
	}
	return rows
}
