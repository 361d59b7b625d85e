// File: cmd/state.go
package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/quizwalk/internal/observability"
	"github.com/xkilldash9x/quizwalk/internal/persistence"
)

func newStateCmd(a *app) *cobra.Command {
	var statePath string

	stateCmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect saved exploration progress",
	}
	stateCmd.PersistentFlags().StringVar(&statePath, "state", "", "Path of the progress document. (Overrides config/env)")

	manager := func(cmd *cobra.Command) (*persistence.Manager, error) {
		if cmd.Flags().Changed("state") {
			a.cfg.SetStatePath(statePath)
		}
		return newStateManager(a.cfg.State(), observability.GetLogger())
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the decision path, frontier and artifact count of the saved progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manager(cmd)
			if err != nil {
				return err
			}
			state, found, err := m.Load()
			if err != nil {
				return err
			}
			if !found {
				fmt.Fprintf(cmd.OutOrStdout(), "No saved progress at %s\n", m.Path())
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "State: %s\n\n", m.Path())
			return persistence.Describe(cmd.OutOrStdout(), state)
		},
	}

	backupsCmd := &cobra.Command{
		Use:   "backups",
		Short: "List the backups kept next to the progress document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manager(cmd)
			if err != nil {
				return err
			}
			backups, err := m.Backups()
			if err != nil {
				return err
			}
			if len(backups) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No backups of %s\n", m.Path())
				return nil
			}
			for _, b := range backups {
				fmt.Fprintf(cmd.OutOrStdout(), "%4d  %s\n", b.Counter, filepath.Base(b.Path))
			}
			return nil
		},
	}

	stateCmd.AddCommand(showCmd, backupsCmd)
	return stateCmd
}
