package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <task>",
	Short: "Score a completed task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := requireUser(cmd)
		if err != nil {
			return err
		}
		e, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer closeEngine(e)

		ev, err := e.Evaluate(cmd.Context(), user, args[0])
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), renderer(cmd).Evaluation(ev))
		return nil
	},
}

var finalizeCmd = &cobra.Command{
	Use:   "finalize <program>",
	Short: "Compute the outcome of a program whose tasks are all completed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := requireUser(cmd)
		if err != nil {
			return err
		}
		e, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer closeEngine(e)

		if _, err := e.Finalize(cmd.Context(), user, args[0]); err != nil {
			return err
		}
		rep, err := e.Status(cmd.Context(), user, args[0])
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), renderer(cmd).Status(rep))
		return nil
	},
}
