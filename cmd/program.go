package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/abhisek/pathway/internal/mode"
)

var startCmd = &cobra.Command{
	Use:   "start <scenario>",
	Short: "Start a program from a scenario",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := requireUser(cmd)
		if err != nil {
			return err
		}
		lang, _ := cmd.Flags().GetString("lang")
		seed, _ := cmd.Flags().GetUint64("seed")

		e, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer closeEngine(e)

		p, err := e.Start(cmd.Context(), user, args[0], mode.StartOptions{Language: lang, Seed: seed})
		if err != nil {
			return err
		}
		rep, err := e.Status(cmd.Context(), user, p.ID)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), renderer(cmd).Status(rep))
		return nil
	},
}

var abandonCmd = &cobra.Command{
	Use:   "abandon <program>",
	Short: "Abandon an active program",
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

		p, err := e.Abandon(cmd.Context(), user, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Program %s %s.\n", p.ID, p.Status)
		return nil
	},
}

var focusCmd = &cobra.Command{
	Use:   "focus <program> <task-number>",
	Short: "Move the current task pointer",
	Long:  "Move the current task pointer. Task numbers start at 1, as shown by status.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := requireUser(cmd)
		if err != nil {
			return err
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid task number %q: %w", args[1], err)
		}
		e, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer closeEngine(e)

		p, err := e.Focus(cmd.Context(), user, args[0], n-1)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Current task is now %d of %d.\n", p.CurrentTaskIndex+1, p.TotalTaskCount)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <program>",
	Short: "Show a program's progress and outcome",
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

		rep, err := e.Status(cmd.Context(), user, args[0])
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), renderer(cmd).Status(rep))
		return nil
	},
}

var programsCmd = &cobra.Command{
	Use:   "programs",
	Short: "List a user's programs",
	Args:  cobra.NoArgs,
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

		list, err := e.Programs(cmd.Context(), user)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), renderer(cmd).Programs(list))
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{startCmd, abandonCmd, focusCmd, statusCmd, programsCmd, submitCmd, evaluateCmd, finalizeCmd} {
		c.Flags().StringP("user", "u", "", "User id (required)")
	}
	startCmd.Flags().String("lang", "", "Preferred language for the program")
	startCmd.Flags().Uint64("seed", 0, "Task shuffle seed (0 derives one from the start time)")
}
