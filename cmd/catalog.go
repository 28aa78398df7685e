package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/pathway/internal/model"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Browse available scenarios",
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scenarios",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadCatalog(cmd)
		if err != nil {
			return err
		}
		list, err := c.ListScenarios(cmd.Context())
		if err != nil {
			return err
		}
		lang, _ := cmd.Flags().GetString("lang")

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%-24s  %-12s  %-9s  %-5s  %s\n", "ID", "Mode", "Status", "Tasks", "Title")
		fmt.Fprintln(out, strings.Repeat("─", 80))
		for _, sc := range list {
			fmt.Fprintf(out, "%-24s  %-12s  %-9s  %-5d  %s\n",
				sc.ID, sc.Mode, sc.Status, len(sc.TaskTemplates), sc.Title.Get(lang))
		}
		return nil
	},
}

var catalogShowCmd = &cobra.Command{
	Use:   "show <scenario>",
	Short: "Show a scenario with its tasks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadCatalog(cmd)
		if err != nil {
			return err
		}
		sc, err := c.GetScenario(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		lang, _ := cmd.Flags().GetString("lang")

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s (%s, %s)\n", sc.Title.Get(lang), sc.ID, sc.Mode)
		if d := sc.Description.Get(lang); d != "" {
			fmt.Fprintln(out, d)
		}
		md := sc.ModeData
		if md.TimeLimit > 0 {
			fmt.Fprintf(out, "Time limit: %s\n", md.TimeLimit)
		}
		if md.PassingThreshold > 0 {
			fmt.Fprintf(out, "Passing threshold: %.0f%%\n", md.PassingThreshold)
		}
		fmt.Fprintln(out)
		for i, t := range sc.TaskTemplates {
			printTemplate(cmd, i, t, lang)
		}
		return nil
	},
}

func printTemplate(cmd *cobra.Command, i int, t model.TaskTemplate, lang string) {
	out := cmd.OutOrStdout()
	title := t.Title.Get(lang)
	if title == "" {
		title = t.Key
	}
	fmt.Fprintf(out, "%d. %s [%s]\n", i+1, title, t.Type)
	if s := t.Instructions.Get(lang); s != "" {
		fmt.Fprintf(out, "   %s\n", s)
	}
	for _, q := range t.Questions {
		fmt.Fprintf(out, "   - %s: %s\n", q.ID, q.Prompt.Get(lang))
	}
	if t.MinTurns > 0 {
		fmt.Fprintf(out, "   at least %d messages\n", t.MinTurns)
	}
}

func init() {
	for _, c := range []*cobra.Command{catalogListCmd, catalogShowCmd} {
		c.Flags().String("lang", "en", "Preferred language for titles")
	}
	catalogCmd.AddCommand(catalogListCmd)
	catalogCmd.AddCommand(catalogShowCmd)
}
