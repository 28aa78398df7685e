package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/pathway/internal/attempt"
	"github.com/abhisek/pathway/internal/model"
)

var submitCmd = &cobra.Command{
	Use:   "submit <task>",
	Short: "Record an interaction against a task",
	Example: `  pathway submit -u ana <task> --question eq-1 --answer B
  pathway submit -u ana <task> --message "Equal is not always fair."
  pathway submit -u ana <task> --type hint`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := requireUser(cmd)
		if err != nil {
			return err
		}
		sub, err := submissionFromFlags(cmd)
		if err != nil {
			return err
		}

		e, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer closeEngine(e)

		res, err := e.Submit(cmd.Context(), user, args[0], sub)
		if res == nil {
			return err
		}
		printResult(cmd, res)
		if err != nil {
			return fmt.Errorf("interaction recorded, evaluation failed: %w", err)
		}
		return nil
	},
}

func submissionFromFlags(cmd *cobra.Command) (attempt.Submission, error) {
	f := cmd.Flags()
	eventType, _ := f.GetString("type")
	question, _ := f.GetString("question")
	answer, _ := f.GetString("answer")
	message, _ := f.GetString("message")
	spent, _ := f.GetFloat64("time")
	comps, _ := f.GetStringSlice("competency")

	if eventType == "" {
		switch {
		case f.Changed("answer"):
			eventType = string(model.EventAnswer)
		case f.Changed("message"):
			eventType = string(model.EventMessage)
		default:
			return attempt.Submission{}, fmt.Errorf("one of --answer, --message or --type is required")
		}
	}

	sub := attempt.Submission{
		EventType:        model.EventType(eventType),
		QuestionID:       question,
		Content:          message,
		TimeSpentSeconds: spent,
		Competencies:     comps,
	}
	if f.Changed("answer") {
		sub.Answer = answer
	}
	return sub, nil
}

func printResult(cmd *cobra.Command, res *attempt.Result) {
	out := cmd.OutOrStdout()
	in := res.Interaction
	line := fmt.Sprintf("Recorded %s #%d", in.EventType, in.Sequence)
	if c := in.Payload.IsCorrect; c != nil {
		if *c {
			line += " (correct)"
		} else {
			line += " (incorrect)"
		}
	}
	fmt.Fprintln(out, line)
	if res.Started {
		fmt.Fprintln(out, "Task started.")
	}
	if res.Complete && res.Evaluation == nil {
		fmt.Fprintln(out, "Task complete. Run evaluate to score it.")
	}
	if res.Evaluation != nil {
		fmt.Fprint(out, renderer(cmd).Evaluation(res.Evaluation))
	}
}

func init() {
	f := submitCmd.Flags()
	f.StringP("type", "t", "", "Event type: answer, message or hint (inferred from --answer or --message)")
	f.StringP("question", "q", "", "Question id for answers")
	f.StringP("answer", "a", "", "Answer text")
	f.StringP("message", "m", "", "Message content")
	f.Float64("time", 0, "Seconds spent")
	f.StringSlice("competency", nil, "Competency codes exercised")
}
