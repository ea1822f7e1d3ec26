package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"forum-quiz-service/internal/app"
	"forum-quiz-service/internal/batchfile"
	"forum-quiz-service/internal/domain"
)

// NewQuizCmd dispatches quizzes from the command line.
func NewQuizCmd(configPath *string) *cobra.Command {
	var (
		group  string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "quiz",
		Short: "Send quizzes to the current group",
	}
	cmd.PersistentFlags().StringVar(&group, "group", "", "group id (default: current group)")
	cmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "validate and record quizzes without sending them")

	var (
		topic    string
		question string
		options  []string
		correct  int
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Send a single quiz",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withImporter(cmd, *configPath, dryRun, func(rt *runtime, importer *app.Importer) error {
				msgID, err := importer.AddQuiz(cmd.Context(), group, topic, domain.Quiz{
					Question:      question,
					Options:       options,
					CorrectOption: correct,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Quiz added successfully! (message %d)\n", msgID)
				return nil
			})
		},
	}
	add.Flags().StringVar(&topic, "topic", "", "topic name")
	add.Flags().StringVar(&question, "question", "", "question text")
	add.Flags().StringArrayVar(&options, "option", nil, "answer option (repeat for each option)")
	add.Flags().IntVar(&correct, "correct", 0, "index of the correct option")
	_ = add.MarkFlagRequired("topic")
	_ = add.MarkFlagRequired("question")

	var asJSON bool
	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Send every quiz of a JSON or YAML batch file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			return withImporter(cmd, *configPath, dryRun, func(rt *runtime, importer *app.Importer) error {
				summary, err := importer.ImportDocument(cmd.Context(), group, f, batchfile.FormatOf(args[0]))
				if err != nil && !summary.Canceled {
					return err
				}
				printSummary(cmd, summary, asJSON)
				return err
			})
		},
	}
	importCmd.Flags().BoolVar(&asJSON, "json", false, "print the summary as JSON")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Close every poll recorded as sent in the quiz log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withImporter(cmd, *configPath, dryRun, func(rt *runtime, importer *app.Importer) error {
				res, err := importer.ClearResponses(cmd.Context(), rt.catalog, group)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Closed %d quizzes, %d failed.\n", res.Stopped, res.Failed)
				if res.Failed > 0 {
					return errors.New("some polls could not be closed")
				}
				return nil
			})
		},
	}

	cmd.AddCommand(add, importCmd, clearCmd)
	return cmd
}

func withImporter(cmd *cobra.Command, configPath string, dryRun bool, fn func(rt *runtime, importer *app.Importer) error) error {
	return withRuntime(cmd, configPath, func(rt *runtime) error {
		if dryRun || rt.cfg.Telegram.DryRun {
			// Nothing leaves the process, so neither pacing nor the quiz log applies.
			return fn(rt, app.NewImporter(rt.catalog, rt.sink(nil), app.NoopPacer{},
				app.WithLogger(rt.logger), app.WithMaxOptions(rt.cfg.Dispatch.MaxOptions)))
		}
		api, err := rt.botAPI()
		if err != nil {
			return err
		}
		return fn(rt, rt.importer(rt.sink(api)))
	})
}

func printSummary(cmd *cobra.Command, summary domain.ImportSummary, asJSON bool) {
	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		_ = enc.Encode(summary)
		return
	}
	fmt.Fprintln(out, "Bulk upload summary:")
	for _, t := range sortedKeys(summary.Accepted) {
		fmt.Fprintf(out, "%s: %d added\n", t, summary.Accepted[t])
	}
	fmt.Fprintf(out, "Failed: %d\n", summary.Failed)
	for _, f := range summary.Failures {
		fmt.Fprintf(out, "  #%d %s [%s] %s\n", f.Index, f.Topic, f.Kind, f.Reason)
	}
	if summary.Canceled {
		fmt.Fprintln(out, "Import was interrupted.")
	}
}
