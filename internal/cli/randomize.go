package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"forum-quiz-service/internal/app"
)

// NewRandomizeCmd reshuffles answer options of a batch file in place.
func NewRandomizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "randomize <file>",
		Short: "Shuffle answer options and record order of a batch file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tally, err := app.NewRandomizer().RandomizeFile(args[0])
			if err != nil {
				return fmt.Errorf("invalid file: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "The correct answer distribution is:")
			fmt.Fprintln(out, tally.String())
			fmt.Fprintf(out, "Successfully rewrote %s (%d quizzes)\n", args[0], tally.Total())
			return nil
		},
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
