package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewGroupCmd manages the current group.
func NewGroupCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Manage the group quizzes are sent to",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set <group_id>",
		Short: "Register a group and make it current",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, *configPath, func(rt *runtime) error {
				if err := rt.catalog.SetCurrentGroup(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Group set successfully: %s!\n", args[0])
				return nil
			})
		},
	})
	return cmd
}

// NewTopicCmd manages topics of a group.
func NewTopicCmd(configPath *string) *cobra.Command {
	var group string
	cmd := &cobra.Command{
		Use:   "topic",
		Short: "Manage forum topics of a group",
	}
	cmd.PersistentFlags().StringVar(&group, "group", "", "group id (default: current group)")

	cmd.AddCommand(&cobra.Command{
		Use:   "add <name> <thread_id>",
		Short: "Map a topic name to a forum thread",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			thread, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("thread id must be a number: %w", err)
			}
			return withRuntime(cmd, *configPath, func(rt *runtime) error {
				topic, err := rt.catalog.AddTopic(cmd.Context(), group, args[0], thread)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Topic '%s' added successfully!\n", topic.Name)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, *configPath, func(rt *runtime) error {
				if err := rt.catalog.RemoveTopic(cmd.Context(), group, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Topic '%s' removed successfully!\n", args[0])
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List topics sorted by name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, *configPath, func(rt *runtime) error {
				topics, err := rt.catalog.ListTopics(group)
				if err != nil {
					return err
				}
				if len(topics) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No topics found.")
					return nil
				}
				for _, t := range topics {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", t.Name, t.ThreadID)
				}
				return nil
			})
		},
	})
	return cmd
}

func withRuntime(cmd *cobra.Command, configPath string, fn func(rt *runtime) error) error {
	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	rt, err := openRuntime(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt)
}
