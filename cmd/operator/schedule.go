package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/rahul/operator/internal/gateway"
	"github.com/rahul/operator/internal/store"
)

func newScheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage cases that run on an interval while serve is running",
	}
	cmd.AddCommand(newScheduleAddCmd(), newScheduleListCmd(), newScheduleRemoveCmd())
	return cmd
}

func newScheduleAddCmd() *cobra.Command {
	var (
		every     time.Duration
		gw        string
		chatID    string
		stepsFile string
	)
	cmd := &cobra.Command{
		Use:   "add <url> [instruction...]",
		Short: "Schedule a case; results are sent to a chat",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if every != 0 && every < time.Minute {
				return fmt.Errorf("--every must be at least 1m")
			}
			steps, err := readSteps(args[1:], stepsFile, cmd.InOrStdin())
			if err != nil {
				return err
			}
			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.Close()

			id, err := a.store.AddSchedule(cmd.Context(), store.Schedule{
				ChatID:          chatID,
				Gateway:         gw,
				URL:             args[0],
				Steps:           steps,
				IntervalSeconds: int(every / time.Second),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Scheduled case #%d\n", id)
			return nil
		},
	}
	cmd.Flags().DurationVar(&every, "every", 0, "run interval; 0 runs once")
	cmd.Flags().StringVar(&gw, "gateway", gateway.NameTelegram, "gateway that receives the results (telegram or discord)")
	cmd.Flags().StringVar(&chatID, "chat", "", "chat or channel ID that receives the results")
	cmd.Flags().StringVarP(&stepsFile, "steps-file", "f", "", "read instructions from a file (- for stdin)")
	_ = cmd.MarkFlagRequired("chat")
	return cmd
}

func newScheduleListCmd() *cobra.Command {
	var chatID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List schedules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.Close()

			list, err := a.store.ListSchedules(cmd.Context(), chatID)
			if err != nil {
				return err
			}
			printer(cmd).Schedules(list)
			return nil
		},
	}
	cmd.Flags().StringVar(&chatID, "chat", "", "only this chat's schedules")
	return cmd
}

func newScheduleRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid schedule id %q", args[0])
			}
			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.store.DeleteSchedule(cmd.Context(), id); err != nil {
				return fmt.Errorf("schedule #%d: %w", id, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed schedule #%d\n", id)
			return nil
		},
	}
}
