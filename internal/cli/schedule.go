package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewScheduleCmd создаёт группу команд для управления расписаниями.
func NewScheduleCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage schedules",
	}

	cmd.AddCommand(
		newScheduleListCmd(clientFn, outputFn),
		newScheduleCreateCmd(clientFn, outputFn),
		newScheduleShowCmd(clientFn, outputFn),
		newScheduleCancelCmd(clientFn, outputFn),
	)

	return cmd
}

func newScheduleListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List armed schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			pending, err := client.ListSchedules(cmd.Context(), limit)
			if err != nil {
				return err
			}

			headers := []string{"SCHEDULE_ID", "KIND", "TAG", "TYPE", "FIRE_AT", "OCCURRENCE", "TTL"}
			rows := make([][]string, len(pending))
			for i, p := range pending {
				jobType, _ := p.Definition["type"].(string)
				rows[i] = []string{
					p.ScheduleID, p.Kind, p.Tag, jobType, p.FireAt,
					strconv.FormatInt(p.Occurrence, 10), formatTTL(p.TTLMs),
				}
			}

			out.Print(headers, rows, pending)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of schedules")

	return cmd
}

func newScheduleCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var flags definitionFlags

	cmd := &cobra.Command{
		Use:   "create WHEN",
		Short: "Register a schedule from a date expression",
		Long: `Register a schedule from a date expression.

"now" enqueues the job immediately, "every ..." and cron expressions
create a recurring schedule, anything else fires once.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := flags.build()
			if err != nil {
				return err
			}

			client := clientFn()
			out := outputFn()

			res, err := client.Schedule(cmd.Context(), strings.Join(args, " "), def)
			if err != nil {
				return err
			}

			out.Report(res.Report)
			switch {
			case res.Ack != nil:
				printAck(out, res.Ack)
			case res.Job != nil:
				printJob(out, res.Job, res)
				out.Success(fmt.Sprintf("Job %s enqueued", res.Job.ID))
			}
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

func newScheduleShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show SCHEDULE_ID",
		Short: "Show schedule details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			p, err := client.GetSchedule(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			jobType, _ := p.Definition["type"].(string)
			headers := []string{"FIELD", "VALUE"}
			rows := [][]string{
				{"Schedule ID", p.ScheduleID},
				{"Kind", p.Kind},
				{"Expression", p.Expr},
				{"Tag", p.Tag},
				{"Job type", jobType},
				{"Fire at", p.FireAt},
				{"Occurrence", strconv.FormatInt(p.Occurrence, 10)},
				{"Created", p.CreatedAt},
				{"TTL", formatTTL(p.TTLMs)},
			}

			out.Print(headers, rows, p)
			return nil
		},
	}
}

func newScheduleCancelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:     "cancel SCHEDULE_ID",
		Aliases: []string{"delete"},
		Short:   "Cancel a schedule",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.CancelSchedule(cmd.Context(), args[0]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Schedule %s cancelled", args[0]))
			return nil
		},
	}
}
