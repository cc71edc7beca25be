package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewNowCmd создаёт команду немедленной постановки задачи.
func NewNowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var flags definitionFlags

	cmd := &cobra.Command{
		Use:   "now",
		Short: "Enqueue a job immediately",
		Example: `  kronos now --type email --data to=a@b.com
  kronos now --definition @job.json --attr priority=high`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := flags.build()
			if err != nil {
				return err
			}

			client := clientFn()
			out := outputFn()

			res, err := client.ScheduleNow(cmd.Context(), def)
			if err != nil {
				return err
			}

			out.Report(res.Report)
			printJob(out, &res.Job, res)
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

// NewAtCmd создаёт команду однократного запуска.
func NewAtCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var flags definitionFlags

	cmd := &cobra.Command{
		Use:   "at WHEN",
		Short: "Schedule a job to run once",
		Example: `  kronos at "in 10 minutes" --type report
  kronos at "tomorrow at 9am" --type email --data to=a@b.com`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := flags.build()
			if err != nil {
				return err
			}

			client := clientFn()
			out := outputFn()

			ack, err := client.ScheduleAt(cmd.Context(), strings.Join(args, " "), def)
			if err != nil {
				return err
			}

			out.Report(ack.Report)
			printAck(out, ack)
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

// NewEveryCmd создаёт команду повторяющегося расписания.
func NewEveryCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var flags definitionFlags

	cmd := &cobra.Command{
		Use:   "every INTERVAL",
		Short: "Schedule a recurring job",
		Example: `  kronos every "5 minutes" --type cleanup
  kronos every "*/15 * * * *" --type sync`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := flags.build()
			if err != nil {
				return err
			}

			client := clientFn()
			out := outputFn()

			ack, err := client.ScheduleEvery(cmd.Context(), strings.Join(args, " "), def)
			if err != nil {
				return err
			}

			out.Report(ack.Report)
			printAck(out, ack)
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

func printAck(out *Output, ack *AckResponse) {
	headers := []string{"SCHEDULE_ID", "KIND", "TAG", "FIRE_AT", "TTL"}
	rows := [][]string{{ack.ScheduleID, ack.Kind, ack.Tag, ack.FireAt, formatTTL(ack.TTLMs)}}

	out.Print(headers, rows, ack)
	out.Success(fmt.Sprintf("Schedule %s armed", ack.ScheduleID))
}

func printJob(out *Output, job *JobResponse, jsonData any) {
	headers := []string{"ID", "TYPE", "STATE", "PRIORITY", "TAG", "CREATED_AT"}
	rows := [][]string{{
		job.ID, job.Type, job.State, strconv.Itoa(job.Priority), job.Tag(), job.CreatedAt,
	}}

	out.Print(headers, rows, jsonData)
}
