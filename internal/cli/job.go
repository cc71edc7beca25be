package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/Kronos/internal/mq"
	"github.com/shaiso/Kronos/internal/telemetry"
)

// NewJobCmd создаёт группу команд для просмотра задач очереди.
func NewJobCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Inspect queued jobs",
	}

	cmd.AddCommand(
		newJobListCmd(clientFn, outputFn),
		newJobShowCmd(clientFn, outputFn),
		newJobWatchCmd(outputFn),
	)

	return cmd
}

func newJobListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListJobsOpts

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			jobs, total, err := client.ListJobs(cmd.Context(), opts)
			if err != nil {
				return err
			}

			headers := []string{"ID", "TYPE", "STATE", "PRIORITY", "TAG", "SCHEDULE_ID", "CREATED_AT"}
			rows := make([][]string, len(jobs))
			for i, j := range jobs {
				rows[i] = []string{
					j.ID, j.Type, j.State, strconv.Itoa(j.Priority),
					j.Tag(), j.ScheduleID, j.CreatedAt,
				}
			}

			out.Print(headers, rows, jobs)
			if len(jobs) < total {
				out.Success(fmt.Sprintf("Showing %d of %d jobs", len(jobs), total))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Type, "type", "", "Filter by job type")
	cmd.Flags().StringVar(&opts.State, "state", "", "Filter by state (QUEUED, DELAYED)")
	cmd.Flags().StringVar(&opts.ScheduleID, "schedule-id", "", "Filter by schedule ID")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of jobs")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Number of jobs to skip")

	return cmd
}

func newJobShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show JOB_ID",
		Short: "Show job details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			j, err := client.GetJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			headers := []string{"FIELD", "VALUE"}
			rows := [][]string{
				{"ID", j.ID},
				{"Type", j.Type},
				{"State", j.State},
				{"Priority", strconv.Itoa(j.Priority)},
				{"Max attempts", strconv.Itoa(j.MaxAttempts)},
				{"Tag", j.Tag()},
				{"Schedule ID", j.ScheduleID},
				{"Idempotency key", j.IdempotencyKey},
				{"Created", j.CreatedAt},
			}
			if j.DelayMs > 0 {
				rows = append(rows, []string{"Delay", formatTTL(j.DelayMs)})
			}
			if j.PromoteAt != "" {
				rows = append(rows, []string{"Promote at", j.PromoteAt})
			}

			out.Print(headers, rows, j)
			return nil
		},
	}
}

func newJobWatchCmd(outputFn func() *Output) *cobra.Command {
	var amqpURL string
	var jobType string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream job announcements from RabbitMQ",
		Long: `Stream job announcements from RabbitMQ.

Binds a temporary queue to the jobs exchange, so announcements are
observed without being taken from workers.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := telemetry.NewLogger(io.Discard, "error", "text")
			conn, err := mq.NewConnection(amqpURL, logger)
			if err != nil {
				return err
			}
			defer conn.Close()

			queue, err := mq.DeclareTap(ctx, conn)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Watching %s (Ctrl+C to stop)", mq.RoutingKeyQueued))

			consumer := mq.NewConsumer(conn, logger, mq.ConsumerConfig{
				Queue:    queue,
				Handler:  watchHandler(out, jobType),
				Prefetch: 10,
			})
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&amqpURL, "amqp-url", envOr("KRONOS_AMQP_URL", mq.DefaultURL), "RabbitMQ URL")
	cmd.Flags().StringVar(&jobType, "type", "", "Only show jobs of this type")

	return cmd
}

// watchHandler печатает объявление о задаче одной строкой (или JSON).
func watchHandler(out *Output, jobType string) mq.Handler {
	return func(_ context.Context, msg *mq.Message) error {
		if msg.Type != mq.MessageTypeJobQueued {
			return nil
		}

		p, err := mq.ParsePayload[mq.JobQueuedPayload](msg)
		if err != nil {
			out.Error(err.Error())
			return nil
		}
		if jobType != "" && p.Type != jobType {
			return nil
		}

		if out.jsonMode {
			out.JSON(p)
			return nil
		}
		fmt.Fprintf(out.w, "%s  %s  %s  priority=%d  %s\n",
			msg.Timestamp.Format(time.RFC3339), p.JobID, p.Type, p.Priority, p.Tag)
		return nil
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
