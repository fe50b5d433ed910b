package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"clipforge/internal/api"
	"clipforge/internal/broadcast"
	"clipforge/internal/jobs"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:     "jobs",
		Aliases: []string{"job"},
		Short:   "Submit, inspect, and control export jobs",
	}

	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newJobsSubmitCommand(ctx))
	jobsCmd.AddCommand(newJobsCancelCommand(ctx))
	jobsCmd.AddCommand(newJobsRestartCommand(ctx))
	jobsCmd.AddCommand(newJobsRemoveCommand(ctx))
	jobsCmd.AddCommand(newJobsWatchCommand(ctx))

	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var user string
	var statuses []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, status := range statuses {
				if _, ok := jobs.ParseStatus(status); !ok {
					return fmt.Errorf("unknown status %q", status)
				}
			}
			return ctx.withClient(func(client *api.Client) error {
				list, err := client.ListJobs(cmd.Context(), user, statuses...)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, api.JobListResponse{Jobs: list})
				}
				if len(list) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderJobList(list))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "", "Only jobs owned by this user")
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (repeatable)")
	addJSONFlag(cmd, &asJSON)
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show one job with its live progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				job, err := client.Job(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, job)
				}
				fmt.Fprint(cmd.OutOrStdout(), renderJobDetail(job))
				return nil
			})
		},
	}
	addJSONFlag(cmd, &asJSON)
	return cmd
}

func newJobsSubmitCommand(ctx *commandContext) *cobra.Command {
	var (
		req      api.SubmitRequest
		file     string
		exports  exportFlags
		reencode bool
		watch    bool
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a new export job",
		Long: `Submit a new export job.

Exports are given as repeatable flags, e.g.
  clipforge jobs submit --user alice --video v1 --source in.mp4 --duration 120 \
    --cut 10:25 --preview 10:3:12:480 --still 12.5 --loop 0:2:4

or as a JSON request body with --file (use - for stdin). Flags override
fields read from the file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			body := api.SubmitRequest{}
			if file != "" {
				loaded, err := readSubmitFile(file, cmd.InOrStdin())
				if err != nil {
					return err
				}
				body = loaded
			}
			mergeSubmitFlags(cmd, &body, req)

			if !exports.empty() {
				parsed, err := exports.exports()
				if err != nil {
					return err
				}
				if reencode {
					for _, export := range parsed {
						if export.Cut != nil {
							export.Cut.Reencode = true
						}
					}
				}
				body.Options.Exports = append(body.Options.Exports, parsed...)
			}
			if len(body.Options.Exports) == 0 {
				return errors.New("at least one export is required (--cut, --preview, --still, --loop, or --file)")
			}

			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Submit(cmd.Context(), body)
				if err != nil {
					return err
				}
				if asJSON {
					if err := writeJSON(cmd, resp); err != nil {
						return err
					}
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Submitted %s (%d operations, budget %s)\n",
						resp.SessionID, len(resp.Job.Operations), formatSeconds(resp.Job.TimeoutBudgetSeconds))
				}
				if !watch {
					return nil
				}
				return watchJob(cmd, client, resp.SessionID)
			})
		},
	}

	cmd.Flags().StringVar(&req.SessionID, "session", "", "Session id (generated when omitted)")
	cmd.Flags().StringVar(&req.VideoID, "video", "", "Video id")
	cmd.Flags().StringVarP(&req.UserID, "user", "u", "", "Owning user id")
	cmd.Flags().StringVar(&req.UserEmail, "email", "", "Owner email for notifications")
	cmd.Flags().StringVar(&req.SourcePath, "source", "", "Source media path")
	cmd.Flags().Float64Var(&req.SourceDurationSeconds, "duration", 0, "Source duration in seconds")
	cmd.Flags().Int64Var(&req.SourceSizeBytes, "size", 0, "Source size in bytes")
	cmd.Flags().StringArrayVar(&exports.cuts, "cut", nil, "Cut START:END seconds (repeatable)")
	cmd.Flags().StringArrayVar(&exports.previews, "preview", nil, "Animated preview START:DURATION[:FPS[:WIDTH]] (repeatable)")
	cmd.Flags().StringArrayVar(&exports.stills, "still", nil, "Still frame AT[:WIDTH] (repeatable)")
	cmd.Flags().StringArrayVar(&exports.loops, "loop", nil, "Loop START:DURATION:COUNT (repeatable)")
	cmd.Flags().BoolVar(&reencode, "reencode", false, "Re-encode cuts instead of stream copying")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the request body from a JSON file")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Follow progress until the job finishes")
	addJSONFlag(cmd, &asJSON)
	return cmd
}

func readSubmitFile(path string, stdin io.Reader) (api.SubmitRequest, error) {
	var reader io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return api.SubmitRequest{}, fmt.Errorf("open request file: %w", err)
		}
		defer f.Close()
		reader = f
	}
	var req api.SubmitRequest
	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		return api.SubmitRequest{}, fmt.Errorf("parse request file: %w", err)
	}
	return req, nil
}

// mergeSubmitFlags copies explicitly set flags over body.
func mergeSubmitFlags(cmd *cobra.Command, body *api.SubmitRequest, flags api.SubmitRequest) {
	changed := cmd.Flags().Changed
	if changed("session") {
		body.SessionID = flags.SessionID
	}
	if changed("video") {
		body.VideoID = flags.VideoID
	}
	if changed("user") {
		body.UserID = flags.UserID
	}
	if changed("email") {
		body.UserEmail = flags.UserEmail
	}
	if changed("source") {
		body.SourcePath = flags.SourcePath
	}
	if changed("duration") {
		body.SourceDurationSeconds = flags.SourceDurationSeconds
	}
	if changed("size") {
		body.SourceSizeBytes = flags.SourceSizeBytes
	}
}

func newJobsCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <session-id>...",
		Short: "Cancel pending or running jobs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				out := cmd.OutOrStdout()
				var failed []string
				for _, id := range args {
					if _, err := client.Cancel(cmd.Context(), id); err != nil {
						if errors.Is(err, api.ErrUnavailable) {
							return err
						}
						fmt.Fprintf(out, "Job %s: %s\n", id, describeError(err))
						failed = append(failed, id)
						continue
					}
					fmt.Fprintf(out, "Job %s cancelled\n", id)
				}
				if len(failed) > 0 {
					return fmt.Errorf("could not cancel %s", strings.Join(failed, ", "))
				}
				return nil
			})
		},
	}
}

func newJobsRestartCommand(ctx *commandContext) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "restart <session-id>",
		Short: "Restart a pending or running job from scratch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				job, err := client.Restart(cmd.Context(), args[0], reason)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s restarted (restart #%d)\n", job.SessionID, job.Restarts)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded with the restart")
	return cmd
}

func newJobsRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <session-id>...",
		Short: "Delete finished jobs from the database",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				out := cmd.OutOrStdout()
				var failed []string
				for _, id := range args {
					if err := client.Remove(cmd.Context(), id); err != nil {
						if errors.Is(err, api.ErrUnavailable) {
							return err
						}
						fmt.Fprintf(out, "Job %s: %s\n", id, describeError(err))
						failed = append(failed, id)
						continue
					}
					fmt.Fprintf(out, "Job %s removed\n", id)
				}
				if len(failed) > 0 {
					return fmt.Errorf("could not remove %s", strings.Join(failed, ", "))
				}
				return nil
			})
		},
	}
}

func newJobsWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <session-id>",
		Short: "Follow a job's progress until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				return watchJob(cmd, client, args[0])
			})
		},
	}
}

// watchJob prints stream events and returns an error when the job failed.
func watchJob(cmd *cobra.Command, client *api.Client, sessionID string) error {
	out := cmd.OutOrStdout()
	var final broadcast.Event
	err := client.Watch(cmd.Context(), sessionID, func(evt broadcast.Event) error {
		fmt.Fprintln(out, formatEvent(evt))
		if evt.Kind == broadcast.KindStatus {
			final = evt
		}
		return nil
	})
	if err != nil {
		return err
	}
	if final.Status == jobs.StatusFailed {
		return fmt.Errorf("job %s failed: %s", sessionID, final.Message)
	}
	return nil
}

func describeError(err error) string {
	var statusErr *api.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Message
	}
	return err.Error()
}
