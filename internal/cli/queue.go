package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/noah-isme/edu-portal-api/internal/dto"
	"github.com/noah-isme/edu-portal-api/internal/models"
	"github.com/noah-isme/edu-portal-api/internal/repository"
	"github.com/noah-isme/edu-portal-api/internal/service"
)

const operatorID = "portalctl"

// QueueCmd prints or exports the reviewer queue for a chapter.
func QueueCmd() *cobra.Command {
	var (
		chapter string
		domain  string
		limit   int
		format  string
		output  string
	)

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Show open interview tasks, most urgent first",
		Long: `Lists the reviewer queue as a chapter lead of --chapter would see it.
Without --chapter every chapter is listed.
With --format csv|pdf the queue is written to --output instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			query := dto.TaskQuery{Limit: limit}
			if domain != "" {
				d, err := models.ParseInterviewDomain(domain)
				if err != nil {
					return err
				}
				query.Domain = &d
			}

			rt, err := openRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			svc := service.NewInterviewTaskService(repository.NewInterviewRepository(rt.db), nil, nil, rt.cfg.Interviews, rt.logger)
			actor := operator(chapter)

			if format != "" {
				out, err := svc.ExportQueue(cmd.Context(), actor, query, format)
				if err != nil {
					return err
				}
				path := output
				if path == "" {
					path = out.Filename
				}
				if err := os.WriteFile(path, out.Body, 0o644); err != nil {
					return fmt.Errorf("write export: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
				return nil
			}

			tasks, err := svc.Queue(cmd.Context(), actor, query)
			if err != nil {
				return err
			}
			renderQueue(cmd.OutOrStdout(), tasks)
			return nil
		},
	}
	cmd.Flags().StringVar(&chapter, "chapter", "", "chapter to scope the queue to")
	cmd.Flags().StringVar(&domain, "domain", "", "hiring or readiness")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum subjects per domain")
	cmd.Flags().StringVar(&format, "format", "", "export format: csv or pdf")
	cmd.Flags().StringVarP(&output, "output", "o", "", "export file path")
	return cmd
}

// operator acts as admin across chapters, or as the lead of one chapter.
func operator(chapter string) models.ActingUser {
	if chapter == "" {
		return models.ActingUser{ID: operatorID, Roles: []models.UserRole{models.RoleAdmin}}
	}
	return models.ActingUser{ID: operatorID, Roles: []models.UserRole{models.RoleChapterLead}, ChapterID: chapter}
}

func stageLabel(stage models.TaskStage) string {
	padded := fmt.Sprintf("%-12s", stage)
	switch stage {
	case models.StageNeedsAction:
		return color.New(color.FgYellow, color.Bold).Sprint(padded)
	case models.StageBlocked:
		return color.New(color.FgRed).Sprint(padded)
	case models.StageScheduled:
		return color.New(color.FgCyan).Sprint(padded)
	case models.StageCompleted:
		return color.New(color.FgGreen).Sprint(padded)
	}
	return padded
}

func renderQueue(w io.Writer, tasks []models.InterviewTask) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, "queue is empty")
		return
	}
	for _, task := range tasks {
		next := "-"
		if task.PrimaryAction != nil {
			next = string(task.PrimaryAction.ActionKind())
		}
		fmt.Fprintf(w, "%s %-9s %s\n", stageLabel(task.Stage), task.Domain, task.Title)
		if detail := strings.TrimSpace(task.Detail); detail != "" {
			fmt.Fprintf(w, "    %s\n", detail)
		}
		fmt.Fprintf(w, "    next: %s  updated: %s\n", next, task.Timestamps.UpdatedAt.Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(w, "%d open\n", len(tasks))
}
