package main

import (
	"fmt"
	"time"

	"ethics-review/internal/common/config"
	"ethics-review/internal/wizard"

	"github.com/spf13/cobra"
)

func newClient(cfg *config.Config) *wizard.HTTPEntityClient {
	return wizard.NewHTTPEntityClient(
		cfg.Wizard.APIBaseURL,
		config.GetDuration(cfg.Wizard.RequestTimeout),
		config.GetDuration(cfg.Wizard.UploadTimeout),
	)
}

func runCommand() *cobra.Command {
	var (
		answersPath string
		resumeID    string
		attempts    int
		backoff     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Walk the eleven steps using an answers file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			log := newLogger(cfg)

			answers, err := wizard.LoadAnswers(answersPath)
			if err != nil {
				return err
			}

			session := wizard.NewSession(newClient(cfg), log)
			for _, step := range session.Steps() {
				if docs, ok := step.(*wizard.DocumentsStep); ok {
					docs.Concurrency = cfg.Wizard.UploadConcurrency
				}
			}

			ctx := cmd.Context()
			if resumeID != "" {
				if err := session.Resume(ctx, resumeID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "resuming application %s at step %d\n",
					resumeID, session.Current().Number())
			}

			runner := &wizard.Runner{
				Session:  session,
				Answers:  answers,
				Out:      cmd.OutOrStdout(),
				Attempts: attempts,
				Backoff:  backoff,
			}
			return runner.Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&answersPath, "answers", "a", "answers.yaml", "YAML file with the form answers")
	cmd.Flags().StringVar(&resumeID, "resume", "", "continue an existing draft application")
	cmd.Flags().IntVar(&attempts, "attempts", 3, "saves per step when the failure is retryable")
	cmd.Flags().DurationVar(&backoff, "backoff", time.Second, "delay between retried saves")
	return cmd
}
