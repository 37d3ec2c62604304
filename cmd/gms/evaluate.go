package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/glaucomacare/gms/internal/domain/adherence"
	"github.com/glaucomacare/gms/internal/domain/calendar"
)

func evaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run the adherence check once for a date",
		Long:  "Run the adherence check once for --date (YYYY-MM-DD), or for today in TIMEZONE when omitted. Safe to repeat: existing pending alerts are not duplicated.",
		RunE: func(cmd *cobra.Command, args []string) error {
			date, _ := cmd.Flags().GetString("date")
			return runEvaluate(cmd, date)
		},
	}
	cmd.Flags().String("date", "", "Civil date to evaluate (YYYY-MM-DD)")
	return cmd
}

type evaluationOutput struct {
	Date string `json:"date"`
	adherence.EvaluationSummary
	DurationMS int64 `json:"duration_ms"`
}

func runEvaluate(cmd *cobra.Command, date string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := bootstrap(ctx, cmd, "gms-evaluate")
	if err != nil {
		return err
	}
	defer a.close()

	evaluator, err := a.newEvaluator()
	if err != nil {
		return err
	}

	day := evaluator.Today()
	if date != "" {
		if day, err = calendar.Parse(date); err != nil {
			return fmt.Errorf("invalid --date: %w", err)
		}
	}

	summary, err := evaluator.EvaluateDay(ctx, day)
	if summary != nil {
		out, mErr := json.MarshalIndent(evaluationOutput{
			Date:              calendar.Format(summary.Date),
			EvaluationSummary: *summary,
			DurationMS:        summary.Duration.Milliseconds(),
		}, "", "  ")
		if mErr != nil {
			return mErr
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
	}
	if err != nil {
		a.logger.Error("evaluation did not complete", zap.Error(err))
		return err
	}
	return nil
}
