package cli

import (
	"context"
	"fmt"

	"github.com/gorakshaai/goraksha/pkg/data"
	urfave "github.com/urfave/cli/v3"
)

var (
	historyAnimalFlag = &urfave.StringFlag{
		Name:  "animal",
		Usage: "Only list predictions for this animal type (optional)",
	}

	limitFlag = &urfave.IntFlag{
		Name:  "limit",
		Usage: fmt.Sprintf("Maximum number of predictions to list (1-%d)", data.PredictionListLimitMax),
		Value: data.PredictionListLimitDefault,
	}

	summaryFlag = &urfave.BoolFlag{
		Name:  "summary",
		Usage: "Print prediction counts per disease and severity instead",
	}

	historyCmd = &urfave.Command{
		Name:   "history",
		Usage:  "List stored predictions, newest first",
		Action: cmdHistory,
		Flags: []urfave.Flag{
			historyAnimalFlag,
			limitFlag,
			summaryFlag,
		},
	}
)

func cmdHistory(ctx context.Context, cmd *urfave.Command) error {
	cfg, err := getConfig(ctx, cmd)
	if err != nil {
		return err
	}

	limit := int(cmd.Int(limitFlag.Name))
	if limit < 1 || limit > data.PredictionListLimitMax {
		return fmt.Errorf("limit must be between 1 and %d, got %d", data.PredictionListLimitMax, limit)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if cmd.Bool(summaryFlag.Name) {
		list, err := store.SummarizePredictions(ctx)
		if err != nil {
			return fmt.Errorf("summarizing predictions: %w", err)
		}
		return encode(cmd.Root().Writer, cfg.Format, list)
	}

	list, err := store.ListPredictions(ctx, optional(cmd.String(historyAnimalFlag.Name)), limit)
	if err != nil {
		return fmt.Errorf("listing predictions: %w", err)
	}

	return encode(cmd.Root().Writer, cfg.Format, list)
}
