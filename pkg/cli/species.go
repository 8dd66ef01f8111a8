package cli

import (
	"context"

	"github.com/gorakshaai/goraksha/pkg/diagnosis"
	urfave "github.com/urfave/cli/v3"
)

var speciesCmd = &urfave.Command{
	Name:   "species",
	Usage:  "List species profiles with their diseases and symptom tags",
	Action: cmdSpecies,
}

func cmdSpecies(ctx context.Context, cmd *urfave.Command) error {
	cfg, err := getConfig(ctx, cmd)
	if err != nil {
		return err
	}
	return encode(cmd.Root().Writer, cfg.Format, newProfileTable(diagnosis.DefaultTable()))
}
