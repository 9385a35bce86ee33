package cmd

import (
	"context"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/deckhand-sh/deckhand/pkg/controller"
	"github.com/deckhand-sh/deckhand/pkg/schemas"
)

// Deploy runs a single deployment from the local checkout and exits. Branch
// and revision default to the checked out HEAD unless overridden with flags.
func Deploy(cliCtx *cli.Context) (int, error) {
	cfg, err := configure(cliCtx)
	if err != nil {
		return 1, err
	}

	ctx, ctxCancel := context.WithCancel(context.Background())
	defer ctxCancel()

	c, err := controller.New(ctx, cfg)
	if err != nil {
		return 1, err
	}

	trigger := schemas.Trigger{
		Target:   cliCtx.String("target"),
		Branch:   cliCtx.String("ref"),
		Revision: cliCtx.String("revision"),
		Source:   schemas.TriggerSourceManual,
	}

	id := uuid.New().String()

	log.WithFields(log.Fields{
		"deployment-id": id,
		"target":        trigger.Target,
	}).Debug("running one-shot deployment")

	if err = c.RunDeployment(ctx, id, trigger); err != nil {
		return 1, err
	}

	return 0, nil
}
