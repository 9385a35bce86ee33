package controller

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// GarbageCollectArchives removes image archives which outlived the configured
// retention window. Archives only exist to be transferred once; keeping them
// longer than the window only burns disk on the build host.
func (c *Controller) GarbageCollectArchives(ctx context.Context) error {
	// Log the start of the garbage collection process
	log.Info("starting 'archives' garbage collection")
	defer log.Info("ending 'archives' garbage collection")

	removed, err := c.Images.PruneArchives(time.Now())
	if err != nil {
		return err
	}

	// Log info for each archive removed
	for _, archive := range removed {
		log.WithContext(ctx).
			WithFields(log.Fields{
				"archive": archive,
			}).
			Info("garbage collected archive")
	}

	log.WithFields(log.Fields{
		"archives-count": len(removed),
	}).Debug("archives garbage collected")

	return nil
}
