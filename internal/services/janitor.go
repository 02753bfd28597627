package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const purgeTimeout = 30 * time.Second

// LinkTokenJanitor periodically removes used and expired link tokens
type LinkTokenJanitor struct {
	links *LinkService
	cron  *cron.Cron
}

// NewLinkTokenJanitor schedules the purge job. schedule is a cron spec such
// as "@every 15m".
func NewLinkTokenJanitor(links *LinkService, schedule string) (*LinkTokenJanitor, error) {
	j := &LinkTokenJanitor{
		links: links,
		cron:  cron.New(),
	}
	if _, err := j.cron.AddFunc(schedule, j.RunOnce); err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}
	return j, nil
}

// Start runs the scheduler in the background
func (j *LinkTokenJanitor) Start() {
	j.cron.Start()
	log.Info().Msg("Link token janitor started")
}

// Stop stops the scheduler and waits for a running purge to finish
func (j *LinkTokenJanitor) Stop() {
	<-j.cron.Stop().Done()
}

// RunOnce purges spent tokens now
func (j *LinkTokenJanitor) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
	defer cancel()

	n, err := j.links.PurgeSpent(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to purge link tokens")
		return
	}
	if n > 0 {
		log.Info().Int64("deleted", n).Msg("Purged spent link tokens")
	}
}
