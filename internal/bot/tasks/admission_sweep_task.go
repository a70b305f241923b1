package tasks

import (
	"context"
	"fmt"
	"time"
)

// sweepTimeout bounds one full sweep over the destination list.
const sweepTimeout = 5 * time.Minute

// newAdmissionSweepTask creates a scheduled task that re-verifies the bot's
// admin status in every active destination. Destinations where the bot lost
// its privileges accumulate failure reports between cycles instead of only
// being discovered at dispatch time.
func newAdmissionSweepTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "admission_sweep")

	return func(ctx context.Context) error {
		log.InfoContext(ctx, "Starting scheduled admission sweep...")
		startTime := time.Now()

		sctx, cancel := context.WithTimeout(ctx, sweepTimeout)
		defer cancel()

		dests, err := deps.Store.ListActiveDestinations(sctx)
		if err != nil {
			log.ErrorContext(ctx, "Admission sweep failed to list destinations", "error", err)
			return fmt.Errorf("admission sweep failed: %w", err)
		}

		var checked, lost, skipped int
		for _, dest := range dests {
			if sctx.Err() != nil {
				log.WarnContext(ctx, "Admission sweep cut short", "error", sctx.Err(), "checked", checked)
				return sctx.Err()
			}

			// Force a fresh lookup instead of trusting a cached answer.
			deps.Admission.Invalidate(dest.ChatID)

			admin, err := deps.Admission.IsAdmin(sctx, dest.ChatID)
			if err != nil {
				log.WarnContext(ctx, "Admission sweep lookup failed, leaving destination alone",
					"chat_id", dest.ChatID, "error", err)
				skipped++
				continue
			}
			checked++

			if !admin {
				if _, repErr := deps.Store.ReportDeliveryFailure(sctx, dest.ChatID, "not admin"); repErr != nil {
					log.ErrorContext(ctx, "Failed to report lost admin status",
						"chat_id", dest.ChatID, "error", repErr)
					continue
				}
				lost++
			}
		}

		log.InfoContext(ctx, "Admission sweep completed",
			"destinations", len(dests), "checked", checked, "lost_admin", lost, "skipped", skipped,
			"duration", time.Since(startTime))
		return nil
	}
}
