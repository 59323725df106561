package workers

import (
	"time"

	"agendazap/services"

	"github.com/rs/zerolog"
)

// StartRecoverySweep starts a loop that periodically resets instances stuck
// in connecting beyond the recovery threshold. The returned stop function
// ends the loop.
func StartRecoverySweep(rec *services.RecoveryService, interval time.Duration, log zerolog.Logger) (stop func()) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	logger := log.With().Str("component", "recovery_sweep").Logger()
	done := make(chan struct{})

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
			}

			count, err := rec.SweepStuck()
			if err != nil {
				logger.Error().Err(err).Msg("sweep failed")
				continue
			}
			if count > 0 {
				logger.Info().Int("reset", count).Msg("reset stuck instances")
			}
		}
	}()

	return func() { close(done) }
}
