package ticket

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// SweepInterval is the cron cadence for Sweeper. Tickets already expire on
// their own via Redis TTL; this only trims the secondary expiry index.
const SweepInterval = "@every 5m"

// Sweeper periodically sweeps the ticket store's expiry index.
type Sweeper struct {
	cron  *cron.Cron
	store *Store
	log   *zap.Logger
}

// NewSweeper constructs a Sweeper bound to store.
func NewSweeper(store *Store, log *zap.Logger) *Sweeper {
	return &Sweeper{
		cron:  cron.New(),
		store: store,
		log:   log,
	}
}

// Start schedules and starts the sweep job. Call Stop to shut down.
func (sw *Sweeper) Start() error {
	_, err := sw.cron.AddFunc(SweepInterval, sw.tick)
	if err != nil {
		return err
	}
	sw.cron.Start()
	sw.log.Info("ticket sweeper started", zap.String("interval", SweepInterval))
	return nil
}

// Stop waits for any in-flight sweep to finish, then returns.
func (sw *Sweeper) Stop() {
	ctx := sw.cron.Stop()
	<-ctx.Done()
	sw.log.Info("ticket sweeper stopped")
}

func (sw *Sweeper) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	removed, err := sw.store.Sweep(ctx)
	if err != nil {
		sw.log.Error("ticket sweep failed", zap.Error(err))
		return
	}
	if removed > 0 {
		sw.log.Info("ticket sweep complete", zap.Int64("removed", removed))
	}
}
