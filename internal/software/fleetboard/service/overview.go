package service

import (
	"context"
	"time"

	"fieldnav/internal/domain/navigation"
	"fieldnav/internal/ports"
)

// GetOverview collects aggregate counters about open sessions and today's outcomes.
func (service *fleetService) GetOverview(ctx context.Context) (ports.FleetOverviewResult, error) {
	var res ports.FleetOverviewResult
	now := service.now().UTC()
	res.Timestamp = now

	// define the start and end of the day
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	endOfDay := startOfDay.Add(24 * time.Hour)

	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		// ----- open sessions -----
		open, err := service.fleet.CountOpenByState(txCtx)
		if err != nil {
			return err
		}
		res.Open.ByState = make(map[string]int, len(open))
		for state, n := range open {
			res.Open.ByState[state.String()] = n
			res.Open.Total += n
		}

		// ----- today -----
		started, err := service.fleet.CountStartedBetween(txCtx, startOfDay, endOfDay)
		if err != nil {
			return err
		}
		res.Today.Started = started

		ended, err := service.fleet.CountEndedByStateBetween(txCtx, startOfDay, endOfDay)
		if err != nil {
			return err
		}
		res.Today.Arrived = ended[navigation.StateArrived]
		res.Today.Cancelled = ended[navigation.StateCancelled]
		res.Today.Failed = ended[navigation.StateError]

		if total := res.Today.Arrived + res.Today.Cancelled + res.Today.Failed; total > 0 {
			res.Today.CompletionRate = float64(res.Today.Arrived) / float64(total)
		}
		return nil
	})
	if err != nil {
		return ports.FleetOverviewResult{}, err
	}

	return res, nil
}
