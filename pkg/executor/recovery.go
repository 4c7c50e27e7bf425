package executor

import (
	"context"
	"time"

	"github.com/quantcore/permaker/pkg/fixedpoint"
	"github.com/quantcore/permaker/pkg/mmstate"
)

// checkVolatilityPause implements spec.md §4.5.1's RUNNING→PAUSED and
// PAUSED→RUNNING volatility hysteresis. Returns true if the tick should
// stop early (a pause was just entered).
func (e *Executor) checkVolatilityPause(volBps fixedpoint.Value) bool {
	state := e.state()

	if state == StateRunning && volBps.Compare(e.cfg.PauseThresholdBps) > 0 {
		e.cancelAllLocked(PauseReasonVolatility)
		return true
	}

	if state == StatePaused {
		e.mu.Lock()
		reason := e.pauseReason
		e.mu.Unlock()
		if reason != PauseReasonVolatility {
			return true
		}

		if volBps.Compare(e.cfg.ResumeThresholdBps) > 0 {
			e.mu.Lock()
			e.volStableSinceValid = false
			e.mu.Unlock()
			return true
		}

		e.mu.Lock()
		if !e.volStableSinceValid {
			e.volStableSince = time.Now()
			e.volStableSinceValid = true
		}
		stableFor := time.Since(e.volStableSince)
		e.mu.Unlock()

		if stableFor >= e.cfg.StableSecs {
			e.resume()
		}
		return true
	}

	return false
}

// checkHardStop implements spec.md §4.5.1's hard-stop: RUNNING→PAUSED when
// |position| >= hard_stop_position, and PAUSED(hard)→RUNNING after cooldown
// plus resume_check_count consecutive ticks under resume_position.
func (e *Executor) checkHardStop(ctx context.Context) bool {
	position := e.livePosition(ctx)
	state := e.state()

	if state == StateRunning {
		if e.cfg.HardStopPosition.Sign() > 0 && position.Abs().Compare(e.cfg.HardStopPosition) >= 0 {
			e.mu.Lock()
			e.hardStopAt = time.Now()
			e.hardStopResumeStreak = 0
			e.mu.Unlock()
			e.cancelAllLocked(PauseReasonHardStop)
			return true
		}
		return false
	}

	if state != StatePaused {
		return false
	}

	e.mu.Lock()
	reason := e.pauseReason
	hardStopAt := e.hardStopAt
	e.mu.Unlock()
	if reason != PauseReasonHardStop {
		return true
	}

	if time.Since(hardStopAt) < e.cfg.CooldownSec {
		return true
	}

	if position.Abs().Compare(e.cfg.ResumePosition) < 0 {
		e.mu.Lock()
		e.hardStopResumeStreak++
		streak := e.hardStopResumeStreak
		e.mu.Unlock()
		if streak >= e.cfg.ResumeCheckCount {
			e.resume()
		}
	} else {
		e.mu.Lock()
		e.hardStopResumeStreak = 0
		e.mu.Unlock()
	}
	return true
}

// checkRecovery runs at the top of a PAUSED tick before anything else, per
// spec.md §4.5.2 step 1. A hedge-risk pause is handled by
// checkHedgeRiskRecovery alone; otherwise the volatility hysteresis (when
// a volatility reading is available) and then the hard-stop check run.
func (e *Executor) checkRecovery(ctx context.Context) {
	if e.checkHedgeRiskRecovery(ctx) {
		return
	}
	volBps, ok := e.st.VolatilityBps()
	if ok {
		e.checkVolatilityPause(volBps)
	}
	e.checkHardStop(ctx)
}

// checkHedgeRiskRecovery gates resumption from a hedge-risk-control pause on
// the hedge venue actually recovering connectivity (spec.md §4.4 step 5),
// not on the primary position decaying — that hysteresis belongs to
// checkHardStop and is a distinct pause cause. Returns true if the pause
// reason was hedge risk, whether or not recovery fired, so the caller skips
// the hard-stop/volatility checks for this tick.
func (e *Executor) checkHedgeRiskRecovery(ctx context.Context) bool {
	e.mu.Lock()
	reason := e.pauseReason
	e.mu.Unlock()
	if reason != PauseReasonHedgeRisk {
		return false
	}
	if e.hedge == nil {
		e.resume()
		return true
	}
	if e.hedge.CheckRecoveryForSource(ctx, e.symbol) {
		e.resume()
	}
	return true
}

func (e *Executor) cancelAllLocked(reason PauseReason) {
	e.mu.Lock()
	e.pauseReason = reason
	e.mu.Unlock()
	e.cancelAll(context.Background(), cancelReasonFor(reason))
	e.setState(StatePaused)
}

func cancelReasonFor(reason PauseReason) mmstate.CancelReason {
	switch reason {
	case PauseReasonHardStop:
		return mmstate.CancelReasonHardStop
	case PauseReasonHedgeRisk:
		return mmstate.CancelReasonHedgeRisk
	default:
		return mmstate.CancelReasonVolatility
	}
}

// livePosition re-fetches the primary's position directly, since the
// hard-stop recovery check must run even while the tick loop is paused and
// skipping the regular poll-for-fills step that otherwise refreshes the
// cached MM State position.
func (e *Executor) livePosition(ctx context.Context) fixedpoint.Value {
	positions, err := e.primary.GetPositions(ctx, e.symbol)
	if err != nil || len(positions) == 0 {
		return e.st.Position(e.primary.VenueID())
	}
	e.st.SetPosition(e.primary.VenueID(), positions[0].Qty)
	return positions[0].Qty
}

func (e *Executor) resume() {
	e.mu.Lock()
	e.pauseReason = PauseReasonNone
	e.volStableSinceValid = false
	e.hardStopResumeStreak = 0
	e.mu.Unlock()
	e.setState(StateRunning)
}
