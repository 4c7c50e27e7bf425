package executor

import (
	"context"

	"github.com/quantcore/permaker/pkg/mmstate"
	"github.com/quantcore/permaker/pkg/types"
)

// reconcile is the REST gate of spec.md §4.5.3: get_open_orders is treated
// as authoritative over local Intended Orders.
func (e *Executor) reconcile(ctx context.Context) error {
	remote, err := e.primary.GetOpenOrders(ctx, e.symbol)
	if err != nil {
		return err
	}

	bySide := map[types.Side][]types.Order{}
	for _, o := range remote {
		bySide[o.Side] = append(bySide[o.Side], o)
	}

	e.reconcileSide(ctx, types.SideBuy, bySide[types.SideBuy])
	e.reconcileSide(ctx, types.SideSell, bySide[types.SideSell])
	return nil
}

func (e *Executor) reconcileSide(ctx context.Context, side types.Side, remote []types.Order) {
	local, hasLocal := e.st.IntendedOrder(side)

	if len(remote) == 0 {
		if hasLocal {
			e.st.ClearIntendedOrder(side)
		}
		return
	}

	if len(remote) > 1 {
		newest := remote[0]
		for _, o := range remote[1:] {
			if o.CreatedAt.After(newest.CreatedAt) {
				newest = o
			}
		}
		for _, o := range remote {
			if o.ExchangeOrderID == newest.ExchangeOrderID {
				continue
			}
			e.cancelOrphan(ctx, side, o, mmstate.CancelReasonReconcile)
		}
		remote = []types.Order{newest}
	}

	match := remote[0]
	if !hasLocal || local.ExchangeOrderID != match.ExchangeOrderID {
		if hasLocal {
			e.cancelOrphan(ctx, side, match, mmstate.CancelReasonReconcile)
			e.st.ClearIntendedOrder(side)
		} else {
			// an order exists remotely with nothing local tracking it
			e.cancelOrphan(ctx, side, match, mmstate.CancelReasonReconcile)
		}
		return
	}

	e.st.MutateIntendedOrder(side, func(o *types.IntendedOrder) {
		o.CumulativeFilled = match.CumulativeFilled
		o.Status = match.Status
	})
}

func (e *Executor) cancelOrphan(ctx context.Context, side types.Side, order types.Order, reason mmstate.CancelReason) {
	if _, err := e.primary.CancelOrder(ctx, e.symbol, order.ExchangeOrderID, order.ClientOrderID); err != nil {
		e.log.WithError(err).WithField("order_id", order.ExchangeOrderID).Warn("orphan cancel failed")
		return
	}
	e.st.RecordCancel(side, reason)
}
