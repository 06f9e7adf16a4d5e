package metric

import (
	"context"
	"log"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

const (
	OpStake    = "stake"
	OpWithdraw = "withdraw"
	OpClaim    = "claim"
)

var (
	msStakeOp  = stats.Int64("staking_op", "staking operation amount", stats.UnitDimensionless)
	msStakers  = stats.Int64("staking_stakers", "stakers with an open position", stats.UnitDimensionless)
	mkOpType   = NewMetricKey("op_type")
	stakingMks = []tag.Key{mkOpType}
)

func RegisterStaking() {
	err := view.Register(
		NewMetricView(msStakeOp, view.Count(), stakingMks),
		NewMetricView(msStakeOp, view.Sum(), stakingMks),
		NewMetricView(msStakers, view.LastValue(), stakingMks),
	)
	if err != nil {
		log.Fatalf("Fail RegisterStaking view.Register %+v", err)
	}
}

func NewStakingContext(pool string, op string) context.Context {
	mtOp := GetMetricTag(&mkOpType, op)
	return NewMetricContext(pool, mtOp)
}

func RecordOnStakeOp(c context.Context, tokens int64) {
	stats.Record(c, msStakeOp.M(tokens))
}

func RecordStakers(c context.Context, n int) {
	stats.Record(c, msStakers.M(int64(n)))
}
