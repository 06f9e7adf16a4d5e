package metric

import (
	"context"
	"log"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var (
	msRelease        = stats.Int64("treasury_release", "released tokens", stats.UnitDimensionless)
	msReleasePeriods = stats.Int64("treasury_release_periods", "periods processed per release", stats.UnitDimensionless)
	msBalance        = stats.Int64("treasury_balance", "remaining treasury balance", stats.UnitDimensionless)
	treasuryMks      = []tag.Key{}
)

func RegisterTreasury() {
	err := view.Register(
		NewMetricView(msRelease, view.Count(), treasuryMks),
		NewMetricView(msRelease, view.Sum(), treasuryMks),
		NewMetricView(msReleasePeriods, view.Sum(), treasuryMks),
		NewMetricView(msBalance, view.LastValue(), treasuryMks),
	)
	if err != nil {
		log.Fatalf("Fail RegisterTreasury view.Register %+v", err)
	}
}

// RecordOnRelease records a release with amounts scaled down to whole
// token units to stay within int64.
func RecordOnRelease(c context.Context, tokens int64, periods int) {
	stats.Record(c, msRelease.M(tokens), msReleasePeriods.M(int64(periods)))
}

func RecordBalance(c context.Context, tokens int64) {
	stats.Record(c, msBalance.M(tokens))
}
