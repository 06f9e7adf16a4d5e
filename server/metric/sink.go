package metric

import (
	"math/big"
	"strconv"

	"github.com/aethercycle/aethercycle-protocol-sub000/aec/acmodule"
)

// Sink translates protocol events into opencensus records so that the
// prometheus endpoint reflects protocol activity without the domain
// packages depending on the metric stack.
type Sink struct{}

func NewSink() *Sink {
	return &Sink{}
}

func tokensOf(attrs map[string]string, key string) (int64, bool) {
	v, ok := attrs[key]
	if !ok {
		return 0, false
	}
	amount, ok := new(big.Int).SetString(v, 10)
	if !ok {
		return 0, false
	}
	tokens := new(big.Int).Quo(amount, acmodule.BigIntTokenUnit)
	if !tokens.IsInt64() {
		return 0, false
	}
	return tokens.Int64(), true
}

func (s *Sink) OnEvent(ev *acmodule.Event) {
	switch ev.Name {
	case "EndowmentReleased":
		tokens, ok := tokensOf(ev.Attrs, "amount")
		if !ok {
			return
		}
		periods, _ := strconv.Atoi(ev.Attrs["periodsProcessed"])
		ctx := NewMetricContext(ev.Module)
		RecordOnRelease(ctx, tokens, periods)
		if balance, ok := tokensOf(ev.Attrs, "newBalance"); ok {
			RecordBalance(ctx, balance)
		}
	case "Staked", "EngineStaked":
		if tokens, ok := tokensOf(ev.Attrs, "amount"); ok {
			RecordOnStakeOp(NewStakingContext(ev.Module, OpStake), tokens)
		}
	case "Withdrawn":
		if tokens, ok := tokensOf(ev.Attrs, "amount"); ok {
			RecordOnStakeOp(NewStakingContext(ev.Module, OpWithdraw), tokens)
		}
	case "RewardClaimed":
		if tokens, ok := tokensOf(ev.Attrs, "amount"); ok {
			RecordOnStakeOp(NewStakingContext(ev.Module, OpClaim), tokens)
		}
	}
}
