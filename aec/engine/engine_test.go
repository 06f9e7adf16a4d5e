package engine

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aethercycle/aethercycle-protocol-sub000/aec/acmodule"
	"github.com/aethercycle/aethercycle-protocol-sub000/aec/actest"
	"github.com/aethercycle/aethercycle-protocol-sub000/aec/endowment"
	"github.com/aethercycle/aethercycle-protocol-sub000/aec/staking"
	"github.com/aethercycle/aethercycle-protocol-sub000/common/errors"
	"github.com/aethercycle/aethercycle-protocol-sub000/common/log"
)

const genesis = int64(1_700_000_000)

var (
	tokenPoolAddr = acmodule.MustParseAddress("0x0000000000000000000000000000000000000014")
	nftPoolAddr   = acmodule.MustParseAddress("0x0000000000000000000000000000000000000015")
	adminAddr     = acmodule.MustParseAddress("0x0000000000000000000000000000000000000016")
)

type fixture struct {
	clock  *acmodule.ManualClock
	ledger *actest.MemoryLedger
	sink   *actest.RecorderSink

	endow     *endowment.Endowment
	lpPool    *staking.Pool
	tokenPool *staking.Pool
	nftPool   *staking.Pool
	engine    *Engine
}

func newFixture(t *testing.T) *fixture {
	clock := acmodule.NewManualClock(genesis)
	ledger := actest.NewMemoryLedger()
	sink := actest.NewRecorderSink()
	logger := log.New()

	endow, err := endowment.New(&endowment.Config{
		Self:            actest.EndowmentAddress,
		Actor:           actest.EngineAddress,
		Emergency:       actest.EmergencyAddress,
		InitialAmount:   acmodule.BigIntEndowmentInitial,
		ReleaseInterval: acmodule.DefaultPeriodLength,
		DecayRate:       acmodule.DefaultDecayRate,
		Compounding:     true,
	}, clock, ledger, sink, logger)
	assert.NoError(t, err)

	lpPool, err := staking.NewLPPool(
		actest.PoolAddress, actest.EngineAddress, clock, ledger, sink, logger)
	assert.NoError(t, err)
	tokenPool, err := staking.NewTokenPool(
		tokenPoolAddr, actest.EngineAddress, clock, ledger, sink, logger)
	assert.NoError(t, err)
	nftPool, err := staking.NewNFTPool(
		nftPoolAddr, actest.EngineAddress, clock, ledger, sink, logger)
	assert.NoError(t, err)

	eng, err := New(
		&Config{
			Self:   actest.EngineAddress,
			Admin:  adminAddr,
			LPPool: lpPool,
		},
		endow,
		[]*PoolSplit{
			{Pool: tokenPool, Share: 5_000},
			{Pool: nftPool, Share: 3_000},
		},
		clock, ledger, sink, logger,
	)
	assert.NoError(t, err)

	ledger.Mint(actest.EndowmentAddress, acmodule.BigIntEndowmentInitial)
	assert.NoError(t, endow.Initialize())

	return &fixture{
		clock:  clock,
		ledger: ledger,
		sink:   sink,

		endow:     endow,
		lpPool:    lpPool,
		tokenPool: tokenPool,
		nftPool:   nftPool,
		engine:    eng,
	}
}

func TestEngine_New(t *testing.T) {
	f := newFixture(t)

	_, err := New(&Config{Self: actest.EngineAddress, Admin: adminAddr},
		f.endow,
		[]*PoolSplit{
			{Pool: f.tokenPool, Share: 9_000},
			{Pool: f.nftPool, Share: 2_000},
		},
		f.clock, f.ledger, f.sink, log.New())
	assert.True(t, errors.BoundsError.Equals(err))

	_, err = New(&Config{Self: actest.EngineAddress, Admin: adminAddr},
		f.endow,
		[]*PoolSplit{{Pool: nil, Share: 1_000}},
		f.clock, f.ledger, f.sink, log.New())
	assert.Error(t, err)
}

func TestEngine_RunCycleNothingDue(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.RunCycle()
	assert.True(t, errors.TimingError.Equals(err))
}

func TestEngine_RunCycle(t *testing.T) {
	f := newFixture(t)
	f.clock.PassSeconds(31 * acmodule.DaySecond)

	res, err := f.engine.RunCycle()
	assert.NoError(t, err)
	assert.Equal(t, 1, res.Periods)

	released := acmodule.DefaultDecayRate.MulBigInt(acmodule.BigIntEndowmentInitial)
	assert.Zero(t, res.Released.Cmp(released))

	// 50% to the token pool, 30% to the NFT pool
	tokenShare := acmodule.Rate(5_000).MulBigInt(released)
	nftShare := acmodule.Rate(3_000).MulBigInt(released)
	assert.Zero(t, f.tokenPool.GetStatus().RemainingBaseRewards.Cmp(tokenShare))
	assert.Zero(t, f.nftPool.GetStatus().RemainingBaseRewards.Cmp(nftShare))
	for _, rr := range res.Refills {
		assert.True(t, rr.OK)
	}

	// the remainder is staked as protocol-owned liquidity, no bonus tier
	remainder := new(big.Int).Sub(released, tokenShare)
	remainder.Sub(remainder, nftShare)
	assert.True(t, res.LPDeployOK)
	assert.Zero(t, res.DeployedLP.Cmp(remainder))
	info := f.lpPool.GetStakeInfo(actest.EngineAddress)
	assert.Zero(t, info.Amount.Cmp(remainder))
	assert.Zero(t, info.WeightedAmount.Cmp(remainder))

	st := f.engine.GetStatus()
	assert.EqualValues(t, 1, st.CycleCount)
	assert.Zero(t, st.TotalRouted.Cmp(released))

	ev := f.sink.LastByName("CycleCompleted")
	assert.NotNil(t, ev)
	assert.Equal(t, released.String(), ev.Attr("released"))
}

func TestEngine_RunCycleBestEffortRefill(t *testing.T) {
	f := newFixture(t)

	// a pool whose actor is somebody else rejects the engine's refill
	foreignPool, err := staking.NewTokenPool(
		nftPoolAddr, actest.Alice, f.clock, f.ledger, f.sink, log.New())
	assert.NoError(t, err)

	eng, err := New(
		&Config{Self: actest.EngineAddress, Admin: adminAddr},
		f.endow,
		[]*PoolSplit{
			{Pool: f.tokenPool, Share: 5_000},
			{Pool: foreignPool, Share: 3_000},
		},
		f.clock, f.ledger, f.sink, log.New(),
	)
	assert.NoError(t, err)

	f.clock.PassSeconds(31 * acmodule.DaySecond)
	res, err := eng.RunCycle()
	// the primary release still succeeds
	assert.NoError(t, err)
	assert.True(t, res.Refills[0].OK)
	assert.False(t, res.Refills[1].OK)
	assert.NotEmpty(t, res.Refills[1].Reason)
	assert.Equal(t, 1, f.sink.CountByName("RefillSkipped"))
	assert.Zero(t, foreignPool.GetStatus().RemainingBaseRewards.Sign())
}

func TestEngine_RenouncePrivileges(t *testing.T) {
	f := newFixture(t)

	err := f.engine.RenouncePrivileges(actest.Alice)
	assert.True(t, errors.AuthorizationError.Equals(err))
	assert.False(t, f.engine.IsRenounced())

	assert.NoError(t, f.engine.RenouncePrivileges(adminAddr))
	assert.True(t, f.engine.IsRenounced())
	assert.NotNil(t, f.sink.LastByName("PrivilegesRenounced"))

	err = f.engine.RenouncePrivileges(adminAddr)
	assert.True(t, errors.StateError.Equals(err))

	// the capability is permanently disabled
	f.clock.PassSeconds(31 * acmodule.DaySecond)
	_, err = f.engine.RunCycle()
	assert.True(t, errors.StateError.Equals(err))

	err = f.engine.NotifyBonus(adminAddr, f.tokenPool, acmodule.ToTokenAmount(100))
	assert.True(t, errors.StateError.Equals(err))
}

func TestEngine_NotifyBonus(t *testing.T) {
	f := newFixture(t)
	f.ledger.Mint(actest.EngineAddress, acmodule.ToTokenAmount(1_000))
	f.ledger.Mint(actest.Alice, acmodule.ToTokenAmount(1_000))
	f.ledger.Approve(actest.Alice, tokenPoolAddr, acmodule.ToTokenAmount(1_000))
	assert.NoError(t, f.tokenPool.Stake(actest.Alice, acmodule.ToTokenAmount(100), 0))

	err := f.engine.NotifyBonus(actest.Alice, f.tokenPool, acmodule.ToTokenAmount(500))
	assert.True(t, errors.AuthorizationError.Equals(err))

	assert.NoError(t, f.engine.NotifyBonus(adminAddr, f.tokenPool, acmodule.ToTokenAmount(500)))
	st := f.tokenPool.GetStatus()
	assert.Zero(t, st.TotalBonusAdded.Cmp(acmodule.ToTokenAmount(500)))
	assert.Positive(t, st.BonusRewardRate.Sign())
}
