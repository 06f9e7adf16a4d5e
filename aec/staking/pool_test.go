package staking

import (
	"math/big"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aethercycle/aethercycle-protocol-sub000/aec/acmodule"
	"github.com/aethercycle/aethercycle-protocol-sub000/aec/actest"
	"github.com/aethercycle/aethercycle-protocol-sub000/common/errors"
	"github.com/aethercycle/aethercycle-protocol-sub000/common/log"
)

const genesis = int64(1_700_000_000)

type poolFixture struct {
	clock  *acmodule.ManualClock
	ledger *actest.MemoryLedger
	sink   *actest.RecorderSink
	p      *Pool
}

func newPoolFixture(t *testing.T, newFn func(self, actor acmodule.Address,
	clock acmodule.Clock, ledger acmodule.TokenLedger,
	sink acmodule.EventSink, logger log.Logger) (*Pool, error)) *poolFixture {
	clock := acmodule.NewManualClock(genesis)
	ledger := actest.NewMemoryLedger()
	sink := actest.NewRecorderSink()
	p, err := newFn(actest.PoolAddress, actest.EngineAddress, clock, ledger, sink, log.New())
	assert.NoError(t, err)
	return &poolFixture{clock: clock, ledger: ledger, sink: sink, p: p}
}

func newTokenFixture(t *testing.T) *poolFixture {
	return newPoolFixture(t, NewTokenPool)
}

func (f *poolFixture) fund(owner acmodule.Address, tokens int) {
	f.ledger.Mint(owner, acmodule.ToTokenAmount(tokens))
	f.ledger.Approve(owner, actest.PoolAddress, acmodule.ToTokenAmount(tokens))
}

func (f *poolFixture) stake(t *testing.T, owner acmodule.Address, tokens int, tier int) {
	assert.NoError(t, f.p.Stake(owner, acmodule.ToTokenAmount(tokens), tier))
}

func (f *poolFixture) fundEngine(tokens int) {
	f.ledger.Mint(actest.EngineAddress, acmodule.ToTokenAmount(tokens))
}

func TestPool_StakeBasics(t *testing.T) {
	f := newTokenFixture(t)
	f.fund(actest.Alice, 1000)

	// below dust
	err := f.p.Stake(actest.Alice, big.NewInt(1), 0)
	assert.True(t, errors.BoundsError.Equals(err))

	// tier outside the catalog
	err = f.p.Stake(actest.Alice, acmodule.ToTokenAmount(10), 99)
	assert.True(t, errors.BoundsError.Equals(err))

	// reserved engine tier is closed to participants
	err = f.p.Stake(actest.Alice, acmodule.ToTokenAmount(10), f.p.Registry().EngineTier())
	assert.True(t, errors.BoundsError.Equals(err))

	f.stake(t, actest.Alice, 100, 0)
	info := f.p.GetStakeInfo(actest.Alice)
	assert.Zero(t, info.Amount.Cmp(acmodule.ToTokenAmount(100)))
	assert.Zero(t, info.WeightedAmount.Cmp(acmodule.ToTokenAmount(100)))
	assert.Equal(t, "Bronze", info.TierName)
	assert.Equal(t, genesis+30*acmodule.DaySecond, info.LockEnd)

	ev := f.sink.LastByName("Staked")
	assert.NotNil(t, ev)
	assert.Equal(t, "Bronze", ev.Attr("tier"))
	assert.Equal(t, acmodule.ToTokenAmount(100).String(), ev.Attr("amount"))

	st := f.p.GetStatus()
	assert.Zero(t, st.TotalSupply.Cmp(acmodule.ToTokenAmount(100)))
	assert.Zero(t, st.TotalWeightedSupply.Cmp(acmodule.ToTokenAmount(100)))
	assert.Equal(t, 1, st.Stakers)

	// tokens moved into the pool
	assert.Zero(t, f.ledger.BalanceOf(actest.PoolAddress).Cmp(acmodule.ToTokenAmount(100)))
}

func TestPool_StakeTierDowngrade(t *testing.T) {
	f := newTokenFixture(t)
	f.fund(actest.Alice, 1000)
	f.stake(t, actest.Alice, 100, 2)

	err := f.p.Stake(actest.Alice, acmodule.ToTokenAmount(50), 0)
	assert.True(t, errors.BoundsError.Equals(err))

	// same tier is fine
	f.stake(t, actest.Alice, 50, 2)
	info := f.p.GetStakeInfo(actest.Alice)
	assert.Zero(t, info.Amount.Cmp(acmodule.ToTokenAmount(150)))

	gold, _ := f.p.Registry().Get(2)
	assert.Zero(t, info.WeightedAmount.Cmp(gold.WeightedAmount(acmodule.ToTokenAmount(150))))
}

func TestPool_StakeLockMonotonic(t *testing.T) {
	f := newTokenFixture(t)
	f.fund(actest.Alice, 1000)
	f.stake(t, actest.Alice, 100, 3)
	lockEnd := f.p.GetStakeInfo(actest.Alice).LockEnd
	assert.Equal(t, genesis+365*acmodule.DaySecond, lockEnd)

	// re-staking later with the same tier extends the lock
	f.clock.PassSeconds(10 * acmodule.DaySecond)
	f.stake(t, actest.Alice, 10, 3)
	assert.Equal(t, lockEnd+10*acmodule.DaySecond, f.p.GetStakeInfo(actest.Alice).LockEnd)
}

func TestPool_StakeRollbackOnTransferFail(t *testing.T) {
	f := newTokenFixture(t)
	f.ledger.Mint(actest.Alice, acmodule.ToTokenAmount(100))
	// no approval: TransferFrom fails

	err := f.p.Stake(actest.Alice, acmodule.ToTokenAmount(100), 0)
	assert.Error(t, err)

	st := f.p.GetStatus()
	assert.Zero(t, st.TotalSupply.Sign())
	assert.Zero(t, st.TotalWeightedSupply.Sign())
	assert.True(t, f.p.GetStakeInfo(actest.Alice).Amount.Sign() == 0)
}

func TestPool_WithdrawScenarioD(t *testing.T) {
	f := newTokenFixture(t)
	f.fund(actest.Alice, 1000)
	f.stake(t, actest.Alice, 100, 0)

	// before lock end
	f.clock.PassSeconds(29 * acmodule.DaySecond)
	err := f.p.Withdraw(actest.Alice, acmodule.ToTokenAmount(100))
	assert.True(t, errors.TimingError.Equals(err))

	// after lock end the identical call returns exactly the principal
	f.clock.PassSeconds(1 * acmodule.DaySecond)
	before := f.ledger.BalanceOf(actest.Alice)
	assert.NoError(t, f.p.Withdraw(actest.Alice, acmodule.ToTokenAmount(100)))
	after := f.ledger.BalanceOf(actest.Alice)
	assert.Zero(t, new(big.Int).Sub(after, before).Cmp(acmodule.ToTokenAmount(100)))

	info := f.p.GetStakeInfo(actest.Alice)
	assert.Zero(t, info.Amount.Sign())
	assert.Zero(t, info.WeightedAmount.Sign())
	assert.Zero(t, f.p.GetStatus().TotalSupply.Sign())
	assert.Zero(t, f.p.GetStatus().TotalWeightedSupply.Sign())
}

func TestPool_WithdrawOverStake(t *testing.T) {
	f := newTokenFixture(t)
	f.fund(actest.Alice, 1000)
	f.stake(t, actest.Alice, 100, 0)
	f.clock.PassSeconds(31 * acmodule.DaySecond)

	err := f.p.Withdraw(actest.Alice, acmodule.ToTokenAmount(101))
	assert.True(t, errors.InsufficientFundsError.Equals(err))

	err = f.p.Withdraw(actest.Bob, acmodule.ToTokenAmount(1))
	assert.True(t, errors.NotFoundError.Equals(err))
}

func TestPool_WithdrawPartial(t *testing.T) {
	f := newTokenFixture(t)
	f.fund(actest.Alice, 1000)
	f.stake(t, actest.Alice, 100, 2)
	f.clock.PassSeconds(181 * acmodule.DaySecond)

	assert.NoError(t, f.p.Withdraw(actest.Alice, acmodule.ToTokenAmount(40)))
	info := f.p.GetStakeInfo(actest.Alice)
	assert.Zero(t, info.Amount.Cmp(acmodule.ToTokenAmount(60)))

	gold, _ := f.p.Registry().Get(2)
	assert.Zero(t, info.WeightedAmount.Cmp(gold.WeightedAmount(acmodule.ToTokenAmount(60))))
	assert.Zero(t, f.p.GetStatus().TotalWeightedSupply.Cmp(info.WeightedAmount))
}

func TestPool_BonusScenarioC(t *testing.T) {
	f := newTokenFixture(t)
	f.fund(actest.Alice, 1000)
	f.fund(actest.Bob, 1000)
	// enough to cover the full bonus transfer below
	f.fundEngine(2_000_000)

	// equal principal, tier 0 (1.0x) vs tier 2 (1.3x)
	f.stake(t, actest.Alice, 1, 0)
	f.stake(t, actest.Bob, 1, 2)

	// bonus chosen to divide evenly by duration and weighted supply
	bonus := new(big.Int).Mul(big.NewInt(acmodule.DefaultBonusDuration), acmodule.ToTokenAmount(23))
	bonus.Quo(bonus, big.NewInt(10))
	assert.NoError(t, f.p.NotifyRewardAmount(actest.EngineAddress, bonus))

	// the bonus actually moved into the pool
	held := new(big.Int).Add(bonus, acmodule.ToTokenAmount(2))
	assert.Zero(t, f.ledger.BalanceOf(actest.PoolAddress).Cmp(held))

	f.clock.PassSeconds(acmodule.DefaultBonusDuration)

	aliceEarned := f.p.Earned(actest.Alice)
	bobEarned := f.p.Earned(actest.Bob)
	assert.Positive(t, aliceEarned.Sign())

	// tier-2 claimable is exactly 1.3x tier-0, before either claims
	exp := new(big.Int).Mul(aliceEarned, big.NewInt(13))
	exp.Quo(exp, big.NewInt(10))
	assert.Zero(t, bobEarned.Cmp(exp))

	// nothing minted from nowhere
	sum := new(big.Int).Add(aliceEarned, bobEarned)
	assert.True(t, sum.Cmp(bonus) <= 0)

	// claims settle and zero the accrual
	got, err := f.p.ClaimReward(actest.Bob)
	assert.NoError(t, err)
	assert.Zero(t, got.Cmp(bobEarned))
	assert.Zero(t, f.p.Earned(actest.Bob).Sign())
	ev := f.sink.LastByName("RewardClaimed")
	assert.NotNil(t, ev)
	assert.Equal(t, bobEarned.String(), ev.Attr("amount"))

	// claiming again is a no-op, not an error
	got, err = f.p.ClaimReward(actest.Bob)
	assert.NoError(t, err)
	assert.Zero(t, got.Sign())
}

func TestPool_BonusLeftoverFolding(t *testing.T) {
	f := newTokenFixture(t)
	f.fund(actest.Alice, 1000)
	f.fundEngine(100_000)
	f.stake(t, actest.Alice, 100, 0)

	err := f.p.NotifyRewardAmount(actest.Alice, acmodule.ToTokenAmount(100))
	assert.True(t, errors.AuthorizationError.Equals(err))

	assert.NoError(t, f.p.NotifyRewardAmount(actest.EngineAddress, acmodule.ToTokenAmount(700)))
	st := f.p.GetStatus()
	rate1 := new(big.Int).Quo(acmodule.ToTokenAmount(700), big.NewInt(acmodule.DefaultBonusDuration))
	assert.Zero(t, st.BonusRewardRate.Cmp(rate1))
	assert.Equal(t, genesis+acmodule.DefaultBonusDuration, st.BonusPeriodFinish)

	// halfway in, a new stream folds the unpaid remainder into its rate
	f.clock.PassSeconds(acmodule.DefaultBonusDuration / 2)
	assert.NoError(t, f.p.NotifyRewardAmount(actest.EngineAddress, acmodule.ToTokenAmount(350)))

	st = f.p.GetStatus()
	leftover := new(big.Int).Mul(rate1, big.NewInt(acmodule.DefaultBonusDuration/2))
	budget := new(big.Int).Add(acmodule.ToTokenAmount(350), leftover)
	rate2 := budget.Quo(budget, big.NewInt(acmodule.DefaultBonusDuration))
	assert.Zero(t, st.BonusRewardRate.Cmp(rate2))
	assert.Equal(t, genesis+acmodule.DefaultBonusDuration/2+acmodule.DefaultBonusDuration,
		st.BonusPeriodFinish)
	assert.Zero(t, st.TotalBonusAdded.Cmp(acmodule.ToTokenAmount(1050)))

	// accrual stops at the period finish
	f.clock.PassSeconds(10 * acmodule.DefaultBonusDuration)
	earned := f.p.Earned(actest.Alice)
	total := st.TotalBonusAdded
	assert.True(t, earned.Cmp(total) <= 0)
	diff := new(big.Int).Sub(total, earned)
	// only fixed-point dust may be lost
	assert.True(t, diff.Cmp(acmodule.ToTokenAmount(1)) < 0)
}

func TestPool_BaseEmission(t *testing.T) {
	f := newTokenFixture(t)
	f.fund(actest.Alice, 1000)
	f.fundEngine(1_000_000)
	f.stake(t, actest.Alice, 100, 0)

	refill := acmodule.ToTokenAmount(10_000)
	assert.NoError(t, f.p.RefillBase(actest.EngineAddress, refill))
	assert.Zero(t, f.p.GetStatus().RemainingBaseRewards.Cmp(refill))

	// one 30-day period decays 0.5% of the remaining budget to stakers
	f.clock.PassSeconds(31 * acmodule.DaySecond)
	expected := acmodule.DefaultDecayRate.MulBigInt(refill)

	earned := f.p.Earned(actest.Alice)
	assert.Zero(t, earned.Cmp(expected))

	got, err := f.p.ClaimReward(actest.Alice)
	assert.NoError(t, err)
	assert.Zero(t, got.Cmp(expected))

	st := f.p.GetStatus()
	assert.Zero(t, st.TotalBaseDistributed.Cmp(expected))
	assert.Zero(t, st.RemainingBaseRewards.Cmp(new(big.Int).Sub(refill, expected)))
}

func TestPool_BaseEmissionPreservedWhileEmpty(t *testing.T) {
	f := newTokenFixture(t)
	f.fund(actest.Alice, 1000)
	f.fundEngine(1_000_000)

	refill := acmodule.ToTokenAmount(10_000)
	assert.NoError(t, f.p.RefillBase(actest.EngineAddress, refill))

	// three periods pass with nobody staked: nothing is burned
	f.clock.PassSeconds(3 * acmodule.MonthSecond)
	st := f.p.GetStatus()
	assert.Zero(t, st.RemainingBaseRewards.Cmp(refill))
	assert.Zero(t, st.TotalBaseDistributed.Sign())

	// the queued periods pay out once someone stakes
	f.stake(t, actest.Alice, 100, 0)
	f.clock.PassSeconds(acmodule.MonthSecond)
	earned := f.p.Earned(actest.Alice)

	exp := new(big.Int)
	left := new(big.Int).Set(refill)
	for i := 0; i < 4; i++ {
		step := acmodule.DefaultDecayRate.MulBigInt(left)
		exp.Add(exp, step)
		left.Sub(left, step)
	}
	assert.Zero(t, earned.Cmp(exp))
}

func TestPool_BaseEmissionSplitIsIdempotent(t *testing.T) {
	run := func(t *testing.T, touchMid bool) *big.Int {
		f := newTokenFixture(t)
		f.fund(actest.Alice, 1000)
		f.fundEngine(1_000_000)
		f.stake(t, actest.Alice, 100, 0)
		assert.NoError(t, f.p.RefillBase(actest.EngineAddress, acmodule.ToTokenAmount(10_000)))

		f.clock.PassSeconds(2 * acmodule.MonthSecond)
		if touchMid {
			// settle in the middle via a zero-claim touch
			_, err := f.p.ClaimReward(actest.Bob)
			assert.NoError(t, err)
		}
		f.clock.PassSeconds(3 * acmodule.MonthSecond)
		return f.p.Earned(actest.Alice)
	}

	oneShot := run(t, false)
	split := run(t, true)
	assert.Zero(t, oneShot.Cmp(split))
}

func TestPool_UpgradeTier(t *testing.T) {
	f := newTokenFixture(t)
	f.fund(actest.Alice, 1000)
	f.fundEngine(100_000)
	f.stake(t, actest.Alice, 100, 0)

	err := f.p.UpgradeTier(actest.Bob, 2)
	assert.True(t, errors.NotFoundError.Equals(err))

	// equal or lower tier is not an upgrade
	err = f.p.UpgradeTier(actest.Alice, 0)
	assert.True(t, errors.BoundsError.Equals(err))

	err = f.p.UpgradeTier(actest.Alice, f.p.Registry().EngineTier())
	assert.True(t, errors.BoundsError.Equals(err))

	// accrue some bonus first; the upgrade must not change it
	assert.NoError(t, f.p.NotifyRewardAmount(actest.EngineAddress, acmodule.ToTokenAmount(700)))
	f.clock.PassSeconds(acmodule.DefaultBonusDuration)
	earnedBefore := f.p.Earned(actest.Alice)
	assert.Positive(t, earnedBefore.Sign())

	assert.NoError(t, f.p.UpgradeTier(actest.Alice, 2))
	info := f.p.GetStakeInfo(actest.Alice)
	assert.Equal(t, 2, info.Tier)
	gold, _ := f.p.Registry().Get(2)
	assert.Zero(t, info.WeightedAmount.Cmp(gold.WeightedAmount(acmodule.ToTokenAmount(100))))
	assert.Zero(t, f.p.GetStatus().TotalWeightedSupply.Cmp(info.WeightedAmount))
	// lock extends to the new tier's duration
	assert.Equal(t,
		genesis+acmodule.DefaultBonusDuration+180*acmodule.DaySecond, info.LockEnd)
	// already-accrued rewards are untouched
	assert.Zero(t, f.p.Earned(actest.Alice).Cmp(earnedBefore))
}

func TestPool_StakeForEngine(t *testing.T) {
	f := newPoolFixture(t, NewLPPool)
	f.fundEngine(1_000)
	f.fund(actest.Alice, 1000)
	f.stake(t, actest.Alice, 100, 3)

	err := f.p.StakeForEngine(actest.Alice, acmodule.ToTokenAmount(100))
	assert.True(t, errors.AuthorizationError.Equals(err))

	assert.NoError(t, f.p.StakeForEngine(actest.EngineAddress, acmodule.ToTokenAmount(100)))
	info := f.p.GetStakeInfo(actest.EngineAddress)
	assert.Equal(t, f.p.Registry().EngineTier(), info.Tier)
	// no multiplier bonus on protocol-owned liquidity
	assert.Zero(t, info.WeightedAmount.Cmp(acmodule.ToTokenAmount(100)))
	assert.Equal(t, NoLockEnd, info.LockEnd)

	// the engine tier never withdraws
	f.clock.PassSeconds(10 * 365 * acmodule.DaySecond)
	err = f.p.Withdraw(actest.EngineAddress, acmodule.ToTokenAmount(1))
	assert.True(t, errors.TimingError.Equals(err))
}

func TestPool_StakeForEngineUnsupported(t *testing.T) {
	f := newTokenFixture(t)
	f.fundEngine(1_000)

	err := f.p.StakeForEngine(actest.EngineAddress, acmodule.ToTokenAmount(100))
	assert.True(t, errors.UnsupportedError.Equals(err))

	nft := newPoolFixture(t, NewNFTPool)
	err = nft.p.StakeForEngine(actest.EngineAddress, big.NewInt(1))
	assert.True(t, errors.UnsupportedError.Equals(err))
}

func TestPool_RewardConservation(t *testing.T) {
	f := newTokenFixture(t)
	f.fund(actest.Alice, 10_000)
	f.fund(actest.Bob, 10_000)
	f.fund(actest.Carol, 10_000)
	f.fundEngine(1_000_000)

	f.stake(t, actest.Alice, 500, 0)
	f.stake(t, actest.Bob, 300, 1)
	assert.NoError(t, f.p.RefillBase(actest.EngineAddress, acmodule.ToTokenAmount(50_000)))
	assert.NoError(t, f.p.NotifyRewardAmount(actest.EngineAddress, acmodule.ToTokenAmount(1_000)))

	f.clock.PassSeconds(45 * acmodule.DaySecond)
	f.stake(t, actest.Carol, 700, 2)
	f.clock.PassSeconds(100 * acmodule.DaySecond)
	_, err := f.p.ClaimReward(actest.Bob)
	assert.NoError(t, err)
	f.clock.PassSeconds(200 * acmodule.DaySecond)

	// zero-claim touches settle the pending capped periods before measuring
	for i := 0; i < 2; i++ {
		_, err = f.p.ClaimReward(actest.EngineAddress)
		assert.NoError(t, err)
	}

	st := f.p.GetStatus()
	distributed := new(big.Int).Add(st.TotalBaseDistributed, st.TotalBonusAdded)

	claimed := f.ledger.BalanceOf(actest.Bob)
	claimed.Sub(claimed, acmodule.ToTokenAmount(10_000-300)) // principal still staked
	outstanding := new(big.Int).Add(f.p.Earned(actest.Alice), f.p.Earned(actest.Bob))
	outstanding.Add(outstanding, f.p.Earned(actest.Carol))
	outstanding.Add(outstanding, claimed)

	// nobody is owed more than was ever distributed
	assert.True(t, outstanding.Cmp(distributed) <= 0)

	// and rounding loses at most dust
	diff := new(big.Int).Sub(distributed, outstanding)
	assert.True(t, diff.Cmp(acmodule.BigIntMinStake) < 0)
}

func TestPool_NFTUnits(t *testing.T) {
	f := newPoolFixture(t, NewNFTPool)
	f.ledger.Mint(actest.Alice, big.NewInt(10))
	f.ledger.Approve(actest.Alice, actest.PoolAddress, big.NewInt(10))
	f.fundEngine(100_000)

	err := f.p.Stake(actest.Alice, big.NewInt(0), 0)
	assert.True(t, errors.BoundsError.Equals(err))

	assert.NoError(t, f.p.Stake(actest.Alice, big.NewInt(3), 1))
	info := f.p.GetStakeInfo(actest.Alice)
	assert.Zero(t, info.Amount.Cmp(big.NewInt(3)))
	assert.Equal(t, "Rare", info.TierName)

	rare, _ := f.p.Registry().Get(1)
	assert.Zero(t, info.WeightedAmount.Cmp(rare.WeightedAmount(big.NewInt(3))))
}

func TestPool_ConcurrentStakeAndViews(t *testing.T) {
	f := newTokenFixture(t)
	f.fund(actest.Alice, 1_000_000)
	f.fund(actest.Bob, 1_000_000)
	f.stake(t, actest.Alice, 100, 0)

	const rounds = 200
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			assert.NoError(t, f.p.Stake(actest.Alice, acmodule.ToTokenAmount(1), 0))
			assert.NoError(t, f.p.Stake(actest.Bob, acmodule.ToTokenAmount(1), 0))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			st := f.p.GetStatus()
			assert.Positive(t, st.TotalSupply.Sign())
			f.p.Earned(actest.Alice)
			info := f.p.GetStakeInfo(actest.Bob)
			assert.NotNil(t, info)
		}
	}()
	wg.Wait()

	st := f.p.GetStatus()
	assert.Zero(t, st.TotalSupply.Cmp(acmodule.ToTokenAmount(100+2*rounds)))
	assert.Equal(t, 2, st.Stakers)
}
