package node

import (
	"context"
	"math/big"
	"os"
	"path"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aethercycle/aethercycle-protocol-sub000/aec/acledger"
	"github.com/aethercycle/aethercycle-protocol-sub000/aec/acmodule"
	"github.com/aethercycle/aethercycle-protocol-sub000/aec/acstore"
	"github.com/aethercycle/aethercycle-protocol-sub000/aec/endowment"
	"github.com/aethercycle/aethercycle-protocol-sub000/aec/engine"
	"github.com/aethercycle/aethercycle-protocol-sub000/aec/staking"
	"github.com/aethercycle/aethercycle-protocol-sub000/common/errors"
	"github.com/aethercycle/aethercycle-protocol-sub000/common/log"
	"github.com/aethercycle/aethercycle-protocol-sub000/server"
	"github.com/aethercycle/aethercycle-protocol-sub000/server/metric"
)

type Node struct {
	cfg    *Config
	logger log.Logger
	clock  acmodule.Clock

	ledger *acledger.Ledger
	store  *acstore.Store

	endow     *endowment.Endowment
	lpPool    *staking.Pool
	tokenPool *staking.Pool
	nftPool   *staking.Pool
	eng       *engine.Engine

	srv *server.Manager
}

func New(cfg *Config, logger log.Logger) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	admin, err := acmodule.ParseAddress(cfg.AdminAddress)
	if err != nil {
		return nil, err
	}
	emergency, err := acmodule.ParseAddress(cfg.EmergencyAddress)
	if err != nil {
		return nil, err
	}

	baseDir := cfg.AbsBaseDir()
	if err := os.MkdirAll(path.Join(baseDir, DefaultDataDirName), 0700); err != nil {
		return nil, err
	}
	store, err := acstore.Open(path.Join(baseDir, DefaultDataDirName), DefaultStoreName)
	if err != nil {
		return nil, err
	}

	n := &Node{
		cfg:    cfg,
		logger: logger.WithFields(log.Fields{log.FieldKeyModule: "NODE"}),
		clock:  &acmodule.GoTimeClock{},
		store:  store,
	}

	n.srv = server.NewManager(cfg.RPCAddr, logger)
	sink := acmodule.MultiSink(
		acmodule.NewLogSink(logger),
		metric.NewSink(),
		n.srv.EventSink(),
	)

	if err := n.setupLedger(); err != nil {
		store.Close()
		return nil, err
	}

	n.endow, err = endowment.New(&endowment.Config{
		Self:            EndowmentAddress,
		Actor:           EngineAddress,
		Emergency:       emergency,
		InitialAmount:   acmodule.ToTokenAmount(int(cfg.EndowmentTokens)),
		ReleaseInterval: cfg.ReleaseInterval,
		DecayRate:       acmodule.Rate(cfg.DecayRateBps),
		Compounding:     cfg.Compounding,
	}, n.clock, n.ledger, sink, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	n.lpPool, err = staking.NewLPPool(LPPoolAddress, EngineAddress,
		n.clock, n.ledger, sink, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	n.tokenPool, err = staking.NewTokenPool(TokenPoolAddress, EngineAddress,
		n.clock, n.ledger, sink, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	n.nftPool, err = staking.NewNFTPool(NFTPoolAddress, EngineAddress,
		n.clock, n.ledger, sink, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	n.eng, err = engine.New(&engine.Config{
		Self:   EngineAddress,
		Admin:  admin,
		LPPool: n.lpPool,
	}, n.endow, []*engine.PoolSplit{
		{Pool: n.tokenPool, Share: acmodule.Rate(cfg.TokenPoolShareBps)},
		{Pool: n.nftPool, Share: acmodule.Rate(cfg.NFTPoolShareBps)},
	}, n.clock, n.ledger, sink, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	if err := n.restore(); err != nil {
		store.Close()
		return nil, err
	}

	n.srv.SetEndowment(n.endow)
	n.srv.SetEngine(n.eng)
	n.srv.SetPool(n.lpPool)
	n.srv.SetPool(n.tokenPool)
	n.srv.SetPool(n.nftPool)
	return n, nil
}

// setupLedger restores the account book from the store, or runs genesis
// when the store is empty.
func (n *Node) setupLedger() error {
	n.ledger = acledger.New()

	var ls acledger.Snapshot
	ok, err := n.store.Get(acstore.BucketState, "ledger", &ls)
	if err != nil {
		return err
	}
	if ok {
		return n.ledger.RestoreSnapshot(&ls)
	}

	if err := n.ledger.Mint(EndowmentAddress,
		acmodule.ToTokenAmount(int(n.cfg.EndowmentTokens))); err != nil {
		return err
	}
	for _, alloc := range n.cfg.Genesis {
		addr, err := acmodule.ParseAddress(alloc.Address)
		if err != nil {
			return err
		}
		balance, ok := new(big.Int).SetString(alloc.Balance, 10)
		if !ok {
			return errors.IllegalArgumentError.Errorf(
				"InvalidGenesisBalance(address=%s,balance=%s)", alloc.Address, alloc.Balance)
		}
		if err := n.ledger.Mint(addr, balance); err != nil {
			return err
		}
	}
	n.ledger.Seal()
	n.logger.Infof("genesis supply=%s accounts=%d",
		n.ledger.TotalSupply(), len(n.cfg.Genesis)+1)
	return nil
}

func (n *Node) restore() error {
	var es endowment.Snapshot
	ok, err := n.store.Get(acstore.BucketState, acstore.KeyEndowment, &es)
	if err != nil {
		return err
	}
	if ok {
		if err := n.endow.RestoreSnapshot(&es); err != nil {
			return err
		}
	} else if err := n.endow.Initialize(); err != nil {
		return err
	}

	for _, p := range []*staking.Pool{n.lpPool, n.tokenPool, n.nftPool} {
		name := p.GetStatus().Name
		var ps staking.PoolSnapshot
		ok, err := n.store.Get(acstore.BucketState, acstore.PoolKey(name), &ps)
		if err != nil {
			return err
		}
		if ok {
			if err := p.RestoreSnapshot(&ps); err != nil {
				return err
			}
		}
	}
	return nil
}

func (n *Node) persist() error {
	if err := n.store.Put(acstore.BucketState, "ledger", n.ledger.Snapshot()); err != nil {
		return err
	}
	if err := n.store.Put(acstore.BucketState, acstore.KeyEndowment, n.endow.Snapshot()); err != nil {
		return err
	}
	for _, p := range []*staking.Pool{n.lpPool, n.tokenPool, n.nftPool} {
		s := p.Snapshot()
		if err := n.store.Put(acstore.BucketState, acstore.PoolKey(s.Name), s); err != nil {
			return err
		}
	}
	return nil
}

// cycleLoop polls the treasury and runs a distribution cycle whenever a
// release period has elapsed.
func (n *Node) cycleLoop(ctx context.Context) error {
	interval := time.Duration(n.cfg.CyclePollSecs) * time.Second
	if interval <= 0 {
		interval = DefaultCyclePollSecs * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !n.endow.SuggestRelease().Due {
				continue
			}
			r, err := n.eng.RunCycle()
			if err != nil {
				n.logger.Warnf("cycle fail err=%+v", err)
				continue
			}
			n.logger.Infof("cycle done released=%s periods=%d",
				r.Released, r.Periods)
			if err := n.persist(); err != nil {
				n.logger.Warnf("persist fail err=%+v", err)
			}
		}
	}
}

func (n *Node) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return n.srv.Start()
	})
	if n.cfg.CycleAuto {
		g.Go(func() error {
			return n.cycleLoop(ctx)
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		n.srv.Stop()
		return nil
	})

	err := g.Wait()
	if perr := n.persist(); perr != nil {
		n.logger.Warnf("persist fail err=%+v", perr)
	}
	if cerr := n.store.Close(); cerr != nil {
		n.logger.Warnf("store close fail err=%+v", cerr)
	}
	if err == context.Canceled {
		return nil
	}
	return err
}

func (n *Node) Endowment() *endowment.Endowment { return n.endow }
func (n *Node) Engine() *engine.Engine          { return n.eng }
func (n *Node) Ledger() *acledger.Ledger        { return n.ledger }

func (n *Node) Pool(name string) *staking.Pool {
	switch name {
	case staking.LPPoolName:
		return n.lpPool
	case staking.TokenPoolName:
		return n.tokenPool
	case staking.NFTPoolName:
		return n.nftPool
	default:
		return nil
	}
}
