package node

import (
	"context"

	"github.com/inconshreveable/log15"
	"github.com/olebedev/emitter"
	"github.com/pkg/errors"
	"github.com/robfig/cron"

	"github.com/evotools/contestd/caster"
	"github.com/evotools/contestd/common"
	"github.com/evotools/contestd/common/types"
	"github.com/evotools/contestd/config"
	"github.com/evotools/contestd/platform"
	"github.com/evotools/contestd/refresh"
	"github.com/evotools/contestd/scheduler"
	"github.com/evotools/contestd/store"
	"github.com/evotools/contestd/wallet"
)

var nLog = log15.New("module", "node")

// Bus topics re-broadcast to observers.
const (
	TopicRefresh = "contest:refresh"
	TopicError   = "contest:error"
	TopicVote    = "vote:cast"
)

// Node wires the voting core together and drives it: periodic
// contested-name refreshes and a due-vote sweep that casts scheduled
// votes when their time arrives.
type Node struct {
	common.LifecycleStatus

	cfg    *config.Config
	client platform.Client

	store     *store.Store
	wallet    *wallet.Manager
	refresher *refresh.Refresher
	sched     *scheduler.Scheduler
	status    *scheduler.StatusTracker
	caster    *caster.Caster

	bus        *emitter.Emitter
	cron       *cron.Cron
	castEvents chan caster.Event

	ctx    context.Context
	cancel context.CancelFunc
	log    log15.Logger
}

// New builds a node over an externally supplied platform client; the
// transport layer stays outside the core.
func New(cfg *config.Config, client platform.Client) *Node {
	return &Node{
		cfg:    cfg,
		client: client,
		bus:    emitter.New(16),
		log:    nLog,
	}
}

func (n *Node) Init() error {
	if !n.PreInit() {
		return errors.New("node already initialized")
	}
	defer n.PostInit()

	st, err := store.NewStore(n.cfg.DataDir)
	if err != nil {
		return err
	}
	n.store = st

	if n.cfg.Wallet.Mnemonic != "" {
		n.wallet, err = wallet.New(n.cfg.Wallet)
		if err != nil {
			return err
		}
	}

	n.refresher, err = refresh.New(n.client, n.store, n.cfg.Contest)
	if err != nil {
		return err
	}
	n.sched = scheduler.New(n.store)
	n.status = scheduler.NewStatusTracker(n.store)

	n.castEvents = make(chan caster.Event, 16)
	var keys caster.KeyProvider
	if n.wallet != nil {
		keys = n.wallet
	} else {
		keys = noKeys{}
	}
	n.caster, err = caster.New(n.client, keys, n.sched, n.cfg.Contest, n.castEvents)
	if err != nil {
		return err
	}
	return nil
}

func (n *Node) Start() error {
	if !n.PreStart() {
		return errors.New("node not ready to start")
	}
	defer n.PostStart()

	n.ctx, n.cancel = context.WithCancel(context.Background())
	go n.pumpCastEvents()

	n.cron = cron.New()
	if err := n.cron.AddFunc(n.cfg.Scheduler.RefreshSpec, n.runRefresh); err != nil {
		return errors.Wrap(err, "refresh cron spec")
	}
	if err := n.cron.AddFunc(n.cfg.Scheduler.ExecuteSpec, n.sweepDueVotes); err != nil {
		return errors.Wrap(err, "execute cron spec")
	}
	n.cron.Start()
	n.log.Info("node started",
		"network", n.cfg.Network,
		"refresh", n.cfg.Scheduler.RefreshSpec,
		"execute", n.cfg.Scheduler.ExecuteSpec)
	return nil
}

func (n *Node) Stop() error {
	if !n.PreStop() {
		return errors.New("node not started")
	}
	defer n.PostStop()

	n.cron.Stop()
	n.cancel()
	if err := n.store.Close(); err != nil {
		return err
	}
	n.log.Info("node stopped")
	return nil
}

// Bus exposes the observer event bus. Emits block until every topic
// listener has consumed the event.
func (n *Node) Bus() *emitter.Emitter { return n.bus }

func (n *Node) Scheduler() *scheduler.Scheduler { return n.sched }

func (n *Node) StatusTracker() *scheduler.StatusTracker { return n.status }

func (n *Node) Caster() *caster.Caster { return n.caster }

func (n *Node) Refresher() *refresh.Refresher { return n.refresher }

func (n *Node) Store() *store.Store { return n.store }

// RefreshNow triggers one refresh run outside the cron schedule and
// blocks until it completes.
func (n *Node) RefreshNow() { n.runRefresh() }

// runRefresh drains one refresh run onto the bus.
func (n *Node) runRefresh() {
	ch, err := n.refresher.Refresh(n.ctx)
	if err != nil {
		if err != refresh.ErrAlreadyRunning {
			n.log.Error("starting refresh", "err", err)
		}
		return
	}
	for ev := range ch {
		switch ev.Kind {
		case refresh.EventError:
			<-n.bus.Emit(TopicError, ev)
		default:
			<-n.bus.Emit(TopicRefresh, ev)
		}
	}
}

// sweepDueVotes is the driving loop of scheduled execution: every due
// pending vote is marked in progress, cast, and reconciled. Crash
// safety comes from status re-derivation, not from this loop.
func (n *Node) sweepDueVotes() {
	due, err := n.sched.Due(common.NowMillis())
	if err != nil {
		n.log.Error("listing due votes", "err", err)
		return
	}
	for _, vote := range due {
		if n.ctx.Err() != nil {
			return
		}
		n.status.MarkInProgress(vote.VoterID, vote.ContestedName)
		if err := n.caster.CastScheduledVote(n.ctx, vote); err != nil {
			n.status.MarkFailed(vote.VoterID, vote.ContestedName)
			n.log.Error("scheduled vote failed",
				"name", vote.ContestedName, "voter", vote.VoterID.Hex(), "err", err)
			continue
		}
		n.log.Info("scheduled vote cast",
			"name", vote.ContestedName, "voter", vote.VoterID.Hex())
	}
}

func (n *Node) pumpCastEvents() {
	for {
		select {
		case ev := <-n.castEvents:
			<-n.bus.Emit(TopicVote, ev)
		case <-n.ctx.Done():
			return
		}
	}
}

// noKeys is the provider used when no wallet is configured: every
// voter resolves to missing key material.
type noKeys struct{}

func (noKeys) ResolveVotingKey(id types.Identifier) (*wallet.KeyMaterial, error) {
	return nil, nil
}
