package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"github.com/omni/tally-relay/config"
	"github.com/omni/tally-relay/db"
	"github.com/omni/tally-relay/entity"
	"github.com/omni/tally-relay/ethclient"
	"github.com/omni/tally-relay/logging"
	"github.com/omni/tally-relay/repository"
	"github.com/omni/tally-relay/utils"
)

type State string

const (
	StateBootstrap State = "BOOTSTRAP"
	StateScanning  State = "SCANNING"
	StateExecuting State = "EXECUTING"
	StateAdvancing State = "ADVANCING"
	StateFaulted   State = "FAULTED"
)

type Status struct {
	RelayID            string `json:"relay_id"`
	State              State  `json:"state"`
	HeadBlock          uint64 `json:"head_block"`
	ConfirmedBlock     uint64 `json:"confirmed_block"`
	LastProcessedBlock uint64 `json:"last_processed_block"`
	Lag                uint64 `json:"lag"`
	DeadLetters        uint64 `json:"dead_letters"`
	LastError          string `json:"last_error,omitempty"`
}

// Relay drives one source emitter through
// BOOTSTRAP -> SCANNING -> EXECUTING -> ADVANCING -> SCANNING, falling back to
// FAULTED for a cool-down on store or transport failures.
type Relay struct {
	id       string
	cfg      *config.RelayConfig
	srcCfg   *config.SourceConfig
	logger   logging.Logger
	source   ethclient.Client
	scanner  EventScanner
	executor BridgeExecutor
	repo     *repository.Repo

	state         *atomic.String
	head          *atomic.Uint64
	confirmed     *atomic.Uint64
	lastProcessed *atomic.Uint64
	deadLetters   *atomic.Uint64
	lastError     *atomic.String
	latest        *atomic.Pointer[solana.PublicKey]

	lagMetric            prometheus.Gauge
	headBlockMetric      prometheus.Gauge
	processedBlockMetric prometheus.Gauge
	deadLettersMetric    prometheus.Gauge
	bridgedMetric        prometheus.Counter
	faultsMetric         prometheus.Counter
}

func NewRelay(logger logging.Logger, cfg *config.RelayConfig, srcCfg *config.SourceConfig, source ethclient.Client, executor BridgeExecutor, repo *repository.Repo) *Relay {
	return &Relay{
		id:       cfg.ID,
		cfg:      cfg,
		srcCfg:   srcCfg,
		logger:   logger.WithField("relay_id", cfg.ID),
		source:   source,
		scanner:  NewScanner(source, srcCfg.EmitterAddress, srcCfg.SafeLogsRequest),
		executor: executor,
		repo:     repo,

		state:         atomic.NewString(string(StateBootstrap)),
		head:          atomic.NewUint64(0),
		confirmed:     atomic.NewUint64(0),
		lastProcessed: atomic.NewUint64(0),
		deadLetters:   atomic.NewUint64(0),
		lastError:     atomic.NewString(""),
		latest:        atomic.NewPointer[solana.PublicKey](nil),

		lagMetric:            LagBlocks.WithLabelValues(cfg.ID),
		headBlockMetric:      LatestHeadBlock.WithLabelValues(cfg.ID),
		processedBlockMetric: LatestProcessedBlock.WithLabelValues(cfg.ID),
		deadLettersMetric:    DeadLetterQueueDepth.WithLabelValues(cfg.ID),
		bridgedMetric:        BridgedEvents.WithLabelValues(cfg.ID),
		faultsMetric:         Faults.WithLabelValues(cfg.ID),
	}
}

func (r *Relay) ID() string {
	return r.id
}

func (r *Relay) Status() *Status {
	head := r.head.Load()
	last := r.lastProcessed.Load()
	var lag uint64
	if head > last {
		lag = head - last
	}
	return &Status{
		RelayID:            r.id,
		State:              State(r.state.Load()),
		HeadBlock:          head,
		ConfirmedBlock:     r.confirmed.Load(),
		LastProcessedBlock: last,
		Lag:                lag,
		DeadLetters:        r.deadLetters.Load(),
		LastError:          r.lastError.Load(),
	}
}

// LatestAccount returns the destination account of the most recently bridged event.
func (r *Relay) LatestAccount() (solana.PublicKey, bool) {
	if addr := r.latest.Load(); addr != nil {
		return *addr, true
	}
	return solana.PublicKey{}, false
}

// Start blocks until ctx is cancelled.
func (r *Relay) Start(ctx context.Context) {
	if err := r.Bootstrap(ctx); err != nil {
		r.logger.WithError(err).Info("relay stopped during bootstrap")
		return
	}
	r.logger.WithField("last_processed_block", r.lastProcessed.Load()).Info("starting relay loop")
	for {
		err := r.tick(ctx)
		if ctx.Err() != nil {
			r.logger.Info("relay loop stopped")
			return
		}
		delay := r.cfg.PollInterval
		if err != nil {
			r.setState(StateFaulted)
			r.lastError.Store(err.Error())
			r.faultsMetric.Inc()
			r.logger.WithError(err).WithField("cooldown", r.cfg.FaultCooldown.String()).Error("relay loop faulted")
			delay = r.cfg.FaultCooldown
		} else {
			r.lastError.Store("")
		}
		if utils.ContextSleep(ctx, delay) == nil {
			r.logger.Info("relay loop stopped")
			return
		}
	}
}

// Bootstrap waits, without giving up, for the source chain and the store, then loads or creates the cursor.
func (r *Relay) Bootstrap(ctx context.Context) error {
	r.setState(StateBootstrap)

	var head uint64
	err := utils.WaitFor(ctx, r.logger, "source_rpc", func(ctx context.Context) error {
		var err error
		head, err = r.source.BlockNumber(ctx)
		return err
	})
	if err != nil {
		return err
	}
	r.recordHead(head)

	err = utils.WaitFor(ctx, r.logger, "cursor_store", func(ctx context.Context) error {
		return r.loadCursor(ctx, head)
	})
	if err != nil {
		return err
	}
	return utils.WaitFor(ctx, r.logger, "dead_letter_store", r.refreshDeadLetters)
}

func (r *Relay) loadCursor(ctx context.Context, head uint64) error {
	cursor, err := r.repo.RelayCursors.GetByRelayID(ctx, r.id)
	if errors.Is(err, db.ErrNotFound) {
		initial := head
		if start := r.srcCfg.StartBlock; start != nil {
			// the genesis block carries no transactions, so starting at 0 and 1 is the same
			initial = 0
			if *start > 0 {
				initial = *start - 1
			}
		}
		r.logger.WithField("last_processed_block", initial).Warn("relay cursor is not present, starting from scratch")
		err = r.repo.RelayCursors.Init(ctx, &entity.RelayCursor{
			RelayID:            r.id,
			LastProcessedBlock: initial,
		})
		if err != nil {
			return err
		}
		cursor, err = r.repo.RelayCursors.GetByRelayID(ctx, r.id)
	}
	if err != nil {
		return err
	}
	r.recordProcessed(cursor.LastProcessedBlock)
	return nil
}

// ResetCursor overwrites the persisted cursor, moving it backwards as well as
// forwards. The next tick resumes at block+1.
func (r *Relay) ResetCursor(ctx context.Context, block uint64) error {
	err := r.repo.RelayCursors.Ensure(ctx, &entity.RelayCursor{
		RelayID:            r.id,
		LastProcessedBlock: block,
	})
	if err != nil {
		return fmt.Errorf("can't reset relay cursor: %w", err)
	}
	r.recordProcessed(block)
	r.logger.WithField("last_processed_block", block).Warn("relay cursor was reset")
	return nil
}

func (r *Relay) refreshDeadLetters(ctx context.Context) error {
	count, err := r.repo.DeadLetters.CountByRelayID(ctx, r.id)
	if err != nil {
		return err
	}
	r.deadLetters.Store(uint64(count))
	r.deadLettersMetric.Set(float64(count))
	return nil
}

func (r *Relay) tick(ctx context.Context) error {
	r.setState(StateScanning)
	head, err := r.source.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("can't get head block: %w", err)
	}
	r.recordHead(head)
	if head < r.srcCfg.BlockConfirmations {
		return nil
	}
	confirmed := head - r.srcCfg.BlockConfirmations
	r.confirmed.Store(confirmed)
	last := r.lastProcessed.Load()
	if confirmed <= last {
		return nil
	}
	for _, br := range SplitBlockRange(last+1, confirmed, r.srcCfg.MaxBlockRangeSize) {
		if err = r.processRange(ctx, br, true); err != nil {
			return err
		}
	}
	return nil
}

// ProcessBlockRange relays every event in [fromBlock, toBlock] without moving the cursor.
func (r *Relay) ProcessBlockRange(ctx context.Context, fromBlock, toBlock uint64) error {
	if fromBlock > toBlock {
		return fmt.Errorf("invalid block range [%d, %d]", fromBlock, toBlock)
	}
	for _, br := range SplitBlockRange(fromBlock, toBlock, r.srcCfg.MaxBlockRangeSize) {
		if err := r.processRange(ctx, br, false); err != nil {
			return err
		}
	}
	return nil
}

func (r *Relay) processRange(ctx context.Context, br *BlocksRange, advance bool) error {
	logger := r.logger.WithFields(logrus.Fields{
		"from_block": br.From,
		"to_block":   br.To,
	})
	logger.Debug("scanning block range")
	events, err := r.scanner.Scan(ctx, br.From, br.To)
	if err != nil {
		return fmt.Errorf("can't scan block range: %w", err)
	}

	r.setState(StateExecuting)
	if len(events) > 0 {
		logger.WithField("count", len(events)).Info("found tally events")
	}
	for _, event := range events {
		if err = r.deliver(ctx, event); err != nil {
			return err
		}
	}
	if !advance {
		return nil
	}

	r.setState(StateAdvancing)
	if err = r.repo.RelayCursors.Advance(ctx, r.id, br.To); err != nil {
		return fmt.Errorf("can't advance relay cursor: %w", err)
	}
	r.recordProcessed(br.To)
	logger.Debug("advanced relay cursor")
	r.setState(StateScanning)
	return nil
}

// deliver resolves one event: it is either bridged or dead-lettered. Only
// cancellation and store failures are returned.
func (r *Relay) deliver(ctx context.Context, event *entity.TallyEvent) error {
	receipt, err := r.executor.Submit(ctx, event)
	if err == nil {
		account := receipt.Account
		r.latest.Store(&account)
		r.bridgedMetric.Inc()
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var submitErr *SubmitError
	if !errors.As(err, &submitErr) {
		return fmt.Errorf("can't submit tally event: %w", err)
	}

	dl, err := entity.NewDeadLetter(r.id, event, submitErr.Err, submitErr.Attempts)
	if err != nil {
		return fmt.Errorf("can't build dead letter: %w", err)
	}
	if err = r.repo.DeadLetters.Ensure(ctx, dl); err != nil {
		return fmt.Errorf("can't write dead letter: %w", err)
	}
	r.logger.WithError(submitErr.Err).WithFields(logrus.Fields{
		"dead_letter_id": dl.ID,
		"tx_hash":        event.TxHash.String(),
		"log_index":      event.LogIndex,
		"block_number":   event.BlockNumber,
		"attempts":       submitErr.Attempts,
	}).Error("moved tally event to dead letter queue")
	if err = r.refreshDeadLetters(ctx); err != nil {
		r.logger.WithError(err).Warn("can't refresh dead letter queue depth")
	}
	return nil
}

func (r *Relay) setState(state State) {
	r.state.Store(string(state))
}

func (r *Relay) recordHead(head uint64) {
	r.head.Store(head)
	r.headBlockMetric.Set(float64(head))
	r.updateLag()
}

func (r *Relay) recordProcessed(block uint64) {
	r.lastProcessed.Store(block)
	r.processedBlockMetric.Set(float64(block))
	r.updateLag()
}

func (r *Relay) updateLag() {
	r.lagMetric.Set(float64(r.Status().Lag))
}
