package relay_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"

	"github.com/omni/tally-relay/config"
	"github.com/omni/tally-relay/contract/abi"
	"github.com/omni/tally-relay/db"
	"github.com/omni/tally-relay/entity"
	"github.com/omni/tally-relay/logging"
	"github.com/omni/tally-relay/relay"
	"github.com/omni/tally-relay/repository"
	"github.com/omni/tally-relay/solclient"
)

var (
	emitter   = common.HexToAddress("0x7301CFA0e1756B71869E93d4e4Dca5c7d0eb0AA6")
	programID = solana.MustPublicKeyFromBase58("AdemcJyFzDyiCTyuCQuhkWQHQdQUkaqj15nwAPgsARmj")
)

func testLogger() logging.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func blockHash(block uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(block + 0xb10c00))
}

func tallyLog(block uint64, index uint, id int64, a, b uint64) types.Log {
	return types.Log{
		Address: emitter,
		Topics:  []common.Hash{abi.TallyEventID, common.BigToHash(big.NewInt(id))},
		Data: append(
			common.BigToHash(new(big.Int).SetUint64(a)).Bytes(),
			common.BigToHash(new(big.Int).SetUint64(b)).Bytes()...,
		),
		BlockNumber: block,
		BlockHash:   blockHash(block),
		TxHash:      common.BigToHash(big.NewInt(int64(block*100) + int64(index))),
		Index:       index,
	}
}

func electionAddress(block uint64) solana.PublicKey {
	addr, _, err := solclient.DeriveElectionAddress(programID, blockHash(block).Bytes())
	if err != nil {
		panic(err)
	}
	return addr
}

type fakeSource struct {
	mu          sync.Mutex
	head        uint64
	headErr     error
	logs        []types.Log
	filterErr   error
	safeCalls   int
	filterCalls []relay.BlocksRange
}

func (s *fakeSource) setHead(head uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.head = head
}

func (s *fakeSource) ranges() []relay.BlocksRange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]relay.BlocksRange(nil), s.filterCalls...)
}

func (s *fakeSource) ChainID() string {
	return "31337"
}

func (s *fakeSource) Close() {}

func (s *fakeSource) BlockNumber(context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.head, s.headErr
}

func (s *fakeSource) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	from, to := q.FromBlock.Uint64(), q.ToBlock.Uint64()
	s.filterCalls = append(s.filterCalls, relay.BlocksRange{From: from, To: to})
	if s.filterErr != nil {
		return nil, s.filterErr
	}
	var res []types.Log
	for _, log := range s.logs {
		if log.BlockNumber < from || log.BlockNumber > to {
			continue
		}
		if len(q.Addresses) > 0 && log.Address != q.Addresses[0] {
			continue
		}
		if len(q.Topics) > 0 && len(log.Topics) > 0 && log.Topics[0] != q.Topics[0][0] {
			continue
		}
		res = append(res, log)
	}
	return res, nil
}

func (s *fakeSource) FilterLogsSafe(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	s.mu.Lock()
	s.safeCalls++
	s.mu.Unlock()
	return s.FilterLogs(ctx, q)
}

// fakeDestination emulates the election program: initialise fails on an
// existing account, set_tally fails on a missing or finalised one.
type fakeDestination struct {
	mu         sync.Mutex
	authority  solana.PublicKey
	accounts   map[solana.PublicKey]*entity.MirroredAccount
	writes     []*solclient.TallyWrite
	readErr    error
	failSubmit func(write *solclient.TallyWrite) error
}

func newFakeDestination() *fakeDestination {
	return &fakeDestination{
		authority: solana.NewWallet().PublicKey(),
		accounts:  make(map[solana.PublicKey]*entity.MirroredAccount),
	}
}

func (d *fakeDestination) Authority() solana.PublicKey {
	return d.authority
}

func (d *fakeDestination) ProgramID() solana.PublicKey {
	return programID
}

func (d *fakeDestination) Health(context.Context) error {
	return nil
}

func (d *fakeDestination) account(address solana.PublicKey) *entity.MirroredAccount {
	d.mu.Lock()
	defer d.mu.Unlock()
	if acc, ok := d.accounts[address]; ok {
		res := *acc
		return &res
	}
	return nil
}

func (d *fakeDestination) putAccount(acc *entity.MirroredAccount) {
	d.mu.Lock()
	defer d.mu.Unlock()
	res := *acc
	d.accounts[acc.Address] = &res
}

func (d *fakeDestination) submits() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.writes)
}

func (d *fakeDestination) GetElection(_ context.Context, address solana.PublicKey) (*entity.MirroredAccount, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.readErr != nil {
		return nil, d.readErr
	}
	acc, ok := d.accounts[address]
	if !ok {
		return nil, solclient.ErrAccountNotFound
	}
	res := *acc
	return &res, nil
}

func (d *fakeDestination) SubmitTally(_ context.Context, write *solclient.TallyWrite) (solana.Signature, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	w := *write
	d.writes = append(d.writes, &w)
	if d.failSubmit != nil {
		if err := d.failSubmit(write); err != nil {
			return solana.Signature{}, err
		}
	}
	acc, exists := d.accounts[write.Election]
	if write.Initialise {
		if exists {
			return solana.Signature{}, errors.New("account already in use")
		}
		acc = &entity.MirroredAccount{
			Address:   write.Election,
			Authority: d.authority,
			Metadata:  write.Metadata,
		}
	} else if !exists {
		return solana.Signature{}, errors.New("account not initialised")
	}
	if acc.Finalized {
		return solana.Signature{}, errors.New("election already finalised")
	}
	if !acc.Authority.Equals(d.authority) {
		return solana.Signature{}, errors.New("unauthorised")
	}
	acc.VotesA = write.VotesA
	acc.VotesB = write.VotesB
	d.accounts[write.Election] = acc
	var sig solana.Signature
	sig[0] = byte(len(d.writes))
	return sig, nil
}

type memCursors struct {
	mu         sync.Mutex
	cursors    map[string]uint64
	advanceErr error
	getErr     error
}

func newMemCursors() *memCursors {
	return &memCursors{cursors: make(map[string]uint64)}
}

func (m *memCursors) get(relayID string) (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	block, ok := m.cursors[relayID]
	return block, ok
}

func (m *memCursors) Init(_ context.Context, cursor *entity.RelayCursor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cursors[cursor.RelayID]; !ok {
		m.cursors[cursor.RelayID] = cursor.LastProcessedBlock
	}
	return nil
}

func (m *memCursors) Advance(_ context.Context, relayID string, blockNumber uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.advanceErr != nil {
		return m.advanceErr
	}
	if m.cursors[relayID] < blockNumber {
		m.cursors[relayID] = blockNumber
	}
	return nil
}

func (m *memCursors) Ensure(_ context.Context, cursor *entity.RelayCursor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors[cursor.RelayID] = cursor.LastProcessedBlock
	return nil
}

func (m *memCursors) GetByRelayID(_ context.Context, relayID string) (*entity.RelayCursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	block, ok := m.cursors[relayID]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &entity.RelayCursor{RelayID: relayID, LastProcessedBlock: block}, nil
}

type memDeadLetters struct {
	mu        sync.Mutex
	nextID    uint
	entries   map[uint]*entity.DeadLetter
	ensureErr error
}

func newMemDeadLetters() *memDeadLetters {
	return &memDeadLetters{entries: make(map[uint]*entity.DeadLetter)}
}

func (m *memDeadLetters) all() []*entity.DeadLetter {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]*entity.DeadLetter, 0, len(m.entries))
	for id := uint(1); id <= m.nextID; id++ {
		if dl, ok := m.entries[id]; ok {
			res = append(res, dl)
		}
	}
	return res
}

func (m *memDeadLetters) Ensure(_ context.Context, dl *entity.DeadLetter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ensureErr != nil {
		return m.ensureErr
	}
	for id, existing := range m.entries {
		if existing.RelayID == dl.RelayID && existing.SourceTxHash == dl.SourceTxHash && existing.LogIndex == dl.LogIndex {
			existing.Error = dl.Error
			existing.Payload = dl.Payload
			existing.Attempts += dl.Attempts
			dl.ID = id
			return nil
		}
	}
	m.nextID++
	dl.ID = m.nextID
	res := *dl
	m.entries[dl.ID] = &res
	return nil
}

func (m *memDeadLetters) GetByID(_ context.Context, id uint) (*entity.DeadLetter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dl, ok := m.entries[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	res := *dl
	return &res, nil
}

func (m *memDeadLetters) FindByRelayID(_ context.Context, relayID string, limit uint64) ([]*entity.DeadLetter, error) {
	var res []*entity.DeadLetter
	for _, dl := range m.all() {
		if dl.RelayID == relayID && (limit == 0 || uint64(len(res)) < limit) {
			res = append(res, dl)
		}
	}
	return res, nil
}

func (m *memDeadLetters) CountByRelayID(_ context.Context, relayID string) (uint, error) {
	dls, _ := m.FindByRelayID(context.Background(), relayID, 0)
	return uint(len(dls)), nil
}

func (m *memDeadLetters) Delete(_ context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

type noSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *noSleep) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

type testEnv struct {
	relayID     string
	source      *fakeSource
	destination *fakeDestination
	cursors     *memCursors
	deadLetters *memDeadLetters
	sleeper     *noSleep
	executor    *relay.Executor
	relay       *relay.Relay
	srcCfg      *config.SourceConfig
	relayCfg    *config.RelayConfig
}

func newTestEnv(t *testing.T, confirmations uint64) *testEnv {
	t.Helper()
	env := &testEnv{
		relayID:     fmt.Sprintf("test:%s", t.Name()),
		source:      new(fakeSource),
		destination: newFakeDestination(),
		cursors:     newMemCursors(),
		deadLetters: newMemDeadLetters(),
		sleeper:     new(noSleep),
	}
	env.srcCfg = &config.SourceConfig{
		EmitterAddress:     emitter,
		BlockConfirmations: confirmations,
	}
	env.relayCfg = &config.RelayConfig{
		ID:            env.relayID,
		PollInterval:  5 * time.Millisecond,
		FaultCooldown: 5 * time.Millisecond,
		Retry: &config.RetryConfig{
			MaxAttempts: 5,
			BaseDelay:   2 * time.Second,
			MaxDelay:    30 * time.Second,
		},
	}
	env.build()
	return env
}

// build (re)creates the executor and relay, simulating a process restart.
func (env *testEnv) build() {
	env.executor = relay.NewExecutor(testLogger(), env.relayID, env.destination, relay.NewRetryPolicy(env.relayCfg.Retry)).
		WithSleeper(env.sleeper.Sleep)
	env.relay = relay.NewRelay(testLogger(), env.relayCfg, env.srcCfg, env.source, env.executor, &repository.Repo{
		RelayCursors: env.cursors,
		DeadLetters:  env.deadLetters,
	})
}

func (env *testEnv) cursor() uint64 {
	block, _ := env.cursors.get(env.relayID)
	return block
}
