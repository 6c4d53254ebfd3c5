package solclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/omni/tally-relay/entity"
	"github.com/omni/tally-relay/utils"
)

const defaultStatusPollInterval = 500 * time.Millisecond

var (
	ErrAccountNotFound      = errors.New("election account not found")
	ErrTransactionFailed    = errors.New("transaction failed on chain")
	ErrConfirmationTimeout  = errors.New("transaction was not confirmed in time")
	ErrUnhealthyDestination = errors.New("destination node is unhealthy")
)

// TallyWrite describes a single set_tally submission, optionally preceded by
// initialise when the election account does not exist yet.
type TallyWrite struct {
	Election   solana.PublicKey
	Metadata   [32]byte
	VotesA     uint64
	VotesB     uint64
	Initialise bool
}

type Client interface {
	Authority() solana.PublicKey
	ProgramID() solana.PublicKey
	GetElection(ctx context.Context, address solana.PublicKey) (*entity.MirroredAccount, error)
	// SubmitTally sends the write in a single transaction and waits until it
	// reaches the configured commitment.
	SubmitTally(ctx context.Context, write *TallyWrite) (solana.Signature, error)
	Health(ctx context.Context) error
}

type rpcClient struct {
	url                string
	timeout            time.Duration
	confirmTimeout     time.Duration
	statusPollInterval time.Duration
	commitment         rpc.CommitmentType
	programID          solana.PublicKey
	signer             solana.PrivateKey
	client             *rpc.Client
}

func NewClient(url string, timeout time.Duration, programID solana.PublicKey, signer solana.PrivateKey, commitment string, confirmTimeout time.Duration) Client {
	return &rpcClient{
		url:                url,
		timeout:            timeout,
		confirmTimeout:     confirmTimeout,
		statusPollInterval: defaultStatusPollInterval,
		commitment:         rpc.CommitmentType(commitment),
		programID:          programID,
		signer:             signer,
		client:             rpc.New(url),
	}
}

func (c *rpcClient) Authority() solana.PublicKey {
	return c.signer.PublicKey()
}

func (c *rpcClient) ProgramID() solana.PublicKey {
	return c.programID
}

func (c *rpcClient) Health(ctx context.Context) error {
	defer ObserveDuration(c.url, "getHealth")()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	status, err := c.client.GetHealth(ctx)
	ObserveError(c.url, "getHealth", err)
	if err != nil {
		return fmt.Errorf("can't get node health: %w", err)
	}
	if status != rpc.HealthOk {
		return fmt.Errorf("node reported %q: %w", status, ErrUnhealthyDestination)
	}
	return nil
}

func (c *rpcClient) GetElection(ctx context.Context, address solana.PublicKey) (*entity.MirroredAccount, error) {
	defer ObserveDuration(c.url, "getAccountInfo")()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.client.GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: c.commitment,
	})
	ObserveError(c.url, "getAccountInfo", err)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("can't get account %s: %w", address, err)
	}
	if res == nil || res.Value == nil {
		return nil, ErrAccountNotFound
	}
	if !res.Value.Owner.Equals(c.programID) {
		return nil, fmt.Errorf("account %s is owned by %s: %w", address, res.Value.Owner, ErrInvalidAccount)
	}
	return DecodeElectionAccount(address, res.Value.Data.GetBinary())
}

func (c *rpcClient) SubmitTally(ctx context.Context, write *TallyWrite) (solana.Signature, error) {
	authority := c.Authority()
	instructions := make([]solana.Instruction, 0, 2)
	if write.Initialise {
		ix, err := NewInitialiseInstruction(c.programID, write.Election, authority, write.Metadata)
		if err != nil {
			return solana.Signature{}, err
		}
		instructions = append(instructions, ix)
	}
	ix, err := NewSetTallyInstruction(c.programID, write.Election, authority, write.VotesA, write.VotesB)
	if err != nil {
		return solana.Signature{}, err
	}
	instructions = append(instructions, ix)

	blockhash, err := c.latestBlockhash(ctx)
	if err != nil {
		return solana.Signature{}, err
	}
	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(authority))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("can't build transaction: %w", err)
	}
	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(authority) {
			return &c.signer
		}
		return nil
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("can't sign transaction: %w", err)
	}

	sig, err := c.sendTransaction(ctx, tx)
	if err != nil {
		return solana.Signature{}, err
	}
	if err = c.waitForConfirmation(ctx, sig); err != nil {
		return sig, err
	}
	return sig, nil
}

func (c *rpcClient) latestBlockhash(ctx context.Context) (solana.Hash, error) {
	defer ObserveDuration(c.url, "getLatestBlockhash")()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.client.GetLatestBlockhash(ctx, c.commitment)
	ObserveError(c.url, "getLatestBlockhash", err)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("can't get latest blockhash: %w", err)
	}
	return res.Value.Blockhash, nil
}

func (c *rpcClient) sendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	defer ObserveDuration(c.url, "sendTransaction")()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	sig, err := c.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: c.commitment,
	})
	ObserveError(c.url, "sendTransaction", err)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("can't send transaction: %w", err)
	}
	return sig, nil
}

func (c *rpcClient) waitForConfirmation(ctx context.Context, sig solana.Signature) error {
	ctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	for {
		confirmed, err := c.signatureStatus(ctx, sig)
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if confirmed {
			return nil
		}
		if utils.ContextSleep(ctx, c.statusPollInterval) == nil {
			return fmt.Errorf("signature %s after %s: %w", sig, c.confirmTimeout, ErrConfirmationTimeout)
		}
	}
}

func (c *rpcClient) signatureStatus(ctx context.Context, sig solana.Signature) (bool, error) {
	defer ObserveDuration(c.url, "getSignatureStatuses")()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.client.GetSignatureStatuses(ctx, true, sig)
	ObserveError(c.url, "getSignatureStatuses", err)
	if err != nil {
		return false, fmt.Errorf("can't get signature status: %w", err)
	}
	if res == nil || len(res.Value) == 0 || res.Value[0] == nil {
		return false, nil
	}
	status := res.Value[0]
	if status.Err != nil {
		return false, fmt.Errorf("signature %s: %v: %w", sig, status.Err, ErrTransactionFailed)
	}
	return reachedCommitment(status.ConfirmationStatus, c.commitment), nil
}

func reachedCommitment(status rpc.ConfirmationStatusType, commitment rpc.CommitmentType) bool {
	switch commitment {
	case rpc.CommitmentFinalized:
		return status == rpc.ConfirmationStatusFinalized
	case rpc.CommitmentConfirmed:
		return status == rpc.ConfirmationStatusConfirmed || status == rpc.ConfirmationStatusFinalized
	default:
		return status != ""
	}
}
