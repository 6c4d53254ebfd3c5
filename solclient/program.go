package solclient

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/omni/tally-relay/entity"
)

const (
	electionSeed = "election"
	// discriminator + authority + metadata + votes_a + votes_b + finalised
	electionAccountSize = 8 + 32 + 32 + 8 + 8 + 1
)

var ErrInvalidAccount = errors.New("invalid election account")

var (
	initialiseDiscriminator      = sighash("global:initialise")
	setTallyDiscriminator        = sighash("global:set_tally")
	electionAccountDiscriminator = sighash("account:Election")
)

func sighash(preimage string) []byte {
	sum := sha256.Sum256([]byte(preimage))
	return sum[:8]
}

// DeriveElectionAddress returns the program derived address of the election
// account for the given seed. The same seed always maps to the same address.
func DeriveElectionAddress(programID solana.PublicKey, seed []byte) (solana.PublicKey, uint8, error) {
	addr, bump, err := solana.FindProgramAddress([][]byte{[]byte(electionSeed), seed}, programID)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("can't derive election address: %w", err)
	}
	return addr, bump, nil
}

func NewInitialiseInstruction(programID, election, authority solana.PublicKey, metadata [32]byte) (solana.Instruction, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	if err := enc.WriteBytes(initialiseDiscriminator, false); err != nil {
		return nil, fmt.Errorf("can't encode initialise discriminator: %w", err)
	}
	if err := enc.WriteBytes(metadata[:], false); err != nil {
		return nil, fmt.Errorf("can't encode election metadata: %w", err)
	}
	return solana.NewInstruction(programID, solana.AccountMetaSlice{
		solana.NewAccountMeta(election, true, false),
		solana.NewAccountMeta(authority, true, true),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	}, buf.Bytes()), nil
}

func NewSetTallyInstruction(programID, election, authority solana.PublicKey, votesA, votesB uint64) (solana.Instruction, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	if err := enc.WriteBytes(setTallyDiscriminator, false); err != nil {
		return nil, fmt.Errorf("can't encode set_tally discriminator: %w", err)
	}
	if err := enc.WriteUint64(votesA, bin.LE); err != nil {
		return nil, fmt.Errorf("can't encode votes_a: %w", err)
	}
	if err := enc.WriteUint64(votesB, bin.LE); err != nil {
		return nil, fmt.Errorf("can't encode votes_b: %w", err)
	}
	return solana.NewInstruction(programID, solana.AccountMetaSlice{
		solana.NewAccountMeta(election, true, false),
		solana.NewAccountMeta(authority, false, true),
	}, buf.Bytes()), nil
}

func DecodeElectionAccount(address solana.PublicKey, data []byte) (*entity.MirroredAccount, error) {
	if len(data) < electionAccountSize {
		return nil, fmt.Errorf("account data has %d bytes, expected at least %d: %w", len(data), electionAccountSize, ErrInvalidAccount)
	}
	dec := bin.NewBorshDecoder(data)
	disc, err := dec.ReadNBytes(8)
	if err != nil {
		return nil, fmt.Errorf("can't read discriminator: %w", err)
	}
	if !bytes.Equal(disc, electionAccountDiscriminator) {
		return nil, fmt.Errorf("unexpected account discriminator %x: %w", disc, ErrInvalidAccount)
	}
	account := &entity.MirroredAccount{Address: address}
	authority, err := dec.ReadNBytes(32)
	if err != nil {
		return nil, fmt.Errorf("can't read authority: %w", err)
	}
	account.Authority = solana.PublicKeyFromBytes(authority)
	metadata, err := dec.ReadNBytes(32)
	if err != nil {
		return nil, fmt.Errorf("can't read metadata: %w", err)
	}
	copy(account.Metadata[:], metadata)
	if account.VotesA, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, fmt.Errorf("can't read votes_a: %w", err)
	}
	if account.VotesB, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, fmt.Errorf("can't read votes_b: %w", err)
	}
	if account.Finalized, err = dec.ReadBool(); err != nil {
		return nil, fmt.Errorf("can't read finalised flag: %w", err)
	}
	return account, nil
}

// EncodeElectionAccount is the inverse of DecodeElectionAccount.
func EncodeElectionAccount(account *entity.MirroredAccount) ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	for _, chunk := range [][]byte{electionAccountDiscriminator, account.Authority.Bytes(), account.Metadata[:]} {
		if err := enc.WriteBytes(chunk, false); err != nil {
			return nil, fmt.Errorf("can't encode election account: %w", err)
		}
	}
	if err := enc.WriteUint64(account.VotesA, bin.LE); err != nil {
		return nil, fmt.Errorf("can't encode votes_a: %w", err)
	}
	if err := enc.WriteUint64(account.VotesB, bin.LE); err != nil {
		return nil, fmt.Errorf("can't encode votes_b: %w", err)
	}
	if err := enc.WriteBool(account.Finalized); err != nil {
		return nil, fmt.Errorf("can't encode finalised flag: %w", err)
	}
	return buf.Bytes(), nil
}
