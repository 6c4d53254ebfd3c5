package solclient

import (
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/require"

	"github.com/omni/tally-relay/entity"
)

var testProgramID = solana.MustPublicKeyFromBase58("AdemcJyFzDyiCTyuCQuhkWQHQdQUkaqj15nwAPgsARmj")

func TestDeriveElectionAddress(t *testing.T) {
	t.Parallel()

	seed := make([]byte, 32)
	seed[31] = 1

	addr1, bump1, err := DeriveElectionAddress(testProgramID, seed)
	require.NoError(t, err)
	addr2, bump2, err := DeriveElectionAddress(testProgramID, seed)
	require.NoError(t, err)
	require.Equal(t, addr1, addr2)
	require.Equal(t, bump1, bump2)
	require.False(t, addr1.IsOnCurve())

	expected, _, err := solana.FindProgramAddress([][]byte{[]byte("election"), seed}, testProgramID)
	require.NoError(t, err)
	require.Equal(t, expected, addr1)

	seed2 := make([]byte, 32)
	seed2[31] = 2
	addr3, _, err := DeriveElectionAddress(testProgramID, seed2)
	require.NoError(t, err)
	require.NotEqual(t, addr1, addr3)
}

func TestNewSetTallyInstruction(t *testing.T) {
	t.Parallel()

	election := solana.NewWallet().PublicKey()
	authority := solana.NewWallet().PublicKey()
	ix, err := NewSetTallyInstruction(testProgramID, election, authority, 42, 7)
	require.NoError(t, err)
	require.Equal(t, testProgramID, ix.ProgramID())

	data, err := ix.Data()
	require.NoError(t, err)
	require.Len(t, data, 24)
	require.Equal(t, setTallyDiscriminator, data[:8])
	require.Equal(t, uint64(42), binary.LittleEndian.Uint64(data[8:16]))
	require.Equal(t, uint64(7), binary.LittleEndian.Uint64(data[16:24]))

	accounts := ix.Accounts()
	require.Len(t, accounts, 2)
	require.Equal(t, election, accounts[0].PublicKey)
	require.True(t, accounts[0].IsWritable)
	require.Equal(t, authority, accounts[1].PublicKey)
	require.True(t, accounts[1].IsSigner)
}

func TestNewInitialiseInstruction(t *testing.T) {
	t.Parallel()

	election := solana.NewWallet().PublicKey()
	authority := solana.NewWallet().PublicKey()
	var metadata [32]byte
	metadata[31] = 9
	ix, err := NewInitialiseInstruction(testProgramID, election, authority, metadata)
	require.NoError(t, err)

	data, err := ix.Data()
	require.NoError(t, err)
	require.Len(t, data, 40)
	require.Equal(t, initialiseDiscriminator, data[:8])
	require.Equal(t, metadata[:], data[8:])

	accounts := ix.Accounts()
	require.Len(t, accounts, 3)
	require.True(t, accounts[0].IsWritable)
	require.True(t, accounts[1].IsSigner)
	require.True(t, accounts[1].IsWritable)
	require.Equal(t, solana.SystemProgramID, accounts[2].PublicKey)
}

func TestElectionAccountCodec(t *testing.T) {
	t.Parallel()

	address := solana.NewWallet().PublicKey()
	account := &entity.MirroredAccount{
		Address:   address,
		Authority: solana.NewWallet().PublicKey(),
		VotesA:    42,
		VotesB:    7,
		Finalized: true,
	}
	account.Metadata[0] = 1

	data, err := EncodeElectionAccount(account)
	require.NoError(t, err)
	require.Len(t, data, electionAccountSize)

	decoded, err := DecodeElectionAccount(address, data)
	require.NoError(t, err)
	require.Equal(t, account, decoded)

	_, err = DecodeElectionAccount(address, data[:20])
	require.ErrorIs(t, err, ErrInvalidAccount)

	data[0] ^= 0xff
	_, err = DecodeElectionAccount(address, data)
	require.ErrorIs(t, err, ErrInvalidAccount)
}

func TestReachedCommitment(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		Status     rpc.ConfirmationStatusType
		Commitment rpc.CommitmentType
		Expected   bool
	}{
		{rpc.ConfirmationStatusProcessed, rpc.CommitmentProcessed, true},
		{"", rpc.CommitmentProcessed, false},
		{rpc.ConfirmationStatusProcessed, rpc.CommitmentConfirmed, false},
		{rpc.ConfirmationStatusConfirmed, rpc.CommitmentConfirmed, true},
		{rpc.ConfirmationStatusFinalized, rpc.CommitmentConfirmed, true},
		{rpc.ConfirmationStatusConfirmed, rpc.CommitmentFinalized, false},
		{rpc.ConfirmationStatusFinalized, rpc.CommitmentFinalized, true},
	} {
		require.Equal(t, test.Expected, reachedCommitment(test.Status, test.Commitment), "%s/%s", test.Status, test.Commitment)
	}
}
