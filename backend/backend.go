package backend

import (
	"bytes"
	"context"
	"errors"

	"github.com/gagliardetto/solana-go"
)

var (
	ErrMissingSigner           = errors.New("missing required signature")
	ErrPrivilegeEscalation     = errors.New("cross-program invocation with unauthorized signer or writable account")
	ErrReadonlyModified        = errors.New("instruction modified data of a read-only account")
	ErrExternalAccountModified = errors.New("instruction modified data of an account it does not own")
	ErrUnknownProgram          = errors.New("unknown program")
	ErrCallDepth               = errors.New("cross-program invocation call depth too deep")
	ErrAccountNotFound         = errors.New("account not found")
	ErrInsufficientFunds       = errors.New("insufficient lamports")
)

const (
	MaxInvokeDepth = 4
)

type Account struct {
	PubKey     solana.PublicKey
	Height     uint64
	Owner      solana.PublicKey
	Lamports   uint64
	Data       []byte
	Executable bool
}

func (a *Account) Clone() *Account {
	c := *a
	if a.Data != nil {
		c.Data = append([]byte(nil), a.Data...)
	}
	return &c
}

func (a *Account) equal(b *Account) bool {
	return a.Owner == b.Owner && a.Lamports == b.Lamports && a.Executable == b.Executable && bytes.Equal(a.Data, b.Data)
}

// Empty reports whether nothing lives at this address.
func (a *Account) Empty() bool {
	return a.Lamports == 0 && len(a.Data) == 0 && (a.Owner.IsZero() || a.Owner == solana.SystemProgramID)
}

type Receipt struct {
	Signature solana.Signature
	Slot      uint64
	Logs      []string
}

// Executor is a place instructions run: an in-process Local host or a
// cluster reached over rpc.
type Executor interface {
	// Accounts returns one entry per key, nil where the account does not exist.
	Accounts(ctx context.Context, keys []solana.PublicKey) ([]*Account, error)
	Execute(ctx context.Context, instructions []solana.Instruction, signers []solana.PrivateKey) (*Receipt, error)
	MinimumBalanceForRentExemption(ctx context.Context, size uint64) (uint64, error)
}

// RentExemptMinimum is the lamport balance that keeps an account of size
// bytes alive: two years of rent at the default rate.
func RentExemptMinimum(size uint64) uint64 {
	return (128 + size) * 3480 * 2
}

func signerSet(signers []solana.PrivateKey) map[solana.PublicKey]solana.PrivateKey {
	set := make(map[solana.PublicKey]solana.PrivateKey, len(signers))
	for _, signer := range signers {
		set[signer.PublicKey()] = signer
	}
	return set
}

func buildTransaction(instructions []solana.Instruction, blockHash solana.Hash, signers []solana.PrivateKey) (*solana.Transaction, error) {
	if len(signers) == 0 {
		return nil, ErrMissingSigner
	}
	trx, err := solana.NewTransaction(instructions, blockHash, solana.TransactionPayer(signers[0].PublicKey()))
	if err != nil {
		return nil, err
	}
	set := signerSet(signers)
	_, err = trx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if pri, ok := set[key]; ok {
			return &pri
		}
		return nil
	})
	if err != nil {
		return nil, errors.Join(ErrMissingSigner, err)
	}
	return trx, nil
}
