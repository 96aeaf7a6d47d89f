package backend

import (
	"context"
	"fmt"
	"log"

	"github.com/egaotan/serum-saver/config"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

const (
	MultipleAccountSliceSize = 100
)

// Remote executes against a cluster over json rpc.
type Remote struct {
	logger     *log.Logger
	rpcClient  *rpc.Client
	commitment rpc.CommitmentType
	wallets    []*Wallet
}

func NewRemote(node *config.Node, logger *log.Logger) *Remote {
	return &Remote{
		logger:     logger,
		rpcClient:  rpc.New(node.Rpc),
		commitment: rpc.CommitmentConfirmed,
	}
}

func (r *Remote) Accounts(ctx context.Context, pubkeys []solana.PublicKey) ([]*Account, error) {
	accounts := make([]*Account, 0, len(pubkeys))
	index, end := 0, 0
	for index < len(pubkeys) {
		if end = index + MultipleAccountSliceSize; end > len(pubkeys) {
			end = len(pubkeys)
		}
		getMultipleAccountsRsp, err := r.rpcClient.GetMultipleAccountsWithOpts(ctx, pubkeys[index:end],
			&rpc.GetMultipleAccountsOpts{Encoding: solana.EncodingBase64, Commitment: r.commitment})
		if err != nil {
			return nil, err
		}
		if len(getMultipleAccountsRsp.Value) != end-index {
			return nil, fmt.Errorf("get accounts err, some account is missing")
		}
		for i, account := range getMultipleAccountsRsp.Value {
			accounts = append(accounts, fromRpc(pubkeys[index+i], getMultipleAccountsRsp.Context.Slot, account))
		}
		index = end
	}
	return accounts, nil
}

func (r *Remote) MinimumBalanceForRentExemption(ctx context.Context, size uint64) (uint64, error) {
	return r.rpcClient.GetMinimumBalanceForRentExemption(ctx, size, rpc.CommitmentFinalized)
}

func fromRpc(key solana.PublicKey, slot uint64, account *rpc.Account) *Account {
	if account == nil {
		return nil
	}
	var data []byte
	if account.Data != nil {
		data = account.Data.GetBinary()
	}
	return &Account{
		PubKey:     key,
		Height:     slot,
		Owner:      account.Owner,
		Lamports:   account.Lamports,
		Data:       data,
		Executable: account.Executable,
	}
}
