package backend

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Simulate asks the cluster to run instructions without landing them and
// returns the post state of pubkeys.
func (r *Remote) Simulate(ctx context.Context, instructions []solana.Instruction, signers []solana.PrivateKey, pubkeys []solana.PublicKey) ([]*Account, *Receipt, error) {
	latest, err := r.rpcClient.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return nil, nil, err
	}
	trx, err := buildTransaction(instructions, latest.Value.Blockhash, r.signers(signers))
	if err != nil {
		return nil, nil, err
	}
	response, err := r.rpcClient.SimulateTransactionWithOpts(ctx, trx, &rpc.SimulateTransactionOpts{
		SigVerify:  false,
		Commitment: rpc.CommitmentFinalized,
		Accounts: &rpc.SimulateTransactionAccountsOpts{
			Encoding:  solana.EncodingBase64,
			Addresses: pubkeys,
		},
	})
	if err != nil {
		return nil, nil, err
	}
	simulateTransactionResponse := response.Value
	receipt := &Receipt{Slot: response.Context.Slot, Logs: simulateTransactionResponse.Logs}
	if simulateTransactionResponse.Logs == nil {
		return nil, receipt, fmt.Errorf("log is nil, simulate failed before the transaction was able to executed, such as signature verification failure or invalid blockhash")
	}
	if simulateTransactionResponse.Err != nil {
		return nil, receipt, fmt.Errorf("%v", simulateTransactionResponse.Err)
	}
	accounts := make([]*Account, 0, len(pubkeys))
	for i, account := range simulateTransactionResponse.Accounts {
		accounts = append(accounts, fromRpc(pubkeys[i], response.Context.Slot, account))
	}
	return accounts, receipt, nil
}
