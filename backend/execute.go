package backend

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

func (r *Remote) Execute(ctx context.Context, instructions []solana.Instruction, signers []solana.PrivateKey) (*Receipt, error) {
	latest, err := r.rpcClient.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return nil, err
	}
	trx, err := buildTransaction(instructions, latest.Value.Blockhash, r.signers(signers))
	if err != nil {
		return nil, err
	}
	signature, err := r.rpcClient.SendTransactionWithOpts(ctx, trx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: r.commitment,
	})
	if err != nil {
		r.logger.Printf("SendTransactionWithOpts err: %s", err.Error())
		return nil, err
	}
	r.logger.Printf("transaction sent: %s", signature)
	return &Receipt{
		Signature: signature,
		Slot:      latest.Context.Slot,
	}, nil
}
