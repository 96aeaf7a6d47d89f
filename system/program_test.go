package system

import (
	"context"
	"testing"

	"github.com/egaotan/serum-saver/backend"
	"github.com/egaotan/serum-saver/program"
	"github.com/egaotan/serum-saver/utils"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

func TestCreateAccount(t *testing.T) {
	local := backend.NewLocal(utils.Discard())
	local.Register(NewProgram(utils.Discard()))
	payer := solana.NewWallet().PrivateKey
	local.Airdrop(payer.PublicKey(), 10_000_000)
	account := solana.NewWallet().PrivateKey
	ctx := context.Background()

	lamports := backend.RentExemptMinimum(165)
	create := InstructionCreateAccount(payer.PublicKey(), account.PublicKey(), lamports, 165, program.Token)
	_, err := local.Execute(ctx, []solana.Instruction{create}, []solana.PrivateKey{payer, account})
	require.NoError(t, err)

	created := local.Account(account.PublicKey())
	require.Equal(t, program.Token, created.Owner)
	require.Len(t, created.Data, 165)
	require.Equal(t, lamports, created.Lamports)
	require.Equal(t, 10_000_000-lamports, local.Account(payer.PublicKey()).Lamports)

	_, err = local.Execute(ctx, []solana.Instruction{create}, []solana.PrivateKey{payer, account})
	require.ErrorIs(t, err, ErrAccountAlreadyInUse)
}

func TestTransfer(t *testing.T) {
	local := backend.NewLocal(utils.Discard())
	local.Register(NewProgram(utils.Discard()))
	payer := solana.NewWallet().PrivateKey
	local.Airdrop(payer.PublicKey(), 100)
	to := solana.NewWallet().PublicKey()
	ctx := context.Background()

	_, err := local.Execute(ctx, []solana.Instruction{InstructionTransfer(payer.PublicKey(), to, 60)}, []solana.PrivateKey{payer})
	require.NoError(t, err)
	require.Equal(t, uint64(60), local.Account(to).Lamports)

	_, err = local.Execute(ctx, []solana.Instruction{InstructionTransfer(payer.PublicKey(), to, 60)}, []solana.PrivateKey{payer})
	require.ErrorIs(t, err, backend.ErrInsufficientFunds)
	require.Equal(t, uint64(40), local.Account(payer.PublicKey()).Lamports)
}
