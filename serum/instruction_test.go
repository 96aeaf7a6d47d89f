package serum

import (
	"testing"

	"github.com/egaotan/serum-saver/program"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

func TestNewOrderEncoding(t *testing.T) {
	srm := solana.NewWallet().PublicKey()
	accounts := &NewOrderAccounts{
		Market:       solana.NewWallet().PublicKey(),
		OpenOrders:   solana.NewWallet().PublicKey(),
		OrderPayer:   solana.NewWallet().PublicKey(),
		Owner:        solana.NewWallet().PublicKey(),
		TokenProgram: program.Token,
		Rent:         program.SysRent,
		SrmAccount:   &srm,
	}
	order := &NewOrderV3{
		Side:                        Ask,
		LimitPrice:                  204,
		MaxCoinQty:                  10,
		MaxNativePcQtyIncludingFees: 2_100_000,
		SelfTradeBehavior:           AbortTransaction,
		OrderType:                   ImmediateOrCancel,
		Limit:                       MaxLimit,
	}
	instruction, err := InstructionNewOrder(program.SerumV3, accounts, order)
	require.NoError(t, err)
	data, err := instruction.Data()
	require.NoError(t, err)
	require.Len(t, data, 51)
	require.Equal(t, []byte{0, 10, 0, 0, 0, 1, 0, 0, 0}, data[:9])
	require.Len(t, instruction.Accounts(), 13)
	require.True(t, instruction.Accounts()[7].IsSigner)
	require.Equal(t, srm, instruction.Accounts()[12].PublicKey)

	decoded, err := DecodeNewOrder(data)
	require.NoError(t, err)
	require.Equal(t, order, decoded)

	accounts.SrmAccount = nil
	instruction, err = InstructionNewOrder(program.SerumV3, accounts, order)
	require.NoError(t, err)
	require.Len(t, instruction.Accounts(), 12)

	for _, zero := range []NewOrderV3{
		{Side: Bid, MaxCoinQty: 1, MaxNativePcQtyIncludingFees: 1},
		{Side: Bid, LimitPrice: 1, MaxNativePcQtyIncludingFees: 1},
		{Side: Bid, LimitPrice: 1, MaxCoinQty: 1},
	} {
		_, err := InstructionNewOrder(program.SerumV3, accounts, &zero)
		require.ErrorIs(t, err, ErrZeroValue)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, _, err := DecodeInstruction([]byte{0, 1})
	require.ErrorIs(t, err, ErrInvalidInstruction)
	_, _, err = DecodeInstruction([]byte{1, 10, 0, 0, 0})
	require.ErrorIs(t, err, ErrInvalidInstruction)

	settle := InstructionSettleFunds(program.SerumV3, &SettleFundsAccounts{})
	data, _ := settle.Data()
	_, err = DecodeNewOrder(data)
	require.ErrorIs(t, err, ErrInvalidInstruction)

	order := make([]byte, 51)
	order[1] = 10
	order[5] = 2
	_, err = DecodeNewOrder(order)
	require.ErrorIs(t, err, ErrInvalidInstruction)
}

func TestInitOpenOrdersAccounts(t *testing.T) {
	openOrders := solana.NewWallet().PublicKey()
	owner := solana.NewWallet().PublicKey()
	market := solana.NewWallet().PublicKey()
	instruction := InstructionInitOpenOrders(program.SerumV3, openOrders, owner, market, nil)
	data, _ := instruction.Data()
	tag, body, err := DecodeInstruction(data)
	require.NoError(t, err)
	require.Equal(t, InstructionInitOpenOrdersTag, tag)
	require.Empty(t, body)
	accounts := instruction.Accounts()
	require.Len(t, accounts, 4)
	require.Equal(t, market, accounts[2].PublicKey)
	require.Equal(t, market, accounts[3].PublicKey)
	require.True(t, accounts[1].IsSigner)

	authority := solana.NewWallet().PublicKey()
	instruction = InstructionInitOpenOrders(program.SerumV3, openOrders, owner, market, &authority)
	require.Len(t, instruction.Accounts(), 5)
}

func TestSettleAndConsume(t *testing.T) {
	referrer := solana.NewWallet().PublicKey()
	settle := InstructionSettleFunds(program.SerumV3, &SettleFundsAccounts{Referrer: &referrer})
	require.Len(t, settle.Accounts(), 10)
	require.True(t, settle.Accounts()[9].IsWritable)

	keys := []solana.PublicKey{solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()}
	consume := InstructionConsumeEvents(program.SerumV3, keys, program.Serum_Srm_Usdc, referrer, keys[0], keys[0], 5)
	require.Len(t, consume.Accounts(), 6)
	data, _ := consume.Data()
	limit, err := DecodeConsumeEvents(data)
	require.NoError(t, err)
	require.Equal(t, uint16(5), limit)
}
