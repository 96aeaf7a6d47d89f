package client_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/egaotan/serum-saver/backend"
	"github.com/egaotan/serum-saver/client"
	"github.com/egaotan/serum-saver/program"
	"github.com/egaotan/serum-saver/saver"
	"github.com/egaotan/serum-saver/serum"
	"github.com/egaotan/serum-saver/serum/serumtest"
	"github.com/egaotan/serum-saver/spltoken/tokentest"
	"github.com/egaotan/serum-saver/store"
	"github.com/egaotan/serum-saver/utils"
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type env struct {
	local      *backend.Local
	client     *client.Client
	market     *serumtest.Market
	controller solana.PrivateKey
}

func setup(t *testing.T) *env {
	local := serumtest.NewLocal()
	local.Register(saver.NewProgram(utils.Discard(), program.Saver, program.SerumV3, program.SRM))
	authority := solana.NewWallet().PublicKey()
	base := tokentest.CreateMint(t, local, authority, 3)
	quote := tokentest.CreateMint(t, local, authority, 6)
	tokentest.CreateMintAt(t, local, program.SRM, authority, 6)
	e := &env{
		local:      local,
		client:     client.NewClient(local, program.Saver, program.SerumV3, program.SRM, utils.Discard()),
		market:     serumtest.CreateMarket(t, local, base, quote, 1000, 10),
		controller: tokentest.NewWallet(local, 10_000_000_000),
	}
	maker := serumtest.NewTrader(t, local, e.market, 100_000, 0)
	require.NoError(t, maker.Place(serum.Ask, 202, 20, serum.Limit))
	tokentest.CreateAssociated(t, local, quote, e.controller.PublicKey(), 3_000_000)
	return e
}

func (e *env) bind(t *testing.T) (*client.Vault, *client.Binding) {
	ctx := context.Background()
	vault, err := e.client.CreateVault(ctx, e.controller, solana.NewWallet().PrivateKey)
	require.NoError(t, err)
	binding, err := e.client.BindMarket(ctx, e.controller, vault.Key, e.market.Key)
	require.NoError(t, err)
	return vault, binding
}

func TestCreateVault(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	vault, err := e.client.CreateVault(ctx, e.controller, solana.NewWallet().PrivateKey)
	require.NoError(t, err)

	state, err := e.client.Vault(ctx, vault.Key)
	require.NoError(t, err)
	require.Equal(t, e.controller.PublicKey(), state.Controller)
	require.Equal(t, vault.Authority, state.Signer)
	require.Equal(t, vault.Nonce, state.Nonce)
	require.Equal(t, vault.SrmVault, state.SrmVault)

	srm := tokentest.Layout(t, e.local, vault.SrmVault)
	require.Equal(t, program.SRM, srm.Mint)
	require.Equal(t, vault.Authority, srm.Owner)
	require.Zero(t, srm.Amount)
}

func TestBindMarket(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	vault, binding := e.bind(t)

	state, err := e.client.Binding(ctx, binding.Key)
	require.NoError(t, err)
	require.Equal(t, vault.Key, state.Saver)
	require.Equal(t, binding.OpenOrders, state.OpenOrders)
	require.Equal(t, uint64(1000), state.CoinLotSize)

	openOrders := serumtest.OpenOrders(t, e.local, binding.OpenOrders)
	require.Equal(t, vault.Authority, openOrders.Owner)
	require.Equal(t, e.market.Key, openOrders.Market)
	require.Equal(t, e.market.BaseMint, tokentest.Layout(t, e.local, binding.CoinVault).Mint)
	require.Equal(t, e.market.QuoteMint, tokentest.Layout(t, e.local, binding.PcVault).Mint)

	// a second binding reuses the vault token accounts
	second, err := e.client.BindMarket(ctx, e.controller, vault.Key, e.market.Key)
	require.NoError(t, err)
	require.Equal(t, binding.CoinVault, second.CoinVault)
	require.NotEqual(t, binding.OpenOrders, second.OpenOrders)
}

func TestSwap(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	dao, err := store.NewDao(store.DriverSqlite, filepath.Join(t.TempDir(), "journal.db"), utils.Discard())
	require.NoError(t, err)
	journal := store.NewStore(ctx, dao, utils.Discard())
	journal.Start()
	e.client.SetStore(journal)
	_, binding := e.bind(t)

	result, err := e.client.Swap(ctx, e.controller, binding.Key, &saver.SwapArgs{
		Side:                        uint8(serum.Bid),
		LimitPrice:                  204,
		MaxCoinQty:                  10,
		MaxNativePcQtyIncludingFees: 2_100_000,
	})
	require.NoError(t, err)
	require.Equal(t, e.market.Key, result.Market)
	require.Equal(t, int64(10_000), result.CoinDelta())
	require.Equal(t, int64(-20_245), result.PcDelta())
	require.Equal(t, uint64(10_000), tokentest.Balance(t, e.local, result.CoinWallet))

	_, err = e.client.Swap(ctx, e.controller, binding.Key, &saver.SwapArgs{
		Side:                        uint8(serum.Bid),
		LimitPrice:                  204,
		MaxCoinQty:                  10,
		MaxNativePcQtyIncludingFees: 0,
	})
	require.ErrorIs(t, err, saver.ErrNonZeroU64)
	journal.Stop()

	records, err := dao.SelectSwaps(binding.Key.String(), 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.NotEmpty(t, records[0].Error)
	require.Zero(t, records[0].CoinDelta)
	require.Empty(t, records[1].Error)
	require.Equal(t, "bid", records[1].Side)
	require.Equal(t, int64(-20_245), records[1].PcDelta)

	markets, err := dao.SelectMarkets(binding.Vault.String())
	require.NoError(t, err)
	require.Len(t, markets, 1)
	require.Equal(t, binding.Key.String(), markets[0].Binding)
}

// blindAfterExecute loses its reads once a transaction has committed.
type blindAfterExecute struct {
	backend.Executor
	executed bool
}

var errNodeUnavailable = errors.New("node unavailable")

func (b *blindAfterExecute) Execute(ctx context.Context, instructions []solana.Instruction, signers []solana.PrivateKey) (*backend.Receipt, error) {
	receipt, err := b.Executor.Execute(ctx, instructions, signers)
	if err == nil {
		b.executed = true
	}
	return receipt, err
}

func (b *blindAfterExecute) Accounts(ctx context.Context, keys []solana.PublicKey) ([]*backend.Account, error) {
	if b.executed {
		return nil, errNodeUnavailable
	}
	return b.Executor.Accounts(ctx, keys)
}

func TestSwapCommittedBalancesUnread(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	_, binding := e.bind(t)
	dao, err := store.NewDao(store.DriverSqlite, filepath.Join(t.TempDir(), "journal.db"), utils.Discard())
	require.NoError(t, err)
	journal := store.NewStore(ctx, dao, utils.Discard())
	journal.Start()
	blind := &blindAfterExecute{Executor: e.local}
	c := client.NewClient(blind, program.Saver, program.SerumV3, program.SRM, utils.Discard())
	c.SetStore(journal)

	result, err := c.Swap(ctx, e.controller, binding.Key, &saver.SwapArgs{
		Side:                        uint8(serum.Bid),
		LimitPrice:                  204,
		MaxCoinQty:                  10,
		MaxNativePcQtyIncludingFees: 2_100_000,
	})
	require.NoError(t, err)
	require.ErrorIs(t, result.BalanceErr, errNodeUnavailable)
	require.NotNil(t, result.Receipt)
	require.Zero(t, result.CoinDelta())
	// the swap itself went through
	require.Equal(t, uint64(10_000), tokentest.Balance(t, e.local, result.CoinWallet))
	journal.Stop()

	records, err := dao.SelectSwaps(binding.Key.String(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Empty(t, records[0].Error)
	require.Contains(t, records[0].BalanceError, errNodeUnavailable.Error())
	require.Equal(t, result.Receipt.Signature.String(), records[0].Signature)
	require.Equal(t, result.Receipt.Slot, records[0].Slot)
}

func TestSwapUnknownBinding(t *testing.T) {
	e := setup(t)
	_, err := e.client.Swap(context.Background(), e.controller, solana.NewWallet().PublicKey(), &saver.SwapArgs{})
	require.ErrorIs(t, err, client.ErrAccountNotFound)
}

func TestModel(t *testing.T) {
	e := setup(t)
	model, err := e.client.Model(context.Background(), e.market.Key, 3, 6)
	require.NoError(t, err)
	asks := model.Asks(5)
	require.Len(t, asks, 1)
	require.True(t, asks[0].Price.Equal(decimal.RequireFromString("0.00202")))
	require.True(t, asks[0].Quantity.Equal(decimal.NewFromInt(20)))
	require.Empty(t, model.Bids(5))

	balances, err := e.client.Balances(context.Background(), e.market.BaseVault, solana.NewWallet().PublicKey())
	require.NoError(t, err)
	require.Equal(t, []uint64{20_000, 0}, balances)
}
