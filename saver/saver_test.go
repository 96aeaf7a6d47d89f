package saver_test

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/egaotan/serum-saver/backend"
	"github.com/egaotan/serum-saver/program"
	"github.com/egaotan/serum-saver/saver"
	"github.com/egaotan/serum-saver/serum"
	"github.com/egaotan/serum-saver/serum/serumtest"
	"github.com/egaotan/serum-saver/spltoken"
	"github.com/egaotan/serum-saver/spltoken/tokentest"
	"github.com/egaotan/serum-saver/utils"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	local      *backend.Local
	market     *serumtest.Market
	controller solana.PrivateKey
	saver      solana.PrivateKey
	authority  solana.PublicKey
	nonce      uint8
	srmVault   solana.PublicKey
	binding    solana.PrivateKey
	openOrders solana.PublicKey
	coinVault  solana.PublicKey
	pcVault    solana.PublicKey
	coinWallet solana.PublicKey
	pcWallet   solana.PublicKey
}

func newLocal() *backend.Local {
	local := serumtest.NewLocal()
	local.Register(saver.NewProgram(utils.Discard(), program.Saver, program.SerumV3, program.SRM))
	return local
}

// newFixture lays out a market and a saver whose vaults are ready but not
// yet initialized.
func newFixture(t *testing.T, local *backend.Local, baseLotSize uint64) *fixture {
	mintAuthority := solana.NewWallet().PublicKey()
	base := tokentest.CreateMint(t, local, mintAuthority, 3)
	quote := tokentest.CreateMint(t, local, mintAuthority, 6)
	tokentest.CreateMintAt(t, local, program.SRM, mintAuthority, 6)

	f := &fixture{
		local:      local,
		market:     serumtest.CreateMarket(t, local, base, quote, baseLotSize, 10),
		controller: tokentest.NewWallet(local, 10_000_000_000),
		saver:      solana.NewWallet().PrivateKey,
		binding:    solana.NewWallet().PrivateKey,
	}
	var err error
	f.authority, f.nonce, err = saver.FindAuthority(program.Saver, f.saver.PublicKey())
	require.NoError(t, err)
	f.srmVault = tokentest.CreateAssociated(t, local, program.SRM, f.authority, 0)
	f.coinWallet = tokentest.CreateAccount(t, local, base, f.controller.PublicKey(), 0)
	f.pcWallet = tokentest.CreateAccount(t, local, quote, f.controller.PublicKey(), 3_000_000)
	return f
}

func (f *fixture) execute(instruction solana.Instruction, signers ...solana.PrivateKey) (*backend.Receipt, error) {
	return f.local.Execute(context.Background(), []solana.Instruction{instruction}, signers)
}

func (f *fixture) initializeSaver(t *testing.T, nonce uint8) error {
	ix, err := saver.InstructionInitializeSaver(program.Saver, &saver.InitializeSaverAccounts{
		Saver:    f.saver.PublicKey(),
		Signer:   f.authority,
		SrmVault: f.srmVault,
		Payer:    f.controller.PublicKey(),
	}, nonce)
	require.NoError(t, err)
	_, err = f.execute(ix, f.controller, f.saver)
	return err
}

func (f *fixture) initializeMarket(t *testing.T, payer solana.PrivateKey) error {
	ix, err := saver.InstructionInitializeMarket(program.Saver, &saver.InitializeMarketAccounts{
		SaverMarket:   f.binding.PublicKey(),
		Saver:         f.saver.PublicKey(),
		Signer:        f.authority,
		CoinMint:      f.market.BaseMint,
		CoinVault:     f.coinVault,
		PcMint:        f.market.QuoteMint,
		PcVault:       f.pcVault,
		DexProgram:    f.market.Dex,
		DexMarket:     f.market.Key,
		DexOpenOrders: f.openOrders,
		Payer:         payer.PublicKey(),
	})
	require.NoError(t, err)
	_, err = f.execute(ix, payer, f.binding)
	return err
}

// bind creates the saver and binds it to the market, with pcStart already
// sitting in the pc vault.
func (f *fixture) bind(t *testing.T, pcStart uint64) {
	require.NoError(t, f.initializeSaver(t, f.nonce))
	f.coinVault = tokentest.CreateAssociated(t, f.local, f.market.BaseMint, f.authority, 0)
	f.pcVault = tokentest.CreateAssociated(t, f.local, f.market.QuoteMint, f.authority, pcStart)
	f.openOrders = serumtest.CreateOpenOrders(t, f.local)
	require.NoError(t, f.initializeMarket(t, f.controller))
}

func (f *fixture) swapAccounts() *saver.SwapAccounts {
	return &saver.SwapAccounts{
		Saver:           f.saver.PublicKey(),
		Signer:          f.authority,
		SrmVault:        f.srmVault,
		SaverMarket:     f.binding.PublicKey(),
		CoinVault:       f.coinVault,
		PcVault:         f.pcVault,
		CoinWallet:      f.coinWallet,
		PcWallet:        f.pcWallet,
		WalletSigner:    f.controller.PublicKey(),
		Market:          f.market.Key,
		OpenOrders:      f.openOrders,
		RequestQueue:    f.market.RequestQueue,
		EventQueue:      f.market.EventQueue,
		Bids:            f.market.Bids,
		Asks:            f.market.Asks,
		DexCoinVault:    f.market.BaseVault,
		DexPcVault:      f.market.QuoteVault,
		DexVaultSigner:  f.market.VaultSigner,
		DexProgram:      f.market.Dex,
		SplTokenProgram: program.Token,
	}
}

func (f *fixture) swapWith(t *testing.T, accounts *saver.SwapAccounts, args *saver.SwapArgs, signers ...solana.PrivateKey) (*backend.Receipt, error) {
	ix, err := saver.InstructionSwap(program.Saver, accounts, args)
	require.NoError(t, err)
	if len(signers) == 0 {
		signers = []solana.PrivateKey{f.controller}
	}
	return f.execute(ix, signers...)
}

func (f *fixture) swap(t *testing.T, side serum.Side, price, qty, maxPc uint64) (*backend.Receipt, error) {
	return f.swapWith(t, f.swapAccounts(), &saver.SwapArgs{
		Side:                        uint8(side),
		LimitPrice:                  price,
		MaxCoinQty:                  qty,
		MaxNativePcQtyIncludingFees: maxPc,
	})
}

// restingAsk places a maker ask of 20 lots at 202.
func (f *fixture) restingAsk(t *testing.T) *serumtest.Trader {
	maker := serumtest.NewTrader(t, f.local, f.market, 100_000, 0)
	require.NoError(t, maker.Place(serum.Ask, 202, 20, serum.Limit))
	return maker
}

func (f *fixture) balances(t *testing.T) []uint64 {
	out := []uint64{}
	for _, key := range []solana.PublicKey{f.coinWallet, f.pcWallet, f.coinVault, f.pcVault, f.srmVault} {
		out = append(out, tokentest.Balance(t, f.local, key))
	}
	return out
}

func TestInitializeSaver(t *testing.T) {
	f := newFixture(t, newLocal(), 1000)
	require.NoError(t, f.initializeSaver(t, f.nonce))

	state, err := saver.ParseSaver(f.local.Account(f.saver.PublicKey()), program.Saver)
	require.NoError(t, err)
	require.Equal(t, f.controller.PublicKey(), state.Controller)
	require.Equal(t, f.authority, state.Signer)
	require.Equal(t, f.nonce, state.Nonce)
	require.Equal(t, f.srmVault, state.SrmVault)
	derived, err := saver.DeriveAuthority(program.Saver, f.saver.PublicKey(), state.Nonce)
	require.NoError(t, err)
	require.Equal(t, state.Signer, derived)

	err = f.initializeSaver(t, f.nonce)
	require.ErrorIs(t, err, saver.ErrAccountAlreadyInitialized)
}

func TestInitializeSaverRejectsVault(t *testing.T) {
	cases := map[string]func(t *testing.T, f *fixture){
		"wrong mint": func(t *testing.T, f *fixture) {
			f.srmVault = tokentest.CreateAssociated(t, f.local, f.market.QuoteMint, f.authority, 0)
		},
		"not canonical": func(t *testing.T, f *fixture) {
			f.srmVault = tokentest.CreateAccount(t, f.local, program.SRM, f.authority, 0)
		},
		"not empty": func(t *testing.T, f *fixture) {
			tokentest.CreateAssociated(t, f.local, program.SRM, f.authority, 1)
		},
		"delegate": func(t *testing.T, f *fixture) {
			tokentest.SetAccount(t, f.local, f.srmVault, &spltoken.AccountLayout{
				Mint: program.SRM, Owner: f.authority, State: spltoken.AccountStateInitialized,
				DelegateOption: spltoken.OptionSome, Delegate: f.controller.PublicKey(),
			})
		},
		"close authority": func(t *testing.T, f *fixture) {
			tokentest.SetAccount(t, f.local, f.srmVault, &spltoken.AccountLayout{
				Mint: program.SRM, Owner: f.authority, State: spltoken.AccountStateInitialized,
				CloseAuthorityOption: spltoken.OptionSome, CloseAuthority: f.controller.PublicKey(),
			})
		},
		"foreign owner": func(t *testing.T, f *fixture) {
			f.srmVault = tokentest.CreateAssociated(t, f.local, program.SRM, f.controller.PublicKey(), 0)
		},
		"frozen": func(t *testing.T, f *fixture) {
			tokentest.SetAccount(t, f.local, f.srmVault, &spltoken.AccountLayout{
				Mint: program.SRM, Owner: f.authority, State: spltoken.AccountStateFrozen,
			})
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, newLocal(), 1000)
			mutate(t, f)
			err := f.initializeSaver(t, f.nonce)
			require.ErrorIs(t, err, saver.ErrConstraint)
			require.Nil(t, f.local.Account(f.saver.PublicKey()))
		})
	}

	t.Run("wrong nonce", func(t *testing.T) {
		f := newFixture(t, newLocal(), 1000)
		err := f.initializeSaver(t, f.nonce-1)
		require.ErrorIs(t, err, saver.ErrConstraint)
		var constraint *saver.ConstraintError
		require.ErrorAs(t, err, &constraint)
		require.Equal(t, saver.ConstraintSeeds, constraint.Code)
		require.Nil(t, f.local.Account(f.saver.PublicKey()))
	})
}

func TestInitializeMarket(t *testing.T) {
	f := newFixture(t, newLocal(), 1000)
	f.bind(t, 0)

	binding, err := saver.ParseSaverMarket(f.local.Account(f.binding.PublicKey()), program.Saver)
	require.NoError(t, err)
	require.Equal(t, f.saver.PublicKey(), binding.Saver)
	require.Equal(t, f.openOrders, binding.OpenOrders)
	require.Equal(t, uint64(1000), binding.CoinLotSize)
	require.Equal(t, f.coinVault, binding.CoinVault)
	require.Equal(t, f.pcVault, binding.PcVault)

	openOrders := serumtest.OpenOrders(t, f.local, f.openOrders)
	require.Equal(t, f.authority, openOrders.Owner)
	require.Equal(t, f.market.Key, openOrders.Market)

	// the dex market changing its lot size does not reach the binding
	layout := f.market.Layout(t, f.local)
	layout.BaseLotSize = 5000
	account := f.local.Account(f.market.Key)
	account.Data = layout.Pack()
	f.local.SetAccount(account)
	binding, err = saver.ParseSaverMarket(f.local.Account(f.binding.PublicKey()), program.Saver)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), binding.CoinLotSize)
}

func TestInitializeMarketVaults(t *testing.T) {
	t.Run("pc vault may hold funds", func(t *testing.T) {
		f := newFixture(t, newLocal(), 1000)
		f.bind(t, 500)
		require.Equal(t, uint64(500), tokentest.Balance(t, f.local, f.pcVault))
	})

	t.Run("coin vault must be empty", func(t *testing.T) {
		f := newFixture(t, newLocal(), 1000)
		require.NoError(t, f.initializeSaver(t, f.nonce))
		f.coinVault = tokentest.CreateAssociated(t, f.local, f.market.BaseMint, f.authority, 1)
		f.pcVault = tokentest.CreateAssociated(t, f.local, f.market.QuoteMint, f.authority, 0)
		f.openOrders = serumtest.CreateOpenOrders(t, f.local)
		err := f.initializeMarket(t, f.controller)
		var constraint *saver.ConstraintError
		require.ErrorAs(t, err, &constraint)
		require.Equal(t, "coin_vault", constraint.Account)
		require.Nil(t, f.local.Account(f.binding.PublicKey()))
	})

	t.Run("only the controller binds", func(t *testing.T) {
		f := newFixture(t, newLocal(), 1000)
		require.NoError(t, f.initializeSaver(t, f.nonce))
		f.coinVault = tokentest.CreateAssociated(t, f.local, f.market.BaseMint, f.authority, 0)
		f.pcVault = tokentest.CreateAssociated(t, f.local, f.market.QuoteMint, f.authority, 0)
		f.openOrders = serumtest.CreateOpenOrders(t, f.local)
		stranger := tokentest.NewWallet(f.local, 10_000_000_000)
		err := f.initializeMarket(t, stranger)
		require.ErrorIs(t, err, saver.ErrConstraint)
		require.Nil(t, f.local.Account(f.binding.PublicKey()))
	})
}

func TestSwapBuy(t *testing.T) {
	f := newFixture(t, newLocal(), 1000)
	f.restingAsk(t)
	f.bind(t, 0)

	receipt, err := f.swap(t, serum.Bid, 204, 10, 2_100_000)
	require.NoError(t, err)
	require.Equal(t, []uint64{10_000, 3_000_000 - 20_245, 0, 0, 0}, f.balances(t))
	require.True(t, containsLog(receipt.Logs, "swap bid staged 2100000, coin +10000, pc +2079755"))

	openOrders := serumtest.OpenOrders(t, f.local, f.openOrders)
	require.Zero(t, openOrders.BaseTokenTotal)
	require.Zero(t, openOrders.QuoteTokenTotal)
	require.Empty(t, openOrders.OpenSlots())
	asks := f.market.AskOrders(t, f.local)
	require.Len(t, asks, 1)
	require.Equal(t, uint64(10), asks[0].Quantity)
}

// settleRecorder keeps the accounts of every SettleFunds it forwards.
type settleRecorder struct {
	*serumtest.Engine
	settles [][]solana.PublicKey
}

func (r *settleRecorder) Process(ctx *backend.Context, accounts []*backend.AccountInfo, data []byte) error {
	if tag, _, err := serum.DecodeInstruction(data); err == nil && tag == serum.InstructionSettleFundsTag {
		keys := make([]solana.PublicKey, 0, len(accounts))
		for _, account := range accounts {
			keys = append(keys, account.Key)
		}
		r.settles = append(r.settles, keys)
	}
	return r.Engine.Process(ctx, accounts, data)
}

func TestSwapSettleReferrer(t *testing.T) {
	local := newLocal()
	recorder := &settleRecorder{Engine: serumtest.NewEngine(utils.Discard(), program.SerumV3, program.SRM)}
	local.Register(recorder)
	f := newFixture(t, local, 1000)
	f.restingAsk(t)
	f.bind(t, 0)

	_, err := f.swap(t, serum.Bid, 204, 10, 2_100_000)
	require.NoError(t, err)
	require.Len(t, recorder.settles, 1)
	settle := recorder.settles[0]
	require.Len(t, settle, 10)
	require.Equal(t, f.coinVault, settle[5])
	require.Equal(t, f.pcVault, settle[6])
	// the referrer is the market's own quote vault
	require.Equal(t, f.market.QuoteVault, settle[9])
	require.Equal(t, []uint64{10_000, 3_000_000 - 20_245, 0, 0, 0}, f.balances(t))
}

func TestSwapSrmDiscount(t *testing.T) {
	f := newFixture(t, newLocal(), 1000)
	f.restingAsk(t)
	f.bind(t, 0)
	tokentest.SetAccount(t, f.local, f.srmVault, &spltoken.AccountLayout{
		Mint: program.SRM, Owner: f.authority, Amount: 100_000_000, State: spltoken.AccountStateInitialized,
	})

	_, err := f.swap(t, serum.Bid, 204, 10, 2_100_000)
	require.NoError(t, err)
	require.Equal(t, []uint64{10_000, 3_000_000 - 20_241, 0, 0, 100_000_000}, f.balances(t))
}

func TestSwapSell(t *testing.T) {
	f := newFixture(t, newLocal(), 1000)
	f.restingAsk(t)
	buyer := serumtest.NewTrader(t, f.local, f.market, 0, 1_000_000)
	require.NoError(t, buyer.Place(serum.Bid, 200, 5, serum.Limit))
	f.bind(t, 0)
	tokentest.SetAccount(t, f.local, f.coinWallet, &spltoken.AccountLayout{
		Mint: f.market.BaseMint, Owner: f.controller.PublicKey(), Amount: 5_000, State: spltoken.AccountStateInitialized,
	})

	_, err := f.swap(t, serum.Ask, 199, 3, 1)
	require.NoError(t, err)
	require.Equal(t, []uint64{2_000, 3_000_000 + 5_986, 0, 0, 0}, f.balances(t))

	bids := f.market.BidOrders(t, f.local)
	require.Len(t, bids, 1)
	require.Equal(t, uint64(2), bids[0].Quantity)
}

func TestSwapNoFill(t *testing.T) {
	f := newFixture(t, newLocal(), 1000)
	f.restingAsk(t)
	f.bind(t, 0)
	before := f.balances(t)

	_, err := f.swap(t, serum.Bid, 100, 10, 1_500_000)
	require.NoError(t, err)
	require.Equal(t, before, f.balances(t))
	require.Empty(t, serumtest.OpenOrders(t, f.local, f.openOrders).OpenSlots())
}

func TestSwapCoinQtyOverflow(t *testing.T) {
	f := newFixture(t, newLocal(), 2)
	f.bind(t, 0)
	before := f.balances(t)
	binding := f.local.Account(f.binding.PublicKey())

	_, err := f.swap(t, serum.Ask, 100, math.MaxUint64, 1)
	require.ErrorIs(t, err, saver.ErrCoinQtyOverflow)
	require.Equal(t, before, f.balances(t))
	require.Equal(t, binding.Data, f.local.Account(f.binding.PublicKey()).Data)
}

func TestSwapZeroBounds(t *testing.T) {
	f := newFixture(t, newLocal(), 1000)
	f.restingAsk(t)
	f.bind(t, 0)
	before := f.balances(t)

	for _, args := range []*saver.SwapArgs{
		{Side: uint8(serum.Bid), LimitPrice: 0, MaxCoinQty: 10, MaxNativePcQtyIncludingFees: 2_100_000},
		{Side: uint8(serum.Bid), LimitPrice: 204, MaxCoinQty: 0, MaxNativePcQtyIncludingFees: 2_100_000},
		{Side: uint8(serum.Bid), LimitPrice: 204, MaxCoinQty: 10, MaxNativePcQtyIncludingFees: 0},
		{Side: uint8(serum.Ask), LimitPrice: 204, MaxCoinQty: 0, MaxNativePcQtyIncludingFees: 1},
	} {
		_, err := f.swapWith(t, f.swapAccounts(), args)
		require.ErrorIs(t, err, saver.ErrNonZeroU64)
		require.Equal(t, before, f.balances(t))
	}
}

func TestSwapRejectsAccounts(t *testing.T) {
	f := newFixture(t, newLocal(), 1000)
	f.restingAsk(t)
	f.bind(t, 0)
	before := f.balances(t)
	args := &saver.SwapArgs{Side: uint8(serum.Bid), LimitPrice: 204, MaxCoinQty: 10, MaxNativePcQtyIncludingFees: 2_100_000}

	other := tokentest.CreateAccount(t, f.local, f.market.QuoteMint, f.authority, 0)
	for name, mutate := range map[string]func(a *saver.SwapAccounts){
		"pc vault": func(a *saver.SwapAccounts) { a.PcVault = other },
		"srm vault": func(a *saver.SwapAccounts) {
			a.SrmVault = tokentest.CreateAccount(t, f.local, program.SRM, f.authority, 0)
		},
		"open orders": func(a *saver.SwapAccounts) { a.OpenOrders = serumtest.CreateOpenOrders(t, f.local) },
		"signer":      func(a *saver.SwapAccounts) { a.Signer = f.controller.PublicKey() },
	} {
		accounts := f.swapAccounts()
		mutate(accounts)
		_, err := f.swapWith(t, accounts, args)
		require.ErrorIs(t, err, saver.ErrConstraint, name)
	}

	accounts := f.swapAccounts()
	accounts.DexProgram = program.SerumV3Devnet
	_, err := f.swapWith(t, accounts, args)
	require.ErrorIs(t, err, saver.ErrInvalidProgramID)

	stranger := tokentest.NewWallet(f.local, 10_000_000_000)
	accounts = f.swapAccounts()
	accounts.WalletSigner = stranger.PublicKey()
	accounts.PcWallet = tokentest.CreateAccount(t, f.local, f.market.QuoteMint, stranger.PublicKey(), 3_000_000)
	_, err = f.swapWith(t, accounts, args, stranger)
	var constraint *saver.ConstraintError
	require.ErrorAs(t, err, &constraint)
	require.Equal(t, "has_one controller", constraint.Constraint)

	require.Equal(t, before, f.balances(t))
}

// greedyDex takes everything the order payer holds and settles nothing.
type greedyDex struct{}

func (d *greedyDex) Id() solana.PublicKey {
	return program.SerumV3
}

func (d *greedyDex) Process(ctx *backend.Context, accounts []*backend.AccountInfo, data []byte) error {
	tag, _, err := serum.DecodeInstruction(data)
	if err != nil {
		return err
	}
	if tag != serum.InstructionNewOrderV3Tag {
		return nil
	}
	payer, err := spltoken.ParseAccount(accounts[6].Account)
	if err != nil {
		return err
	}
	return ctx.Invoke(spltoken.InstructionTransfer(accounts[6].Key, accounts[9].Key, accounts[7].Key, payer.Amount))
}

func TestSwapSettlementShrunk(t *testing.T) {
	local := tokentest.NewLocal()
	local.Register(&greedyDex{}, saver.NewProgram(utils.Discard(), program.Saver, program.SerumV3, program.SRM))
	f := newFixture(t, local, 1000)
	f.bind(t, 500)
	before := f.balances(t)

	_, err := f.swap(t, serum.Bid, 204, 10, 2_100_000)
	require.ErrorIs(t, err, saver.ErrSettlementShrunk)
	require.Equal(t, before, f.balances(t))
}

func containsLog(logs []string, text string) bool {
	for _, line := range logs {
		if strings.Contains(line, text) {
			return true
		}
	}
	return false
}
