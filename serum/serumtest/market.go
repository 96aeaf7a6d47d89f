package serumtest

import (
	"context"
	"testing"

	"github.com/egaotan/serum-saver/backend"
	"github.com/egaotan/serum-saver/program"
	"github.com/egaotan/serum-saver/serum"
	"github.com/egaotan/serum-saver/spltoken/tokentest"
	"github.com/egaotan/serum-saver/utils"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

var (
	BookNodes   = 256
	QueueEvents = 128
	QueueOrders = 16
)

// NewLocal returns a token host with the engine registered as the mainnet
// dex, discounting fees for SRM holders.
func NewLocal() *backend.Local {
	local := tokentest.NewLocal()
	local.Register(NewEngine(utils.Discard(), program.SerumV3, program.SRM))
	return local
}

type Market struct {
	Dex              solana.PublicKey
	Key              solana.PublicKey
	RequestQueue     solana.PublicKey
	EventQueue       solana.PublicKey
	Bids             solana.PublicKey
	Asks             solana.PublicKey
	BaseMint         solana.PublicKey
	QuoteMint        solana.PublicKey
	BaseVault        solana.PublicKey
	QuoteVault       solana.PublicKey
	VaultSigner      solana.PublicKey
	VaultSignerNonce uint64
	BaseLotSize      uint64
	QuoteLotSize     uint64
}

func setDexAccount(local *backend.Local, key solana.PublicKey, data []byte) {
	local.SetAccount(&backend.Account{
		PubKey:   key,
		Owner:    program.SerumV3,
		Lamports: backend.RentExemptMinimum(uint64(len(data))),
		Data:     data,
	})
}

// CreateMarket writes an empty, initialized market with its queues, books
// and vaults.
func CreateMarket(t testing.TB, local *backend.Local, baseMint, quoteMint solana.PublicKey, baseLotSize, quoteLotSize uint64) *Market {
	t.Helper()
	key := solana.NewWallet().PublicKey()
	nonce, signer, err := serum.FindVaultSignerNonce(key, program.SerumV3)
	require.NoError(t, err)
	m := &Market{
		Dex:              program.SerumV3,
		Key:              key,
		RequestQueue:     solana.NewWallet().PublicKey(),
		EventQueue:       solana.NewWallet().PublicKey(),
		Bids:             solana.NewWallet().PublicKey(),
		Asks:             solana.NewWallet().PublicKey(),
		BaseMint:         baseMint,
		QuoteMint:        quoteMint,
		BaseVault:        tokentest.CreateAccount(t, local, baseMint, signer, 0),
		QuoteVault:       tokentest.CreateAccount(t, local, quoteMint, signer, 0),
		VaultSigner:      signer,
		VaultSignerNonce: nonce,
		BaseLotSize:      baseLotSize,
		QuoteLotSize:     quoteLotSize,
	}
	layout := &serum.MarketLayout{
		Data1:        serum.HeadPadding,
		AccountFlag:  serum.AccountFlagInitialized | serum.AccountFlagMarket,
		OwnAddress:   key,
		BaseToken:    baseMint,
		QuoteToken:   quoteMint,
		BaseVault:    m.BaseVault,
		QuoteVault:   m.QuoteVault,
		RequestQueue: m.RequestQueue,
		EventQueue:   m.EventQueue,
		Bids:         m.Bids,
		Asks:         m.Asks,
		BaseLotSize:  baseLotSize,
		QuoteLotSize: quoteLotSize,
		FeeRateBps:   serum.BaseTakerFeeBps,
		Data2:        serum.TailPadding,
	}
	layout.VaultSignerNonce = nonce
	setDexAccount(local, key, layout.Pack())

	request := &serum.RequestQueueLayout{Header: serum.QueueHeaderLayout{
		Data1:       serum.HeadPadding,
		AccountFlag: serum.AccountFlagInitialized | serum.AccountFlagRequestQueue,
	}}
	buf := make([]byte, serum.QueueOverhead+QueueOrders*serum.RequestNodeLayoutSize)
	request.Pack(buf)
	copy(buf[len(buf)-7:], serum.TailPadding[:])
	setDexAccount(local, m.RequestQueue, buf)

	events := &serum.EventQueueLayout{Header: serum.QueueHeaderLayout{
		Data1:       serum.HeadPadding,
		AccountFlag: serum.AccountFlagInitialized | serum.AccountFlagEventQueue,
	}}
	buf = make([]byte, serum.EventQueueSize(QueueEvents))
	events.Pack(buf)
	copy(buf[len(buf)-7:], serum.TailPadding[:])
	setDexAccount(local, m.EventQueue, buf)

	for key, flag := range map[solana.PublicKey]uint64{m.Bids: serum.AccountFlagBids, m.Asks: serum.AccountFlagAsks} {
		book := &serum.OrderBookLayout{
			Data1:       serum.HeadPadding,
			AccountFlag: serum.AccountFlagInitialized | flag,
			Data2:       serum.TailPadding,
		}
		buf := make([]byte, serum.OrderBookSize(BookNodes))
		require.NoError(t, book.Pack(buf))
		setDexAccount(local, key, buf)
	}
	return m
}

// CreateOpenOrders writes a zeroed open orders account owned by the dex,
// ready for InitOpenOrders.
func CreateOpenOrders(t testing.TB, local *backend.Local) solana.PublicKey {
	t.Helper()
	key := solana.NewWallet().PublicKey()
	setDexAccount(local, key, make([]byte, serum.OpenOrdersLayoutSize))
	return key
}

func (m *Market) NewOrderAccounts(openOrders, payer, owner solana.PublicKey, srm *solana.PublicKey) *serum.NewOrderAccounts {
	return &serum.NewOrderAccounts{
		Market:       m.Key,
		OpenOrders:   openOrders,
		RequestQueue: m.RequestQueue,
		EventQueue:   m.EventQueue,
		Bids:         m.Bids,
		Asks:         m.Asks,
		OrderPayer:   payer,
		Owner:        owner,
		CoinVault:    m.BaseVault,
		PcVault:      m.QuoteVault,
		TokenProgram: program.Token,
		Rent:         program.SysRent,
		SrmAccount:   srm,
	}
}

func (m *Market) SettleFundsAccounts(openOrders, owner, coinWallet, pcWallet solana.PublicKey, referrer *solana.PublicKey) *serum.SettleFundsAccounts {
	return &serum.SettleFundsAccounts{
		Market:       m.Key,
		OpenOrders:   openOrders,
		Owner:        owner,
		CoinVault:    m.BaseVault,
		PcVault:      m.QuoteVault,
		CoinWallet:   coinWallet,
		PcWallet:     pcWallet,
		VaultSigner:  m.VaultSigner,
		TokenProgram: program.Token,
		Referrer:     referrer,
	}
}

func (m *Market) Layout(t testing.TB, local *backend.Local) *serum.MarketLayout {
	t.Helper()
	layout, err := serum.UnpackMarket(local.Account(m.Key).Data)
	require.NoError(t, err)
	return layout
}

func (m *Market) book(t testing.TB, local *backend.Local, key solana.PublicKey) *serum.OrderBookLayout {
	t.Helper()
	book, err := serum.UnpackOrderBook(local.Account(key).Data)
	require.NoError(t, err)
	return book
}

// AskOrders lists resting asks, best first.
func (m *Market) AskOrders(t testing.TB, local *backend.Local) []*serum.LeafNode {
	t.Helper()
	return m.book(t, local, m.Asks).Slab.Items(false, 0)
}

func (m *Market) BidOrders(t testing.TB, local *backend.Local) []*serum.LeafNode {
	t.Helper()
	return m.book(t, local, m.Bids).Slab.Items(true, 0)
}

func (m *Market) Events(t testing.TB, local *backend.Local) []*serum.EventNodeLayout {
	t.Helper()
	events, err := serum.UnpackEventQueue(local.Account(m.EventQueue).Data)
	require.NoError(t, err)
	return events.Nodes
}

// Crank consumes pending events for openOrders.
func (m *Market) Crank(t testing.TB, local *backend.Local, openOrders ...solana.PublicKey) {
	t.Helper()
	payer := tokentest.NewWallet(local, 1_000_000_000)
	ix := serum.InstructionConsumeEvents(m.Dex, openOrders, m.Key, m.EventQueue, m.BaseVault, m.QuoteVault, serum.MaxLimit)
	_, err := local.Execute(context.Background(), []solana.Instruction{ix}, []solana.PrivateKey{payer})
	require.NoError(t, err)
}

func OpenOrders(t testing.TB, local *backend.Local, key solana.PublicKey) *serum.OpenOrdersLayout {
	t.Helper()
	openOrders, err := serum.UnpackOpenOrders(local.Account(key).Data)
	require.NoError(t, err)
	return openOrders
}

// Trader is a wallet with funded base and quote accounts and its own open
// orders on one market.
type Trader struct {
	Wallet     solana.PrivateKey
	OpenOrders solana.PublicKey
	Base       solana.PublicKey
	Quote      solana.PublicKey
	market     *Market
	local      *backend.Local
}

func NewTrader(t testing.TB, local *backend.Local, m *Market, base, quote uint64) *Trader {
	t.Helper()
	wallet := tokentest.NewWallet(local, 10_000_000_000)
	trader := &Trader{
		Wallet:     wallet,
		OpenOrders: CreateOpenOrders(t, local),
		Base:       tokentest.CreateAccount(t, local, m.BaseMint, wallet.PublicKey(), base),
		Quote:      tokentest.CreateAccount(t, local, m.QuoteMint, wallet.PublicKey(), quote),
		market:     m,
		local:      local,
	}
	ix := serum.InstructionInitOpenOrders(m.Dex, trader.OpenOrders, wallet.PublicKey(), m.Key, nil)
	require.NoError(t, trader.execute(ix))
	return trader
}

func (tr *Trader) execute(instructions ...solana.Instruction) error {
	_, err := tr.local.Execute(context.Background(), instructions, []solana.PrivateKey{tr.Wallet})
	return err
}

// Place sends an order for size lots at price, budgeting the taker fee on
// bids so a crossing bid can fill in full.
func (tr *Trader) Place(side serum.Side, price, size uint64, orderType serum.OrderType) error {
	payer := tr.Base
	maxQuote := uint64(1)
	if side == serum.Bid {
		payer = tr.Quote
		notional := price * size * tr.market.QuoteLotSize
		maxQuote = notional + serum.TakerFee(notional, serum.BaseTakerFeeBps)
	}
	ix, err := serum.InstructionNewOrder(tr.market.Dex, tr.market.NewOrderAccounts(tr.OpenOrders, payer, tr.Wallet.PublicKey(), nil), &serum.NewOrderV3{
		Side:                        side,
		LimitPrice:                  price,
		MaxCoinQty:                  size,
		MaxNativePcQtyIncludingFees: maxQuote,
		SelfTradeBehavior:           serum.DecrementTake,
		OrderType:                   orderType,
		Limit:                       serum.MaxLimit,
	})
	if err != nil {
		return err
	}
	return tr.execute(ix)
}

func (tr *Trader) Settle() error {
	return tr.execute(serum.InstructionSettleFunds(tr.market.Dex, tr.market.SettleFundsAccounts(tr.OpenOrders, tr.Wallet.PublicKey(), tr.Base, tr.Quote, nil)))
}
