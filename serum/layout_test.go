package serum

import (
	"math"
	"testing"

	"github.com/egaotan/serum-saver/program"
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestMarketLayout(t *testing.T) {
	market := &MarketLayout{
		Data1:        HeadPadding,
		AccountFlag:  AccountFlagInitialized | AccountFlagMarket,
		OwnAddress:   program.Serum_Srm_Usdc,
		BaseToken:    program.SRM,
		QuoteToken:   program.USDC,
		BaseLotSize:  1000,
		QuoteLotSize: 10,
		Data2:        TailPadding,
	}
	data := market.Pack()
	require.Len(t, data, MarketLayoutSize)
	unpacked, err := UnpackMarket(data)
	require.NoError(t, err)
	require.Equal(t, market, unpacked)

	market.AccountFlag = AccountFlagInitialized | AccountFlagOpenOrders
	_, err = UnpackMarket(market.Pack())
	require.Error(t, err)
	_, err = UnpackMarket(data[:100])
	require.Error(t, err)
}

func TestOpenOrdersSlots(t *testing.T) {
	openOrders := &OpenOrdersLayout{
		Data1:       HeadPadding,
		AccountFlag: AccountFlagInitialized | AccountFlagOpenOrders,
		Data2:       TailPadding,
	}
	for i := range openOrders.FreeSlotBits.Id {
		openOrders.FreeSlotBits.Id[i] = 0xff
	}
	require.True(t, openOrders.Initialized())
	require.Empty(t, openOrders.OpenSlots())

	first, err := openOrders.AddOrder(NewOrderId(100, 1), Bid, 7)
	require.NoError(t, err)
	second, err := openOrders.AddOrder(NewOrderId(120, 2), Ask, 8)
	require.NoError(t, err)
	require.Equal(t, uint8(0), first)
	require.Equal(t, uint8(1), second)
	require.Equal(t, []uint8{0, 1}, openOrders.OpenSlots())
	require.True(t, slotBit(&openOrders.IsBidBits, first))
	require.False(t, slotBit(&openOrders.IsBidBits, second))

	data := openOrders.Pack()
	require.Len(t, data, OpenOrdersLayoutSize)
	unpacked, err := UnpackOpenOrders(data)
	require.NoError(t, err)
	require.Equal(t, openOrders, unpacked)

	unpacked.RemoveOrder(first)
	require.Equal(t, []uint8{1}, unpacked.OpenSlots())
	slot, err := unpacked.AddOrder(NewOrderId(99, 3), Bid, 9)
	require.NoError(t, err)
	require.Equal(t, first, slot)
}

func TestOrderId(t *testing.T) {
	id := NewOrderId(204, 9)
	require.Equal(t, uint64(204), id.Price())
	require.Equal(t, uint64(9), id.SeqNum())
	require.True(t, NewOrderId(203, 100).Less(id))
	require.True(t, NewOrderId(204, 8).Less(id))
	require.False(t, id.Less(id))
	require.Equal(t, uint8(1), NewOrderId(1<<63, 0).bit(0))
	require.Equal(t, uint8(1), NewOrderId(0, 1).bit(127))
}

func leaf(price, seq, quantity uint64) *LeafNode {
	return &LeafNode{Key: NewOrderId(price, seq), Quantity: quantity}
}

func TestOrderBookRebuild(t *testing.T) {
	book := &OrderBookLayout{
		Data1:       HeadPadding,
		AccountFlag: AccountFlagInitialized | AccountFlagAsks,
		Data2:       TailPadding,
	}
	book.Slab.Rebuild([]*LeafNode{leaf(205, 1, 3), leaf(202, 2, 10), leaf(300, 3, 1), leaf(202, 4, 5)})
	require.Equal(t, uint32(4), book.Slab.Header.LeafCount)
	require.Equal(t, uint32(7), book.Slab.Header.BumpIndex)

	asks := book.Slab.Items(false, 0)
	require.Len(t, asks, 4)
	require.Equal(t, []uint64{202, 202, 205, 300}, []uint64{asks[0].Key.Price(), asks[1].Key.Price(), asks[2].Key.Price(), asks[3].Key.Price()})
	require.Equal(t, uint64(2), asks[0].Key.SeqNum())
	bids := book.Slab.Items(true, 2)
	require.Len(t, bids, 2)
	require.Equal(t, uint64(300), bids[0].Key.Price())
	require.Equal(t, uint64(205), bids[1].Key.Price())

	buf := make([]byte, OrderBookSize(8))
	require.NoError(t, book.Pack(buf))
	unpacked, err := UnpackOrderBook(buf)
	require.NoError(t, err)
	require.Equal(t, book.Slab.Header, unpacked.Slab.Header)
	require.Equal(t, asks, unpacked.Slab.Items(false, 0))
	require.Error(t, book.Pack(make([]byte, OrderBookSize(3))))

	book.Slab.Rebuild(nil)
	require.Empty(t, book.Slab.Items(false, 0))
}

func TestEventQueueRing(t *testing.T) {
	buf := make([]byte, EventQueueSize(3))
	queue := &EventQueueLayout{Header: QueueHeaderLayout{Data1: HeadPadding, AccountFlag: AccountFlagInitialized | AccountFlagEventQueue}, capacity: 3}
	queue.Pack(buf)

	loaded, err := UnpackEventQueue(buf)
	require.NoError(t, err)
	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, loaded.Push(&EventNodeLayout{EventFlag: EventFlagFill, NativeQuantityPaid: i}))
	}
	require.Error(t, loaded.Push(&EventNodeLayout{}))
	loaded.Pop(2)
	require.NoError(t, loaded.Push(&EventNodeLayout{EventFlag: EventFlagFill | EventFlagBid, NativeQuantityPaid: 4}))
	loaded.Pack(buf)

	loaded, err = UnpackEventQueue(buf)
	require.NoError(t, err)
	require.Equal(t, uint64(2), loaded.Header.Head)
	require.Equal(t, uint64(4), loaded.Header.SeqNum)
	require.Len(t, loaded.Nodes, 2)
	require.Equal(t, uint64(3), loaded.Nodes[0].NativeQuantityPaid)
	require.Equal(t, uint64(4), loaded.Nodes[1].NativeQuantityPaid)
	require.True(t, loaded.Nodes[1].IsBid())
	require.True(t, loaded.Nodes[1].IsFill())

	_, err = UnpackRequestQueue(buf)
	require.Error(t, err)
}

func TestModelConversions(t *testing.T) {
	model := &Model{
		Market:        &KeyedMarket{MarketLayout: MarketLayout{BaseLotSize: 100_000, QuoteLotSize: 100}},
		BaseDecimals:  6,
		QuoteDecimals: 6,
	}
	// 1.5 quote per base
	price, err := model.PriceUiToLots(decimal.RequireFromString("1.5"))
	require.NoError(t, err)
	require.Equal(t, uint64(1500), price)
	require.True(t, model.PriceLotsToUi(1500).Equal(decimal.RequireFromString("1.5")))
	size, err := model.BaseSizeUiToLots(decimal.RequireFromString("2.55"))
	require.NoError(t, err)
	require.Equal(t, uint64(25), size)
	require.True(t, model.BaseSizeLotsToUi(25).Equal(decimal.RequireFromString("2.5")))

	model.Market.BaseLotSize = 1000
	model.Market.QuoteLotSize = 10
	quote, err := model.MaxQuote(204, 10, BaseTakerFeeBps)
	require.NoError(t, err)
	require.Equal(t, uint64(20445), quote)
}

func TestModelConversionsOutOfRange(t *testing.T) {
	model := &Model{
		Market:        &KeyedMarket{MarketLayout: MarketLayout{BaseLotSize: 100_000, QuoteLotSize: 100}},
		BaseDecimals:  6,
		QuoteDecimals: 6,
	}
	// 2^64 + 1 lots keeps only its low bit when truncated to u64
	_, err := model.BaseSizeUiToLots(decimal.RequireFromString("1844674407370955161.7"))
	require.ErrorIs(t, err, ErrOutOfRange)
	size, err := model.BaseSizeUiToLots(decimal.RequireFromString("1844674407370955161.5"))
	require.NoError(t, err)
	require.Equal(t, uint64(18446744073709551615), size)

	_, err = model.PriceUiToLots(decimal.RequireFromString("18446744073709551.617"))
	require.ErrorIs(t, err, ErrOutOfRange)
	_, err = model.PriceUiToLots(decimal.RequireFromString("-1"))
	require.ErrorIs(t, err, ErrOutOfRange)

	_, err = model.MaxQuote(math.MaxUint64, 2, BaseTakerFeeBps)
	require.ErrorIs(t, err, ErrOutOfRange)
	_, err = model.MaxQuote(1<<32, 1<<32, 0)
	require.ErrorIs(t, err, ErrOutOfRange)
}

func TestTakerFee(t *testing.T) {
	require.Equal(t, uint64(22), TakerFeeBps(0))
	require.Equal(t, uint64(22), TakerFeeBps(99_999_999))
	require.Equal(t, uint64(20), TakerFeeBps(100_000_000))
	require.Equal(t, uint64(16), TakerFeeBps(10_000_000_000))
	require.Equal(t, uint64(12), TakerFeeBps(5_000_000_000_000))
	require.Equal(t, uint64(45), TakerFee(20200, 22))
	require.Equal(t, uint64(0), TakerFee(0, 22))
	require.Equal(t, uint64(22), TakerFee(10000, 22))
}

func TestVaultSigner(t *testing.T) {
	market := solana.NewWallet().PublicKey()
	nonce, signer, err := FindVaultSignerNonce(market, program.SerumV3)
	require.NoError(t, err)
	derived, err := VaultSigner(market, nonce, program.SerumV3)
	require.NoError(t, err)
	require.Equal(t, signer, derived)
	other, err := VaultSigner(solana.NewWallet().PublicKey(), nonce, program.SerumV3)
	if err == nil {
		require.NotEqual(t, signer, other)
	}
}
