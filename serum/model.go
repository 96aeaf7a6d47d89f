package serum

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

type Tick struct {
	Quantity decimal.Decimal
	Price    decimal.Decimal
}

// Model is a market with its two books, priced in ui units.
type Model struct {
	Market        *KeyedMarket
	Bid           *KeyedOrderBook
	Ask           *KeyedOrderBook
	BaseDecimals  int32
	QuoteDecimals int32
}

func (m *Model) Id() solana.PublicKey {
	return m.Market.Key
}

func (m *Model) TokenPair() []solana.PublicKey {
	return []solana.PublicKey{m.Market.BaseToken, m.Market.QuoteToken}
}

func (m *Model) Bids(size int) []*Tick {
	return m.ticks(m.Bid.Slab.Items(true, size))
}

func (m *Model) Asks(size int) []*Tick {
	return m.ticks(m.Ask.Slab.Items(false, size))
}

func (m *Model) ticks(leaves []*LeafNode) []*Tick {
	ticks := make([]*Tick, 0, len(leaves))
	for _, leaf := range leaves {
		ticks = append(ticks, &Tick{
			Quantity: m.BaseSizeLotsToUi(leaf.Quantity),
			Price:    m.PriceLotsToUi(leaf.Key.Price()),
		})
	}
	return ticks
}

// PriceLotsToNumber converts a lot price to native quote per native base.
func (m *Model) PriceLotsToNumber(price uint64) decimal.Decimal {
	dPrice := decimal.NewFromInt(int64(price))
	dPrice = dPrice.Mul(decimal.NewFromInt(int64(m.Market.QuoteLotSize)))
	dPrice = dPrice.Div(decimal.NewFromInt(int64(m.Market.BaseLotSize)))
	return dPrice
}

func (m *Model) PriceNumberToLots(price decimal.Decimal) (uint64, error) {
	dPrice := price.Mul(decimal.NewFromInt(int64(m.Market.BaseLotSize)))
	dPrice = dPrice.Div(decimal.NewFromInt(int64(m.Market.QuoteLotSize)))
	return toUint64(dPrice)
}

func (m *Model) PriceLotsToUi(price uint64) decimal.Decimal {
	return priceNumberToUi(m.PriceLotsToNumber(price), m.BaseDecimals, m.QuoteDecimals)
}

func (m *Model) PriceUiToLots(price decimal.Decimal) (uint64, error) {
	lots, err := m.PriceNumberToLots(priceUiToNumber(price, m.BaseDecimals, m.QuoteDecimals))
	if err != nil {
		return 0, fmt.Errorf("price %s: %w", price, err)
	}
	return lots, nil
}

func (m *Model) BaseSizeLotsToUi(quantity uint64) decimal.Decimal {
	dQuantity := decimal.NewFromInt(int64(quantity))
	dQuantity = dQuantity.Mul(decimal.NewFromInt(int64(m.Market.BaseLotSize)))
	return dQuantity.Shift(-m.BaseDecimals)
}

// BaseSizeUiToLots rounds down to whole lots.
func (m *Model) BaseSizeUiToLots(quantity decimal.Decimal) (uint64, error) {
	dQuantity := quantity.Shift(m.BaseDecimals)
	dQuantity = dQuantity.Div(decimal.NewFromInt(int64(m.Market.BaseLotSize)))
	lots, err := toUint64(dQuantity)
	if err != nil {
		return 0, fmt.Errorf("size %s: %w", quantity, err)
	}
	return lots, nil
}

// MaxQuote is the native quote a bid of size lots at price lots can spend,
// taker fee at feeBps included.
func (m *Model) MaxQuote(price, size uint64, feeBps uint64) (uint64, error) {
	cost := native(price).Mul(native(size)).Mul(native(m.Market.QuoteLotSize))
	fee := cost.Mul(native(feeBps)).Div(decimal.NewFromInt(10000)).Ceil()
	quote, err := toUint64(cost.Add(fee))
	if err != nil {
		return 0, fmt.Errorf("max quote of %d lots at %d: %w", size, price, err)
	}
	return quote, nil
}

// toUint64 truncates toward zero and refuses values outside u64.
func toUint64(value decimal.Decimal) (uint64, error) {
	integer := value.Truncate(0).BigInt()
	if integer.Sign() < 0 || !integer.IsUint64() {
		return 0, ErrOutOfRange
	}
	return integer.Uint64(), nil
}

func priceNumberToUi(price decimal.Decimal, baseDecimals, quoteDecimals int32) decimal.Decimal {
	return price.Shift(baseDecimals - quoteDecimals)
}

func priceUiToNumber(price decimal.Decimal, baseDecimals, quoteDecimals int32) decimal.Decimal {
	return price.Shift(quoteDecimals - baseDecimals)
}

// taker fee tiers keyed by native srm held, 6 decimals
var feeTiers = []struct {
	srm uint64
	bps uint64
}{
	{1_000_000_000_000, 12},
	{100_000_000_000, 14},
	{10_000_000_000, 16},
	{1_000_000_000, 18},
	{100_000_000, 20},
}

const (
	BaseTakerFeeBps = uint64(22)
)

// TakerFeeBps is the taker fee paid by an owner holding srm native SRM in
// its discount account.
func TakerFeeBps(srm uint64) uint64 {
	for _, tier := range feeTiers {
		if srm >= tier.srm {
			return tier.bps
		}
	}
	return BaseTakerFeeBps
}

// TakerFee rounds up, the exchange never undercharges.
func TakerFee(amount uint64, bps uint64) uint64 {
	fee := native(amount).Mul(native(bps)).Div(decimal.NewFromInt(10000)).Ceil()
	return fee.BigInt().Uint64()
}

func native(amount uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), 0)
}

// VaultSigner derives the authority over a market's vaults.
func VaultSigner(market solana.PublicKey, nonce uint64, dex solana.PublicKey) (solana.PublicKey, error) {
	return solana.CreateProgramAddress(VaultSignerSeeds(market, nonce), dex)
}

func VaultSignerSeeds(market solana.PublicKey, nonce uint64) [][]byte {
	seed := make([]byte, 8)
	binary.LittleEndian.PutUint64(seed, nonce)
	return [][]byte{market.Bytes(), seed}
}

// FindVaultSignerNonce returns the first nonce with a valid vault signer.
func FindVaultSignerNonce(market solana.PublicKey, dex solana.PublicKey) (uint64, solana.PublicKey, error) {
	for nonce := uint64(0); nonce < 256; nonce++ {
		signer, err := VaultSigner(market, nonce, dex)
		if err == nil {
			return nonce, signer, nil
		}
	}
	return 0, solana.PublicKey{}, fmt.Errorf("no vault signer nonce for market %s", market)
}
