package app

import (
	"time"

	"github.com/egaotan/serum-saver/env"
	"github.com/egaotan/serum-saver/store"
)

type VaultInfo struct {
	Key         string `json:"key"`
	Controller  string `json:"controller"`
	Signer      string `json:"signer"`
	Nonce       uint8  `json:"nonce"`
	SrmVault    string `json:"srm_vault"`
	Srm         string `json:"srm"`
	TakerFeeBps uint64 `json:"taker_fee_bps"`
}

type Token struct {
	Key    string `json:"key"`
	Symbol string `json:"symbol"`
}

type MarketInfo struct {
	Name        string `json:"name"`
	Market      string `json:"market"`
	Binding     string `json:"binding,omitempty"`
	Base        *Token `json:"base"`
	Quote       *Token `json:"quote"`
	CoinLotSize uint64 `json:"coin_lot_size,omitempty"`
	CoinVault   string `json:"coin_vault,omitempty"`
	PcVault     string `json:"pc_vault,omitempty"`
	BestBid     string `json:"best_bid,omitempty"`
	BestAsk     string `json:"best_ask,omitempty"`
}

// SwapRequest is a swap in ui units. MaxQuote defaults to the full cost
// plus taker fee for buys and is unbounded for sells.
type SwapRequest struct {
	Market   string `json:"market" binding:"required"`
	Side     string `json:"side" binding:"required,oneof=buy sell"`
	Price    string `json:"price" binding:"required"`
	Size     string `json:"size" binding:"required"`
	MaxQuote string `json:"max_quote"`
}

type SwapInfo struct {
	Market       string `json:"market"`
	Binding      string `json:"binding"`
	Side         string `json:"side"`
	LimitPrice   uint64 `json:"limit_price"`
	MaxCoinQty   uint64 `json:"max_coin_qty"`
	MaxQuote     uint64 `json:"max_quote"`
	Base         string `json:"base"`
	Quote        string `json:"quote"`
	Slot         uint64 `json:"slot"`
	Signature    string `json:"signature"`
	// set when base and quote are unknown
	BalanceError string `json:"balance_error,omitempty"`
}

type SwapRecord struct {
	Id           uint64 `json:"id"`
	Time         string `json:"time"`
	Binding      string `json:"binding"`
	Market       string `json:"market"`
	Side         string `json:"side"`
	LimitPrice   uint64 `json:"limit_price"`
	MaxCoinQty   uint64 `json:"max_coin_qty"`
	MaxNativePc  uint64 `json:"max_native_pc"`
	CoinDelta    int64  `json:"coin_delta"`
	PcDelta      int64  `json:"pc_delta"`
	Slot         uint64 `json:"slot"`
	Signature    string `json:"signature,omitempty"`
	Error        string `json:"error,omitempty"`
	BalanceError string `json:"balance_error,omitempty"`
}

func buildToken(token *env.Token) *Token {
	return &Token{
		Key:    token.Mint.String(),
		Symbol: token.Symbol,
	}
}

func buildSwapRecord(record *store.SwapRecord) *SwapRecord {
	return &SwapRecord{
		Id:           record.Id,
		Time:         time.UnixMilli(record.CreateTime).Format("2006-01-02 15:04:05.000"),
		Binding:      record.Binding,
		Market:       record.Market,
		Side:         record.Side,
		LimitPrice:   record.LimitPrice,
		MaxCoinQty:   record.MaxCoinQty,
		MaxNativePc:  record.MaxNativePc,
		CoinDelta:    record.CoinDelta,
		PcDelta:      record.PcDelta,
		Slot:         record.Slot,
		Signature:    record.Signature,
		Error:        record.Error,
		BalanceError: record.BalanceError,
	}
}

func buildSwapRecords(records []*store.SwapRecord) []*SwapRecord {
	newRecords := make([]*SwapRecord, 0, len(records))
	for _, record := range records {
		newRecords = append(newRecords, buildSwapRecord(record))
	}
	return newRecords
}
