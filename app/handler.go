package app

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"net/http"
	"strconv"

	"github.com/egaotan/serum-saver/config"
	"github.com/egaotan/serum-saver/saver"
	"github.com/egaotan/serum-saver/serum"
	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const (
	DefaultSwapsLimit = 20
)

func fail(c *gin.Context, code int, err error) {
	c.JSON(code, gin.H{"error": err.Error()})
}

func (a *App) takerFeeBps(ctx context.Context, vault *saver.KeyedSaver) (uint64, uint64, error) {
	balances, err := a.client.Balances(ctx, vault.SrmVault)
	if err != nil {
		return 0, 0, err
	}
	return balances[0], serum.TakerFeeBps(balances[0]), nil
}

func (a *App) getVault(c *gin.Context) {
	ctx := c.Request.Context()
	vault, err := a.client.Vault(ctx, a.config.Vault)
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	srm, feeBps, err := a.takerFeeBps(ctx, vault)
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, &VaultInfo{
		Key:         vault.Key.String(),
		Controller:  vault.Controller.String(),
		Signer:      vault.Signer.String(),
		Nonce:       vault.Nonce,
		SrmVault:    vault.SrmVault.String(),
		Srm:         a.env.TokenOrUnknown(a.config.RebateMint).AmountUi(srm).String(),
		TakerFeeBps: feeBps,
	})
}

// model loads a market priced with the decimals of its tokens.
func (a *App) model(ctx context.Context, key solana.PublicKey) (*serum.Model, error) {
	model, err := a.client.Model(ctx, key, 0, 0)
	if err != nil {
		return nil, err
	}
	model.BaseDecimals = a.env.TokenOrUnknown(model.Market.BaseToken).Decimal
	model.QuoteDecimals = a.env.TokenOrUnknown(model.Market.QuoteToken).Decimal
	return model, nil
}

func (a *App) marketInfo(ctx context.Context, market *config.Market) (*MarketInfo, error) {
	model, err := a.model(ctx, market.Market)
	if err != nil {
		return nil, err
	}
	info := &MarketInfo{
		Name:   market.Name,
		Market: market.Market.String(),
		Base:   buildToken(a.env.TokenOrUnknown(model.Market.BaseToken)),
		Quote:  buildToken(a.env.TokenOrUnknown(model.Market.QuoteToken)),
	}
	if bids := model.Bids(1); len(bids) > 0 {
		info.BestBid = bids[0].Price.String()
	}
	if asks := model.Asks(1); len(asks) > 0 {
		info.BestAsk = asks[0].Price.String()
	}
	if market.Binding.IsZero() {
		return info, nil
	}
	binding, err := a.client.Binding(ctx, market.Binding)
	if err != nil {
		return nil, err
	}
	info.Binding = market.Binding.String()
	info.CoinLotSize = binding.CoinLotSize
	balances, err := a.client.Balances(ctx, binding.CoinVault, binding.PcVault)
	if err != nil {
		return nil, err
	}
	info.CoinVault = a.env.TokenOrUnknown(model.Market.BaseToken).AmountUi(balances[0]).String()
	info.PcVault = a.env.TokenOrUnknown(model.Market.QuoteToken).AmountUi(balances[1]).String()
	return info, nil
}

func (a *App) getMarkets(c *gin.Context) {
	ctx := c.Request.Context()
	markets := make([]*MarketInfo, 0)
	for _, market := range a.env.Markets() {
		info, err := a.marketInfo(ctx, market)
		if err != nil {
			fail(c, http.StatusInternalServerError, fmt.Errorf("market %s: %w", market.Name, err))
			return
		}
		markets = append(markets, info)
	}
	c.JSON(http.StatusOK, markets)
}

// swapArgs converts a ui request into native swap bounds.
func (a *App) swapArgs(ctx context.Context, model *serum.Model, request *SwapRequest) (*saver.SwapArgs, error) {
	price, err := decimal.NewFromString(request.Price)
	if err != nil {
		return nil, fmt.Errorf("price: %w", err)
	}
	size, err := decimal.NewFromString(request.Size)
	if err != nil {
		return nil, fmt.Errorf("size: %w", err)
	}
	if !price.IsPositive() || !size.IsPositive() {
		return nil, fmt.Errorf("price and size must be positive")
	}
	limitPrice, err := model.PriceUiToLots(price)
	if err != nil {
		return nil, err
	}
	maxCoinQty, err := model.BaseSizeUiToLots(size)
	if err != nil {
		return nil, err
	}
	args := &saver.SwapArgs{
		LimitPrice: limitPrice,
		MaxCoinQty: maxCoinQty,
	}
	if args.LimitPrice == 0 || args.MaxCoinQty == 0 {
		return nil, fmt.Errorf("price %s or size %s is below one lot", request.Price, request.Size)
	}
	if request.MaxQuote != "" {
		maxQuote, err := decimal.NewFromString(request.MaxQuote)
		if err != nil {
			return nil, fmt.Errorf("max quote: %w", err)
		}
		native := maxQuote.Shift(model.QuoteDecimals).Truncate(0).BigInt()
		if native.Sign() <= 0 || !native.IsUint64() {
			return nil, fmt.Errorf("max quote is out of range: %s", request.MaxQuote)
		}
		args.MaxNativePcQtyIncludingFees = native.Uint64()
	}
	if request.Side == "sell" {
		args.Side = uint8(serum.Ask)
		if args.MaxNativePcQtyIncludingFees == 0 {
			args.MaxNativePcQtyIncludingFees = math.MaxUint64
		}
		return args, nil
	}
	args.Side = uint8(serum.Bid)
	if args.MaxNativePcQtyIncludingFees == 0 {
		vault, err := a.client.Vault(ctx, a.config.Vault)
		if err != nil {
			return nil, err
		}
		_, feeBps, err := a.takerFeeBps(ctx, vault)
		if err != nil {
			return nil, err
		}
		maxQuote, err := model.MaxQuote(args.LimitPrice, args.MaxCoinQty, feeBps)
		if err != nil {
			return nil, err
		}
		args.MaxNativePcQtyIncludingFees = maxQuote
	}
	return args, nil
}

func (a *App) postSwap(c *gin.Context) {
	ctx := c.Request.Context()
	request := &SwapRequest{}
	if err := c.ShouldBindJSON(request); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	key, err := solana.PublicKeyFromBase58(request.Market)
	if err != nil {
		fail(c, http.StatusBadRequest, fmt.Errorf("market: %w", err))
		return
	}
	market := a.env.Market(key)
	if market == nil || market.Binding.IsZero() {
		fail(c, http.StatusNotFound, fmt.Errorf("market %s is not bound", key))
		return
	}
	model, err := a.model(ctx, key)
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	args, err := a.swapArgs(ctx, model, request)
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	result, err := a.client.Swap(ctx, a.controller, market.Binding, args)
	if err != nil {
		a.log.Printf("swap on %s failed: %s", market.Name, err)
		a.notify.SwapFailed(ctx, key, request, err)
		fail(c, http.StatusInternalServerError, err)
		return
	}
	base := a.env.TokenOrUnknown(model.Market.BaseToken)
	quote := a.env.TokenOrUnknown(model.Market.QuoteToken)
	info := &SwapInfo{
		Market:     key.String(),
		Binding:    market.Binding.String(),
		Side:       request.Side,
		LimitPrice: args.LimitPrice,
		MaxCoinQty: args.MaxCoinQty,
		MaxQuote:   args.MaxNativePcQtyIncludingFees,
		Base:       signedUi(result.CoinDelta(), base.Decimal).String(),
		Quote:      signedUi(result.PcDelta(), quote.Decimal).String(),
		Slot:       result.Receipt.Slot,
		Signature:  result.Receipt.Signature.String(),
	}
	if result.BalanceErr != nil {
		info.BalanceError = result.BalanceErr.Error()
	}
	c.JSON(http.StatusOK, info)
}

func signedUi(amount int64, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(big.NewInt(amount), -decimals)
}

func (a *App) getSwaps(c *gin.Context) {
	if a.store == nil {
		fail(c, http.StatusServiceUnavailable, fmt.Errorf("swap journal is not configured"))
		return
	}
	if idStr, ok := c.GetQuery("id"); ok {
		id, err := strconv.ParseUint(idStr, 10, 64)
		if err != nil {
			fail(c, http.StatusBadRequest, err)
			return
		}
		records, err := a.store.GetSwap(id)
		if err != nil {
			fail(c, http.StatusInternalServerError, err)
			return
		}
		c.JSON(http.StatusOK, buildSwapRecords(records))
		return
	}
	binding, ok := c.GetQuery("binding")
	if !ok {
		fail(c, http.StatusBadRequest, fmt.Errorf("parameter id or binding is required"))
		return
	}
	limit := DefaultSwapsLimit
	if limitStr, ok := c.GetQuery("limit"); ok {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n <= 0 {
			fail(c, http.StatusBadRequest, fmt.Errorf("limit is invalid: %s", limitStr))
			return
		}
		limit = n
	}
	records, err := a.store.GetSwaps(binding, limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, buildSwapRecords(records))
}
