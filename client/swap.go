package client

import (
	"context"
	"fmt"
	"time"

	"github.com/egaotan/serum-saver/backend"
	"github.com/egaotan/serum-saver/program"
	"github.com/egaotan/serum-saver/saver"
	"github.com/egaotan/serum-saver/serum"
	"github.com/egaotan/serum-saver/spltoken"
	"github.com/egaotan/serum-saver/store"
	"github.com/gagliardetto/solana-go"
)

// SwapResult is what the controller's wallets looked like around one swap.
type SwapResult struct {
	Binding    solana.PublicKey
	Market     solana.PublicKey
	Args       saver.SwapArgs
	CoinWallet solana.PublicKey
	PcWallet   solana.PublicKey
	CoinBefore uint64
	CoinAfter  uint64
	PcBefore   uint64
	PcAfter    uint64
	Receipt    *backend.Receipt
	// BalanceErr is set when the swap committed but the wallets could not
	// be read back. The deltas are then zero.
	BalanceErr error
}

func (r *SwapResult) Side() serum.Side {
	return r.Args.OrderSide()
}

func (r *SwapResult) CoinDelta() int64 {
	return int64(r.CoinAfter) - int64(r.CoinBefore)
}

func (r *SwapResult) PcDelta() int64 {
	return int64(r.PcAfter) - int64(r.PcBefore)
}

type swapPlan struct {
	accounts *saver.SwapAccounts
	prepare  []solana.Instruction
	market   solana.PublicKey
}

func (c *Client) planSwap(ctx context.Context, controller solana.PublicKey, bindingKey solana.PublicKey) (*swapPlan, error) {
	binding, err := c.Binding(ctx, bindingKey)
	if err != nil {
		return nil, err
	}
	vault, err := c.Vault(ctx, binding.Saver)
	if err != nil {
		return nil, err
	}
	accounts, err := c.accounts(ctx, binding.OpenOrders)
	if err != nil {
		return nil, err
	}
	openOrders, err := serum.UnpackOpenOrders(accounts[0].Data)
	if err != nil {
		return nil, fmt.Errorf("open orders(%s): %w", binding.OpenOrders, err)
	}
	market, err := c.Market(ctx, openOrders.Market)
	if err != nil {
		return nil, err
	}
	vaultSigner, err := serum.VaultSigner(market.Key, market.VaultSignerNonce, c.dex)
	if err != nil {
		return nil, fmt.Errorf("vault signer of %s: %w", market.Key, err)
	}

	plan := &swapPlan{market: market.Key}
	wallets := make([]solana.PublicKey, 0, 2)
	for _, mint := range []solana.PublicKey{market.BaseToken, market.QuoteToken} {
		wallet, err := spltoken.AssociatedAddress(controller, mint)
		if err != nil {
			return nil, err
		}
		create, err := spltoken.InstructionCreateAssociated(controller, controller, mint, true)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, wallet)
		plan.prepare = append(plan.prepare, create)
	}
	plan.accounts = &saver.SwapAccounts{
		Saver:           binding.Saver,
		Signer:          vault.Signer,
		SrmVault:        vault.SrmVault,
		SaverMarket:     bindingKey,
		CoinVault:       binding.CoinVault,
		PcVault:         binding.PcVault,
		CoinWallet:      wallets[0],
		PcWallet:        wallets[1],
		WalletSigner:    controller,
		Market:          market.Key,
		OpenOrders:      binding.OpenOrders,
		RequestQueue:    market.RequestQueue,
		EventQueue:      market.EventQueue,
		Bids:            market.Bids,
		Asks:            market.Asks,
		DexCoinVault:    market.BaseVault,
		DexPcVault:      market.QuoteVault,
		DexVaultSigner:  vaultSigner,
		DexProgram:      c.dex,
		SplTokenProgram: program.Token,
	}
	return plan, nil
}

// Swap runs one swap through a binding and reports what the controller's
// wallets gained. The controller's token accounts for the pair are created
// in the same transaction when missing.
func (c *Client) Swap(ctx context.Context, controller solana.PrivateKey, bindingKey solana.PublicKey, args *saver.SwapArgs) (*SwapResult, error) {
	plan, err := c.planSwap(ctx, controller.PublicKey(), bindingKey)
	if err != nil {
		return nil, err
	}
	result := &SwapResult{
		Binding:    bindingKey,
		Market:     plan.market,
		Args:       *args,
		CoinWallet: plan.accounts.CoinWallet,
		PcWallet:   plan.accounts.PcWallet,
	}
	before, err := c.Balances(ctx, result.CoinWallet, result.PcWallet)
	if err != nil {
		return nil, err
	}
	result.CoinBefore, result.PcBefore = before[0], before[1]

	swap, err := saver.InstructionSwap(c.programID, plan.accounts, args)
	if err != nil {
		return nil, err
	}
	instructions := append(plan.prepare, swap)
	result.Receipt, err = c.executor.Execute(ctx, instructions, []solana.PrivateKey{controller})
	if err != nil {
		result.CoinAfter, result.PcAfter = result.CoinBefore, result.PcBefore
		c.journal(result, err)
		return result, fmt.Errorf("swap on %s: %w", bindingKey, err)
	}

	after, err := c.Balances(ctx, result.CoinWallet, result.PcWallet)
	if err != nil {
		result.CoinAfter, result.PcAfter = result.CoinBefore, result.PcBefore
		result.BalanceErr = fmt.Errorf("read balances after swap %s: %w", result.Receipt.Signature, err)
		c.log.Printf("swap on %s committed in slot %d: %s", plan.market, result.Receipt.Slot, result.BalanceErr)
		c.journal(result, nil)
		return result, nil
	}
	result.CoinAfter, result.PcAfter = after[0], after[1]
	c.log.Printf("swap on %s: %s price %d qty %d max pc %d, coin %+d, pc %+d", plan.market, result.Side(),
		args.LimitPrice, args.MaxCoinQty, args.MaxNativePcQtyIncludingFees, result.CoinDelta(), result.PcDelta())
	c.journal(result, nil)
	return result, nil
}

func (c *Client) journal(result *SwapResult, err error) {
	if c.store == nil {
		return
	}
	record := &store.SwapRecord{
		Binding:     result.Binding.String(),
		Market:      result.Market.String(),
		Side:        result.Side().String(),
		LimitPrice:  result.Args.LimitPrice,
		MaxCoinQty:  result.Args.MaxCoinQty,
		MaxNativePc: result.Args.MaxNativePcQtyIncludingFees,
		CoinDelta:   result.CoinDelta(),
		PcDelta:     result.PcDelta(),
		CreateTime:  time.Now().UnixMilli(),
	}
	if result.Receipt != nil {
		record.Slot = result.Receipt.Slot
		record.Signature = result.Receipt.Signature.String()
	}
	if err != nil {
		record.Error = truncate(err.Error(), 512)
	}
	if result.BalanceErr != nil {
		record.BalanceError = truncate(result.BalanceErr.Error(), 512)
	}
	c.store.StoreSwap(record)
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
