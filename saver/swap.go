package saver

import (
	"fmt"
	"math/bits"

	"github.com/egaotan/serum-saver/backend"
	"github.com/egaotan/serum-saver/program"
	"github.com/egaotan/serum-saver/serum"
	"github.com/egaotan/serum-saver/spltoken"
)

type swapAccounts struct {
	saver           *backend.AccountInfo
	signer          *backend.AccountInfo
	srmVault        *backend.AccountInfo
	saverMarket     *backend.AccountInfo
	coinVault       *backend.AccountInfo
	pcVault         *backend.AccountInfo
	coinWallet      *backend.AccountInfo
	pcWallet        *backend.AccountInfo
	walletSigner    *backend.AccountInfo
	market          *backend.AccountInfo
	openOrders      *backend.AccountInfo
	requestQueue    *backend.AccountInfo
	eventQueue      *backend.AccountInfo
	bids            *backend.AccountInfo
	asks            *backend.AccountInfo
	dexCoinVault    *backend.AccountInfo
	dexPcVault      *backend.AccountInfo
	dexVaultSigner  *backend.AccountInfo
	dexProgram      *backend.AccountInfo
	splTokenProgram *backend.AccountInfo

	state   *KeyedSaver
	binding *KeyedSaverMarket
}

// swapAccounts checks every supplied account against the stored saver and
// binding. Nothing is written before it returns.
func (p *Program) swapAccounts(accounts []*backend.AccountInfo) (*swapAccounts, error) {
	if len(accounts) < 20 {
		return nil, ErrNotEnoughAccountKeys
	}
	a := &swapAccounts{
		saver:           accounts[0],
		signer:          accounts[1],
		srmVault:        accounts[2],
		saverMarket:     accounts[3],
		coinVault:       accounts[4],
		pcVault:         accounts[5],
		coinWallet:      accounts[6],
		pcWallet:        accounts[7],
		walletSigner:    accounts[8],
		market:          accounts[9],
		openOrders:      accounts[10],
		requestQueue:    accounts[11],
		eventQueue:      accounts[12],
		bids:            accounts[13],
		asks:            accounts[14],
		dexCoinVault:    accounts[15],
		dexPcVault:      accounts[16],
		dexVaultSigner:  accounts[17],
		dexProgram:      accounts[18],
		splTokenProgram: accounts[19],
	}
	if a.dexProgram.Key != p.dex {
		return nil, fmt.Errorf("dex_program: %w", ErrInvalidProgramID)
	}
	if a.splTokenProgram.Key != program.Token {
		return nil, fmt.Errorf("spl_token_program: %w", ErrInvalidProgramID)
	}
	if !a.walletSigner.IsSigner {
		return nil, signer("wallet_signer")
	}
	var err error
	if a.state, err = p.loadSaver(a.saver); err != nil {
		return nil, err
	}
	if a.binding, err = p.loadSaverMarket(a.saverMarket); err != nil {
		return nil, err
	}
	for name, info := range map[string]*backend.AccountInfo{"srm_vault": a.srmVault, "coin_vault": a.coinVault, "pc_vault": a.pcVault} {
		if _, err := tokenAccount(name, info); err != nil {
			return nil, err
		}
	}
	err = ValidateSwap(&a.state.Saver, &a.binding.SaverMarket, &SwapKeys{
		Saver:        a.saver.Key,
		Signer:       a.signer.Key,
		SrmVault:     a.srmVault.Key,
		OpenOrders:   a.openOrders.Key,
		CoinVault:    a.coinVault.Key,
		PcVault:      a.pcVault.Key,
		WalletSigner: a.walletSigner.Key,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func balance(name string, info *backend.AccountInfo) (uint64, error) {
	account, err := tokenAccount(name, info)
	if err != nil {
		return 0, err
	}
	return account.Amount, nil
}

// swap stages the caller's funds, trades them with one immediate-or-cancel
// order and sweeps whatever the vaults gained back to the caller.
func (p *Program) swap(ctx *backend.Context, a *swapAccounts, args *SwapArgs) error {
	authority, err := a.state.Authority(p.id, a.saver.Key)
	if err != nil {
		return err
	}
	side := args.OrderSide()

	coinBefore, err := balance("coin_vault", a.coinVault)
	if err != nil {
		return err
	}
	pcBefore, err := balance("pc_vault", a.pcVault)
	if err != nil {
		return err
	}

	from, to, amount := a.pcWallet, a.pcVault, args.MaxNativePcQtyIncludingFees
	if side == serum.Ask {
		hi, lo := bits.Mul64(args.MaxCoinQty, a.binding.CoinLotSize)
		if hi != 0 {
			return ErrCoinQtyOverflow
		}
		from, to, amount = a.coinWallet, a.coinVault, lo
	}
	if err := ctx.Invoke(spltoken.InstructionTransfer(from.Key, to.Key, a.walletSigner.Key, amount)); err != nil {
		return fmt.Errorf("stage: %w", err)
	}

	if args.LimitPrice == 0 || args.MaxCoinQty == 0 || args.MaxNativePcQtyIncludingFees == 0 {
		return ErrNonZeroU64
	}

	srmVault := a.srmVault.Key
	order, err := serum.InstructionNewOrder(p.dex, &serum.NewOrderAccounts{
		Market:       a.market.Key,
		OpenOrders:   a.openOrders.Key,
		RequestQueue: a.requestQueue.Key,
		EventQueue:   a.eventQueue.Key,
		Bids:         a.bids.Key,
		Asks:         a.asks.Key,
		OrderPayer:   to.Key,
		Owner:        authority.Key(),
		CoinVault:    a.dexCoinVault.Key,
		PcVault:      a.dexPcVault.Key,
		TokenProgram: a.splTokenProgram.Key,
		Rent:         a.splTokenProgram.Key,
		SrmAccount:   &srmVault,
	}, &serum.NewOrderV3{
		Side:                        side,
		LimitPrice:                  args.LimitPrice,
		MaxCoinQty:                  args.MaxCoinQty,
		MaxNativePcQtyIncludingFees: args.MaxNativePcQtyIncludingFees,
		SelfTradeBehavior:           serum.AbortTransaction,
		OrderType:                   serum.ImmediateOrCancel,
		ClientOrderId:               0,
		Limit:                       serum.MaxLimit,
	})
	if err != nil {
		return err
	}
	if err := ctx.Invoke(order, authority.Seeds()); err != nil {
		return fmt.Errorf("new order: %w", err)
	}

	// referrer rebates land back in the market's quote vault
	referrer := a.dexPcVault.Key
	settle := serum.InstructionSettleFunds(p.dex, &serum.SettleFundsAccounts{
		Market:       a.market.Key,
		OpenOrders:   a.openOrders.Key,
		Owner:        authority.Key(),
		CoinVault:    a.dexCoinVault.Key,
		PcVault:      a.dexPcVault.Key,
		CoinWallet:   a.coinVault.Key,
		PcWallet:     a.pcVault.Key,
		VaultSigner:  a.dexVaultSigner.Key,
		TokenProgram: a.splTokenProgram.Key,
		Referrer:     &referrer,
	})
	if err := ctx.Invoke(settle, authority.Seeds()); err != nil {
		return fmt.Errorf("settle funds: %w", err)
	}

	coinAfter, err := balance("coin_vault", a.coinVault)
	if err != nil {
		return err
	}
	pcAfter, err := balance("pc_vault", a.pcVault)
	if err != nil {
		return err
	}
	if coinAfter < coinBefore || pcAfter < pcBefore {
		return ErrSettlementShrunk
	}
	coinDelta, pcDelta := coinAfter-coinBefore, pcAfter-pcBefore
	if coinDelta > 0 {
		err := ctx.Invoke(spltoken.InstructionTransfer(a.coinVault.Key, a.coinWallet.Key, authority.Key(), coinDelta), authority.Seeds())
		if err != nil {
			return fmt.Errorf("sweep coin: %w", err)
		}
	}
	if pcDelta > 0 {
		err := ctx.Invoke(spltoken.InstructionTransfer(a.pcVault.Key, a.pcWallet.Key, authority.Key(), pcDelta), authority.Seeds())
		if err != nil {
			return fmt.Errorf("sweep pc: %w", err)
		}
	}
	ctx.Log("swap %s staged %d, coin +%d, pc +%d", side, amount, coinDelta, pcDelta)
	p.log.Printf("swap on %s: %s price %d qty %d, coin +%d pc +%d", a.market.Key, side, args.LimitPrice, args.MaxCoinQty, coinDelta, pcDelta)
	return nil
}
