package client

import (
	"context"
	"fmt"
	"time"

	"github.com/egaotan/serum-saver/backend"
	"github.com/egaotan/serum-saver/saver"
	"github.com/egaotan/serum-saver/serum"
	"github.com/egaotan/serum-saver/spltoken"
	"github.com/egaotan/serum-saver/store"
	"github.com/egaotan/serum-saver/system"
	"github.com/gagliardetto/solana-go"
)

type Vault struct {
	Key       solana.PublicKey
	Authority solana.PublicKey
	Nonce     uint8
	SrmVault  solana.PublicKey
	Receipt   *backend.Receipt
}

// CreateVault creates a saver at the address of saverAccount, controlled by
// controller, together with its SRM vault.
func (c *Client) CreateVault(ctx context.Context, controller, saverAccount solana.PrivateKey) (*Vault, error) {
	key := saverAccount.PublicKey()
	authority, nonce, err := saver.FindAuthority(c.programID, key)
	if err != nil {
		return nil, fmt.Errorf("find authority: %w", err)
	}
	srmVault, err := spltoken.AssociatedAddress(authority, c.rebate)
	if err != nil {
		return nil, err
	}
	createVault, err := spltoken.InstructionCreateAssociated(controller.PublicKey(), authority, c.rebate, false)
	if err != nil {
		return nil, err
	}
	initialize, err := saver.InstructionInitializeSaver(c.programID, &saver.InitializeSaverAccounts{
		Saver:    key,
		Signer:   authority,
		SrmVault: srmVault,
		Payer:    controller.PublicKey(),
	}, nonce)
	if err != nil {
		return nil, err
	}
	receipt, err := c.executor.Execute(ctx, []solana.Instruction{createVault, initialize}, []solana.PrivateKey{controller, saverAccount})
	if err != nil {
		return nil, fmt.Errorf("create vault %s: %w", key, err)
	}
	c.log.Printf("vault %s created, signer: %s, nonce: %d, srm vault: %s", key, authority, nonce, srmVault)
	return &Vault{Key: key, Authority: authority, Nonce: nonce, SrmVault: srmVault, Receipt: receipt}, nil
}

type Binding struct {
	Key        solana.PublicKey
	Vault      solana.PublicKey
	Market     solana.PublicKey
	OpenOrders solana.PublicKey
	CoinVault  solana.PublicKey
	PcVault    solana.PublicKey
	Receipt    *backend.Receipt
}

// BindMarket binds a vault to a dex market: it creates the vault's token
// accounts for the pair if missing, a fresh open orders account and the
// binding.
func (c *Client) BindMarket(ctx context.Context, controller solana.PrivateKey, vaultKey, marketKey solana.PublicKey) (*Binding, error) {
	vault, err := c.Vault(ctx, vaultKey)
	if err != nil {
		return nil, err
	}
	market, err := c.Market(ctx, marketKey)
	if err != nil {
		return nil, err
	}
	payer := controller.PublicKey()
	instructions := make([]solana.Instruction, 0, 5)
	vaults := make([]solana.PublicKey, 0, 2)
	for _, mint := range []solana.PublicKey{market.BaseToken, market.QuoteToken} {
		address, err := spltoken.AssociatedAddress(vault.Signer, mint)
		if err != nil {
			return nil, err
		}
		create, err := spltoken.InstructionCreateAssociated(payer, vault.Signer, mint, true)
		if err != nil {
			return nil, err
		}
		instructions = append(instructions, create)
		vaults = append(vaults, address)
	}

	openOrders := solana.NewWallet().PrivateKey
	rent, err := c.executor.MinimumBalanceForRentExemption(ctx, uint64(serum.OpenOrdersLayoutSize))
	if err != nil {
		return nil, err
	}
	instructions = append(instructions, system.InstructionCreateAccount(payer, openOrders.PublicKey(), rent, uint64(serum.OpenOrdersLayoutSize), c.dex))

	binding := solana.NewWallet().PrivateKey
	initialize, err := saver.InstructionInitializeMarket(c.programID, &saver.InitializeMarketAccounts{
		SaverMarket:   binding.PublicKey(),
		Saver:         vaultKey,
		Signer:        vault.Signer,
		CoinMint:      market.BaseToken,
		CoinVault:     vaults[0],
		PcMint:        market.QuoteToken,
		PcVault:       vaults[1],
		DexProgram:    c.dex,
		DexMarket:     marketKey,
		DexOpenOrders: openOrders.PublicKey(),
		Payer:         payer,
	})
	if err != nil {
		return nil, err
	}
	instructions = append(instructions, initialize)
	receipt, err := c.executor.Execute(ctx, instructions, []solana.PrivateKey{controller, openOrders, binding})
	if err != nil {
		return nil, fmt.Errorf("bind %s to %s: %w", vaultKey, marketKey, err)
	}
	c.log.Printf("vault %s bound to market %s, binding: %s, open orders: %s", vaultKey, marketKey, binding.PublicKey(), openOrders.PublicKey())
	if c.store != nil {
		c.store.StoreMarket(&store.MarketRecord{
			Binding:     binding.PublicKey().String(),
			Saver:       vaultKey.String(),
			Market:      marketKey.String(),
			OpenOrders:  openOrders.PublicKey().String(),
			CoinVault:   vaults[0].String(),
			PcVault:     vaults[1].String(),
			CoinLotSize: market.BaseLotSize,
			CreateTime:  time.Now().UnixMilli(),
		})
	}
	return &Binding{
		Key:        binding.PublicKey(),
		Vault:      vaultKey,
		Market:     marketKey,
		OpenOrders: openOrders.PublicKey(),
		CoinVault:  vaults[0],
		PcVault:    vaults[1],
		Receipt:    receipt,
	}, nil
}
