package saver

import (
	"github.com/egaotan/serum-saver/spltoken"
	"github.com/gagliardetto/solana-go"
)

// vaultRule is what a token account the saver holds funds in must look
// like.
type vaultRule struct {
	name  string
	mint  solana.PublicKey
	owner solana.PublicKey
	empty bool
}

func (r *vaultRule) check(vault *spltoken.KeyedAccount) error {
	if vault.Mint != r.mint {
		return raw(r.name, "mint")
	}
	if vault.Owner != r.owner {
		return raw(r.name, "owner == signer")
	}
	if r.empty && vault.Amount != 0 {
		return raw(r.name, "amount == 0")
	}
	if vault.HasDelegate() {
		return raw(r.name, "delegate is none")
	}
	if vault.State != spltoken.AccountStateInitialized {
		return raw(r.name, "state == initialized")
	}
	if vault.HasCloseAuthority() {
		return raw(r.name, "close authority is none")
	}
	canonical, err := spltoken.AssociatedAddress(r.owner, vault.Mint)
	if err != nil || canonical != vault.Key {
		return raw(r.name, "associated token address")
	}
	return nil
}

// ValidateRebateVault checks the SRM vault a new saver is created with: an
// empty, canonical SRM account of the derived signer.
func ValidateRebateVault(vault *spltoken.KeyedAccount, rebateMint solana.PublicKey, authority solana.PublicKey) error {
	rule := &vaultRule{name: "srm_vault", mint: rebateMint, owner: authority, empty: true}
	return rule.check(vault)
}

// ValidateSettlementVaults checks the vaults of a new market binding. The
// coin vault must be empty, the pc vault may already hold proceeds.
func ValidateSettlementVaults(coinVault *spltoken.KeyedAccount, coinMint solana.PublicKey, pcVault *spltoken.KeyedAccount, pcMint solana.PublicKey, authority solana.PublicKey) error {
	coin := &vaultRule{name: "coin_vault", mint: coinMint, owner: authority, empty: true}
	if err := coin.check(coinVault); err != nil {
		return err
	}
	pc := &vaultRule{name: "pc_vault", mint: pcMint, owner: authority, empty: false}
	return pc.check(pcVault)
}

// SwapKeys are the supplied accounts a swap checks against the stored
// saver and binding.
type SwapKeys struct {
	Saver        solana.PublicKey
	Signer       solana.PublicKey
	SrmVault     solana.PublicKey
	OpenOrders   solana.PublicKey
	CoinVault    solana.PublicKey
	PcVault      solana.PublicKey
	WalletSigner solana.PublicKey
}

func ValidateSwap(saver *Saver, market *SaverMarket, keys *SwapKeys) error {
	if saver.Signer != keys.Signer {
		return hasOne("saver", "signer")
	}
	if saver.SrmVault != keys.SrmVault {
		return hasOne("saver", "srm_vault")
	}
	if market.Saver != keys.Saver {
		return hasOne("saver_market", "saver")
	}
	if market.OpenOrders != keys.OpenOrders {
		return hasOne("saver_market", "open_orders")
	}
	if market.CoinVault != keys.CoinVault {
		return hasOne("saver_market", "coin_vault")
	}
	if market.PcVault != keys.PcVault {
		return hasOne("saver_market", "pc_vault")
	}
	if saver.Controller != keys.WalletSigner {
		return hasOne("saver", "controller")
	}
	return nil
}
