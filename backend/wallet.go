package backend

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

type Wallet struct {
	pubkey solana.PublicKey
	prikey solana.PrivateKey
}

func (r *Remote) ImportWallet(priKey string) (solana.PublicKey, error) {
	pri, err := solana.PrivateKeyFromBase58(priKey)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("import wallet: %w", err)
	}
	pub := pri.PublicKey()
	r.wallets = append(r.wallets, &Wallet{
		pubkey: pub,
		prikey: pri,
	})
	r.logger.Printf("import wallet: %s", pub)
	return pub, nil
}

// signers puts the explicit signers first, the first one pays, and fills
// in imported wallets behind them.
func (r *Remote) signers(explicit []solana.PrivateKey) []solana.PrivateKey {
	all := append([]solana.PrivateKey{}, explicit...)
	set := signerSet(explicit)
	for _, wallet := range r.wallets {
		if _, ok := set[wallet.pubkey]; !ok {
			all = append(all, wallet.prikey)
		}
	}
	return all
}
