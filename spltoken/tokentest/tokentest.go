// Package tokentest seeds token state into a backend.Local for tests.
package tokentest

import (
	"testing"

	"github.com/egaotan/serum-saver/backend"
	"github.com/egaotan/serum-saver/program"
	"github.com/egaotan/serum-saver/spltoken"
	"github.com/egaotan/serum-saver/system"
	"github.com/egaotan/serum-saver/utils"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

// NewLocal returns a host running the system, token and associated token programs.
func NewLocal() *backend.Local {
	local := backend.NewLocal(utils.Discard())
	logger := utils.Discard()
	local.Register(system.NewProgram(logger), spltoken.NewProgram(logger), spltoken.NewAssociatedProgram(logger))
	return local
}

func NewWallet(local *backend.Local, lamports uint64) solana.PrivateKey {
	wallet := solana.NewWallet().PrivateKey
	local.Airdrop(wallet.PublicKey(), lamports)
	return wallet
}

func CreateMint(t testing.TB, local *backend.Local, authority solana.PublicKey, decimals uint8) solana.PublicKey {
	t.Helper()
	key := solana.NewWallet().PublicKey()
	CreateMintAt(t, local, key, authority, decimals)
	return key
}

func CreateMintAt(t testing.TB, local *backend.Local, key solana.PublicKey, authority solana.PublicKey, decimals uint8) {
	t.Helper()
	mint := &spltoken.MintLayout{
		MintAuthorityOption: spltoken.OptionSome,
		MintAuthority:       authority,
		Decimals:            decimals,
		IsInitialized:       1,
	}
	local.SetAccount(&backend.Account{
		PubKey:   key,
		Owner:    program.Token,
		Lamports: backend.RentExemptMinimum(uint64(spltoken.MintLayoutSize)),
		Data:     mint.Pack(),
	})
}

// CreateAccount writes an initialized token account at a fresh address.
func CreateAccount(t testing.TB, local *backend.Local, mint, owner solana.PublicKey, amount uint64) solana.PublicKey {
	t.Helper()
	key := solana.NewWallet().PublicKey()
	SetAccount(t, local, key, &spltoken.AccountLayout{Mint: mint, Owner: owner, Amount: amount, State: spltoken.AccountStateInitialized})
	return key
}

// CreateAssociated writes the canonical token account of owner for mint.
func CreateAssociated(t testing.TB, local *backend.Local, mint, owner solana.PublicKey, amount uint64) solana.PublicKey {
	t.Helper()
	key, err := spltoken.AssociatedAddress(owner, mint)
	require.NoError(t, err)
	SetAccount(t, local, key, &spltoken.AccountLayout{Mint: mint, Owner: owner, Amount: amount, State: spltoken.AccountStateInitialized})
	return key
}

func SetAccount(t testing.TB, local *backend.Local, key solana.PublicKey, layout *spltoken.AccountLayout) {
	t.Helper()
	if mintAccount := local.Account(layout.Mint); mintAccount != nil {
		mint, err := spltoken.UnpackMint(mintAccount.Data)
		require.NoError(t, err)
		mint.Supply += layout.Amount
		mintAccount.Data = mint.Pack()
		local.SetAccount(mintAccount)
	}
	local.SetAccount(&backend.Account{
		PubKey:   key,
		Owner:    program.Token,
		Lamports: backend.RentExemptMinimum(uint64(spltoken.AccountLayoutSize)),
		Data:     layout.Pack(),
	})
}

func Balance(t testing.TB, local *backend.Local, key solana.PublicKey) uint64 {
	t.Helper()
	account, err := spltoken.ParseAccount(local.Account(key))
	require.NoError(t, err)
	return account.Amount
}

func Layout(t testing.TB, local *backend.Local, key solana.PublicKey) *spltoken.AccountLayout {
	t.Helper()
	account, err := spltoken.ParseAccount(local.Account(key))
	require.NoError(t, err)
	return &account.AccountLayout
}
