package saver

import (
	"fmt"
	"log"

	"github.com/egaotan/serum-saver/backend"
	"github.com/egaotan/serum-saver/program"
	"github.com/egaotan/serum-saver/serum"
	"github.com/egaotan/serum-saver/spltoken"
	"github.com/egaotan/serum-saver/system"
	"github.com/gagliardetto/solana-go"
)

// Program is the saver: it keeps vaults for one controller and trades them
// on the dex in a single unit per swap.
type Program struct {
	log    *log.Logger
	id     solana.PublicKey
	dex    solana.PublicKey
	rebate solana.PublicKey
}

func NewProgram(logger *log.Logger, id solana.PublicKey, dex solana.PublicKey, rebate solana.PublicKey) *Program {
	p := &Program{
		log:    logger,
		id:     id,
		dex:    dex,
		rebate: rebate,
	}
	return p
}

func (p *Program) Name() string {
	return "serum saver"
}

func (p *Program) Id() solana.PublicKey {
	return p.id
}

func (p *Program) Process(ctx *backend.Context, accounts []*backend.AccountInfo, data []byte) error {
	discriminator, body, err := DecodeInstruction(data)
	if err != nil {
		return err
	}
	switch discriminator {
	case InitializeSaverDiscriminator:
		args, err := DecodeInitializeSaver(body)
		if err != nil {
			return err
		}
		return p.initializeSaver(ctx, accounts, args.Nonce)
	case InitializeMarketDiscriminator:
		return p.initializeMarket(ctx, accounts)
	case SwapDiscriminator:
		args, err := DecodeSwap(body)
		if err != nil {
			return err
		}
		a, err := p.swapAccounts(accounts)
		if err != nil {
			return err
		}
		return p.swap(ctx, a, args)
	default:
		return ErrInstructionFallbackNotFound
	}
}

func tokenAccount(name string, info *backend.AccountInfo) (*spltoken.KeyedAccount, error) {
	if info.Owner != program.Token {
		return nil, fmt.Errorf("%s: %w", name, ErrAccountOwnedByWrongProgram)
	}
	account, err := spltoken.ParseAccount(info.Account)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, ErrAccountDidNotDeserialize)
	}
	account.Key = info.Key
	return account, nil
}

func mintAccount(name string, info *backend.AccountInfo) (*spltoken.KeyedMint, error) {
	if info.Owner != program.Token {
		return nil, fmt.Errorf("%s: %w", name, ErrAccountOwnedByWrongProgram)
	}
	mint, err := spltoken.ParseMint(info.Account)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, ErrAccountDidNotDeserialize)
	}
	mint.Key = info.Key
	return mint, nil
}

func (p *Program) loadSaver(info *backend.AccountInfo) (*KeyedSaver, error) {
	s, err := ParseSaver(info.Account, p.id)
	if err != nil {
		return nil, fmt.Errorf("saver: %w", err)
	}
	s.Key = info.Key
	return s, nil
}

func (p *Program) loadSaverMarket(info *backend.AccountInfo) (*KeyedSaverMarket, error) {
	m, err := ParseSaverMarket(info.Account, p.id)
	if err != nil {
		return nil, fmt.Errorf("saver_market: %w", err)
	}
	m.Key = info.Key
	return m, nil
}

// create allocates a new account owned by the program, paid by payer, and
// writes data into it.
func (p *Program) create(ctx *backend.Context, name string, info *backend.AccountInfo, payer *backend.AccountInfo, data []byte) error {
	if info.Owner == p.id {
		return fmt.Errorf("%s: %w", name, ErrAccountAlreadyInitialized)
	}
	if !info.IsSigner || !info.IsWritable {
		return signer(name)
	}
	space := uint64(len(data))
	err := ctx.Invoke(system.InstructionCreateAccount(payer.Key, info.Key, backend.RentExemptMinimum(space), space, p.id))
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	copy(info.Data, data)
	return nil
}

func (p *Program) initializeSaver(ctx *backend.Context, accounts []*backend.AccountInfo, nonce uint8) error {
	if len(accounts) < 5 {
		return ErrNotEnoughAccountKeys
	}
	saverInfo, signerInfo, srmInfo, payer, systemProgram := accounts[0], accounts[1], accounts[2], accounts[3], accounts[4]
	if systemProgram.Key != program.System {
		return fmt.Errorf("system_program: %w", ErrInvalidProgramID)
	}
	if !payer.IsSigner {
		return signer("payer")
	}
	authority, err := DeriveAuthority(p.id, saverInfo.Key, nonce)
	if err != nil || authority != signerInfo.Key {
		return seeds("signer")
	}
	srmVault, err := tokenAccount("srm_vault", srmInfo)
	if err != nil {
		return err
	}
	if err := ValidateRebateVault(srmVault, p.rebate, authority); err != nil {
		return err
	}

	s := &Saver{
		Controller: payer.Key,
		Signer:     authority,
		Nonce:      nonce,
		SrmVault:   srmInfo.Key,
	}
	data, err := s.Pack()
	if err != nil {
		return err
	}
	if err := p.create(ctx, "saver", saverInfo, payer, data); err != nil {
		return err
	}
	ctx.Log("saver %s, signer %s, controller %s", saverInfo.Key, authority, payer.Key)
	return nil
}

func (p *Program) initializeMarket(ctx *backend.Context, accounts []*backend.AccountInfo) error {
	if len(accounts) < 12 {
		return ErrNotEnoughAccountKeys
	}
	marketInfo, saverInfo, signerInfo := accounts[0], accounts[1], accounts[2]
	coinMintInfo, coinVaultInfo, pcMintInfo, pcVaultInfo := accounts[3], accounts[4], accounts[5], accounts[6]
	dexProgram, dexMarket, dexOpenOrders := accounts[7], accounts[8], accounts[9]
	payer, systemProgram := accounts[10], accounts[11]

	if systemProgram.Key != program.System {
		return fmt.Errorf("system_program: %w", ErrInvalidProgramID)
	}
	if dexProgram.Key != p.dex {
		return fmt.Errorf("dex_program: %w", ErrInvalidProgramID)
	}
	if !payer.IsSigner {
		return signer("payer")
	}
	s, err := p.loadSaver(saverInfo)
	if err != nil {
		return err
	}
	if s.Signer != signerInfo.Key {
		return hasOne("saver", "signer")
	}
	if s.Controller != payer.Key {
		return hasOne("saver", "controller")
	}
	coinMint, err := mintAccount("coin_mint", coinMintInfo)
	if err != nil {
		return err
	}
	pcMint, err := mintAccount("pc_mint", pcMintInfo)
	if err != nil {
		return err
	}
	coinVault, err := tokenAccount("coin_vault", coinVaultInfo)
	if err != nil {
		return err
	}
	pcVault, err := tokenAccount("pc_vault", pcVaultInfo)
	if err != nil {
		return err
	}
	if err := ValidateSettlementVaults(coinVault, coinMint.Key, pcVault, pcMint.Key, s.Signer); err != nil {
		return err
	}
	if dexMarket.Owner != p.dex {
		return fmt.Errorf("dex_market: %w", ErrAccountOwnedByWrongProgram)
	}
	market, err := serum.UnpackMarket(dexMarket.Data)
	if err != nil {
		return fmt.Errorf("dex_market: %w", err)
	}
	authority, err := s.Authority(p.id, saverInfo.Key)
	if err != nil {
		return err
	}

	m := &SaverMarket{
		Saver:       saverInfo.Key,
		OpenOrders:  dexOpenOrders.Key,
		CoinLotSize: market.BaseLotSize,
		CoinVault:   coinVaultInfo.Key,
		PcVault:     pcVaultInfo.Key,
	}
	data, err := m.Pack()
	if err != nil {
		return err
	}
	if err := p.create(ctx, "saver_market", marketInfo, payer, data); err != nil {
		return err
	}
	err = ctx.Invoke(serum.InstructionInitOpenOrders(p.dex, dexOpenOrders.Key, authority.Key(), dexMarket.Key, nil), authority.Seeds())
	if err != nil {
		return fmt.Errorf("init open orders: %w", err)
	}
	ctx.Log("saver market %s on %s, coin lot size %d", marketInfo.Key, dexMarket.Key, market.BaseLotSize)
	return nil
}
