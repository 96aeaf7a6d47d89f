package spltoken

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"math"

	"github.com/egaotan/serum-saver/backend"
	"github.com/egaotan/serum-saver/program"
	"github.com/gagliardetto/solana-go"
)

const (
	TagInitializeMint    = uint8(0)
	TagInitializeAccount = uint8(1)
	TagTransfer          = uint8(3)
	TagApprove           = uint8(4)
	TagMintTo            = uint8(7)
)

var (
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrMintMismatch       = errors.New("account not associated with this mint")
	ErrOwnerMismatch      = errors.New("owner does not match")
	ErrAlreadyInUse       = errors.New("account or token already in use")
	ErrUninitializedState = errors.New("state is uninitialized")
	ErrAccountFrozen      = errors.New("account is frozen")
	ErrOverflow           = errors.New("operation overflowed")
	ErrInvalidInstruction = errors.New("invalid token instruction")
)

type Program struct {
	log *log.Logger
	id  solana.PublicKey
}

func NewProgram(logger *log.Logger) *Program {
	p := &Program{
		log: logger,
		id:  program.Token,
	}
	return p
}

func (p *Program) Name() string {
	return "spl token"
}

func (p *Program) Id() solana.PublicKey {
	return p.id
}

func InstructionInitializeMint(mint solana.PublicKey, decimals uint8, authority solana.PublicKey) *program.Instruction {
	data := make([]byte, 67)
	data[0] = TagInitializeMint
	data[1] = decimals
	copy(data[2:34], authority.Bytes())
	return &program.Instruction{
		IsAccounts: []*solana.AccountMeta{
			{PublicKey: mint, IsSigner: false, IsWritable: true},
			{PublicKey: program.SysRent, IsSigner: false, IsWritable: false},
		},
		IsData:      data,
		IsProgramID: program.Token,
	}
}

func InstructionInitializeAccount(account solana.PublicKey, mint solana.PublicKey, owner solana.PublicKey) *program.Instruction {
	return &program.Instruction{
		IsAccounts: []*solana.AccountMeta{
			{PublicKey: account, IsSigner: false, IsWritable: true},
			{PublicKey: mint, IsSigner: false, IsWritable: false},
			{PublicKey: owner, IsSigner: false, IsWritable: false},
			{PublicKey: program.SysRent, IsSigner: false, IsWritable: false},
		},
		IsData:      []byte{TagInitializeAccount},
		IsProgramID: program.Token,
	}
}

func InstructionTransfer(source solana.PublicKey, destination solana.PublicKey, authority solana.PublicKey, amount uint64) *program.Instruction {
	return &program.Instruction{
		IsAccounts: []*solana.AccountMeta{
			{PublicKey: source, IsSigner: false, IsWritable: true},
			{PublicKey: destination, IsSigner: false, IsWritable: true},
			{PublicKey: authority, IsSigner: true, IsWritable: false},
		},
		IsData:      amountData(TagTransfer, amount),
		IsProgramID: program.Token,
	}
}

func InstructionApprove(source solana.PublicKey, delegate solana.PublicKey, owner solana.PublicKey, amount uint64) *program.Instruction {
	return &program.Instruction{
		IsAccounts: []*solana.AccountMeta{
			{PublicKey: source, IsSigner: false, IsWritable: true},
			{PublicKey: delegate, IsSigner: false, IsWritable: false},
			{PublicKey: owner, IsSigner: true, IsWritable: false},
		},
		IsData:      amountData(TagApprove, amount),
		IsProgramID: program.Token,
	}
}

func InstructionMintTo(mint solana.PublicKey, destination solana.PublicKey, authority solana.PublicKey, amount uint64) *program.Instruction {
	return &program.Instruction{
		IsAccounts: []*solana.AccountMeta{
			{PublicKey: mint, IsSigner: false, IsWritable: true},
			{PublicKey: destination, IsSigner: false, IsWritable: true},
			{PublicKey: authority, IsSigner: true, IsWritable: false},
		},
		IsData:      amountData(TagMintTo, amount),
		IsProgramID: program.Token,
	}
}

func amountData(tag uint8, amount uint64) []byte {
	data := make([]byte, 9)
	data[0] = tag
	binary.LittleEndian.PutUint64(data[1:], amount)
	return data
}

// DecodeTransfer returns source, destination and amount of a transfer.
func DecodeTransfer(accounts []solana.PublicKey, data []byte) (solana.PublicKey, solana.PublicKey, uint64, error) {
	if len(data) != 9 {
		return solana.PublicKey{}, solana.PublicKey{}, 0, fmt.Errorf("data is invalid")
	}
	if data[0] != TagTransfer {
		return solana.PublicKey{}, solana.PublicKey{}, 0, fmt.Errorf("is not transfer")
	}
	if len(accounts) < 3 {
		return solana.PublicKey{}, solana.PublicKey{}, 0, fmt.Errorf("accounts are missing")
	}
	return accounts[0], accounts[1], binary.LittleEndian.Uint64(data[1:]), nil
}

func (p *Program) Process(ctx *backend.Context, accounts []*backend.AccountInfo, data []byte) error {
	if len(data) == 0 {
		return ErrInvalidInstruction
	}
	switch data[0] {
	case TagInitializeMint:
		if len(data) != 67 && len(data) != 35 || len(accounts) < 1 {
			return ErrInvalidInstruction
		}
		return p.initializeMint(accounts[0], data[1], solana.PublicKeyFromBytes(data[2:34]))
	case TagInitializeAccount:
		if len(accounts) < 3 {
			return ErrInvalidInstruction
		}
		return p.initializeAccount(accounts[0], accounts[1], accounts[2])
	case TagTransfer, TagApprove, TagMintTo:
		if len(data) != 9 || len(accounts) < 3 {
			return ErrInvalidInstruction
		}
		amount := binary.LittleEndian.Uint64(data[1:])
		switch data[0] {
		case TagTransfer:
			ctx.Log("Instruction: Transfer %d", amount)
			return p.transfer(accounts[0], accounts[1], accounts[2], amount)
		case TagApprove:
			return p.approve(accounts[0], accounts[1], accounts[2], amount)
		default:
			return p.mintTo(accounts[0], accounts[1], accounts[2], amount)
		}
	default:
		return fmt.Errorf("%w: tag %d", ErrInvalidInstruction, data[0])
	}
}

func (p *Program) loadAccount(info *backend.AccountInfo) (*AccountLayout, error) {
	if info.Owner != p.id {
		return nil, fmt.Errorf("%w: %s", backend.ErrExternalAccountModified, info.Key)
	}
	account, err := UnpackAccount(info.Data)
	if err != nil {
		return nil, err
	}
	if account.State == AccountStateUninitialized {
		return nil, fmt.Errorf("%w: %s", ErrUninitializedState, info.Key)
	}
	if account.State == AccountStateFrozen {
		return nil, fmt.Errorf("%w: %s", ErrAccountFrozen, info.Key)
	}
	return account, nil
}

func (p *Program) loadMint(info *backend.AccountInfo) (*MintLayout, error) {
	if info.Owner != p.id {
		return nil, fmt.Errorf("mint %s is not owned by token program", info.Key)
	}
	mint, err := UnpackMint(info.Data)
	if err != nil {
		return nil, err
	}
	if mint.IsInitialized == 0 {
		return nil, fmt.Errorf("%w: mint %s", ErrUninitializedState, info.Key)
	}
	return mint, nil
}

func (p *Program) initializeMint(info *backend.AccountInfo, decimals uint8, authority solana.PublicKey) error {
	if info.Owner != p.id || len(info.Data) != MintLayoutSize {
		return fmt.Errorf("%w: mint %s", ErrInvalidInstruction, info.Key)
	}
	mint, err := UnpackMint(info.Data)
	if err != nil {
		return err
	}
	if mint.IsInitialized != 0 {
		return fmt.Errorf("%w: %s", ErrAlreadyInUse, info.Key)
	}
	mint.MintAuthorityOption = OptionSome
	mint.MintAuthority = authority
	mint.Decimals = decimals
	mint.IsInitialized = 1
	copy(info.Data, mint.Pack())
	return nil
}

func (p *Program) initializeAccount(info, mintInfo, owner *backend.AccountInfo) error {
	if info.Owner != p.id || len(info.Data) != AccountLayoutSize {
		return fmt.Errorf("%w: account %s", ErrInvalidInstruction, info.Key)
	}
	account, err := UnpackAccount(info.Data)
	if err != nil {
		return err
	}
	if account.State != AccountStateUninitialized {
		return fmt.Errorf("%w: %s", ErrAlreadyInUse, info.Key)
	}
	if _, err := p.loadMint(mintInfo); err != nil {
		return err
	}
	account.Mint = mintInfo.Key
	account.Owner = owner.Key
	account.State = AccountStateInitialized
	copy(info.Data, account.Pack())
	return nil
}

func (p *Program) transfer(sourceInfo, destinationInfo, authority *backend.AccountInfo, amount uint64) error {
	source, err := p.loadAccount(sourceInfo)
	if err != nil {
		return err
	}
	destination, err := p.loadAccount(destinationInfo)
	if err != nil {
		return err
	}
	if source.Mint != destination.Mint {
		return ErrMintMismatch
	}
	if source.Amount < amount {
		return fmt.Errorf("%w: %s has %d, need %d", ErrInsufficientFunds, sourceInfo.Key, source.Amount, amount)
	}
	switch {
	case source.HasDelegate() && source.Delegate == authority.Key && source.Owner != authority.Key:
		if source.DelegatedAmount < amount {
			return fmt.Errorf("%w: delegated %d, need %d", ErrInsufficientFunds, source.DelegatedAmount, amount)
		}
		source.DelegatedAmount -= amount
		if source.DelegatedAmount == 0 {
			source.DelegateOption = OptionNone
			source.Delegate = solana.PublicKey{}
		}
	case source.Owner != authority.Key:
		return fmt.Errorf("%w: %s is not owner of %s", ErrOwnerMismatch, authority.Key, sourceInfo.Key)
	}
	if !authority.IsSigner {
		return fmt.Errorf("%w: %s", backend.ErrMissingSigner, authority.Key)
	}
	if sourceInfo.Key == destinationInfo.Key {
		copy(sourceInfo.Data, source.Pack())
		return nil
	}
	if destination.Amount > math.MaxUint64-amount {
		return ErrOverflow
	}
	source.Amount -= amount
	destination.Amount += amount
	copy(sourceInfo.Data, source.Pack())
	copy(destinationInfo.Data, destination.Pack())
	return nil
}

func (p *Program) approve(sourceInfo, delegate, owner *backend.AccountInfo, amount uint64) error {
	source, err := p.loadAccount(sourceInfo)
	if err != nil {
		return err
	}
	if source.Owner != owner.Key {
		return ErrOwnerMismatch
	}
	if !owner.IsSigner {
		return fmt.Errorf("%w: %s", backend.ErrMissingSigner, owner.Key)
	}
	source.DelegateOption = OptionSome
	source.Delegate = delegate.Key
	source.DelegatedAmount = amount
	copy(sourceInfo.Data, source.Pack())
	return nil
}

func (p *Program) mintTo(mintInfo, destinationInfo, authority *backend.AccountInfo, amount uint64) error {
	mint, err := p.loadMint(mintInfo)
	if err != nil {
		return err
	}
	destination, err := p.loadAccount(destinationInfo)
	if err != nil {
		return err
	}
	if destination.Mint != mintInfo.Key {
		return ErrMintMismatch
	}
	if mint.MintAuthorityOption == OptionNone || mint.MintAuthority != authority.Key {
		return ErrOwnerMismatch
	}
	if !authority.IsSigner {
		return fmt.Errorf("%w: %s", backend.ErrMissingSigner, authority.Key)
	}
	if mint.Supply > math.MaxUint64-amount || destination.Amount > math.MaxUint64-amount {
		return ErrOverflow
	}
	mint.Supply += amount
	destination.Amount += amount
	copy(mintInfo.Data, mint.Pack())
	copy(destinationInfo.Data, destination.Pack())
	return nil
}
