package spltoken

import (
	"fmt"
	"log"

	"github.com/egaotan/serum-saver/backend"
	"github.com/egaotan/serum-saver/program"
	"github.com/egaotan/serum-saver/system"
	"github.com/gagliardetto/solana-go"
)

const (
	AssociatedCreate           = uint8(0)
	AssociatedCreateIdempotent = uint8(1)
)

// AssociatedProgram creates the canonical token account of a wallet for a mint.
type AssociatedProgram struct {
	log *log.Logger
	id  solana.PublicKey
}

func NewAssociatedProgram(logger *log.Logger) *AssociatedProgram {
	return &AssociatedProgram{
		log: logger,
		id:  program.AssociatedToken,
	}
}

func (p *AssociatedProgram) Id() solana.PublicKey {
	return p.id
}

func AssociatedAddress(wallet solana.PublicKey, mint solana.PublicKey) (solana.PublicKey, error) {
	address, _, err := solana.FindAssociatedTokenAddress(wallet, mint)
	return address, err
}

func InstructionCreateAssociated(payer solana.PublicKey, wallet solana.PublicKey, mint solana.PublicKey, idempotent bool) (*program.Instruction, error) {
	address, err := AssociatedAddress(wallet, mint)
	if err != nil {
		return nil, err
	}
	data := []byte{AssociatedCreate}
	if idempotent {
		data[0] = AssociatedCreateIdempotent
	}
	return &program.Instruction{
		IsAccounts: []*solana.AccountMeta{
			{PublicKey: payer, IsSigner: true, IsWritable: true},
			{PublicKey: address, IsSigner: false, IsWritable: true},
			{PublicKey: wallet, IsSigner: false, IsWritable: false},
			{PublicKey: mint, IsSigner: false, IsWritable: false},
			{PublicKey: program.System, IsSigner: false, IsWritable: false},
			{PublicKey: program.Token, IsSigner: false, IsWritable: false},
			{PublicKey: program.SysRent, IsSigner: false, IsWritable: false},
		},
		IsData:      data,
		IsProgramID: program.AssociatedToken,
	}, nil
}

func (p *AssociatedProgram) Process(ctx *backend.Context, accounts []*backend.AccountInfo, data []byte) error {
	if len(accounts) < 7 {
		return ErrInvalidInstruction
	}
	idempotent := len(data) > 0 && data[0] == AssociatedCreateIdempotent
	payer, associated, wallet, mint := accounts[0], accounts[1], accounts[2], accounts[3]
	address, bump, err := solana.FindAssociatedTokenAddress(wallet.Key, mint.Key)
	if err != nil {
		return err
	}
	if address != associated.Key {
		return fmt.Errorf("associated address mismatch, expected: %s, actual: %s", address, associated.Key)
	}
	if !associated.Empty() {
		if idempotent && associated.Owner == program.Token {
			existing, err := UnpackAccount(associated.Data)
			if err == nil && existing.Owner == wallet.Key && existing.Mint == mint.Key {
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrAlreadyInUse, associated.Key)
	}
	seeds := [][]byte{wallet.Key.Bytes(), program.Token.Bytes(), mint.Key.Bytes(), {bump}}
	create := system.InstructionCreateAccount(payer.Key, associated.Key, backend.RentExemptMinimum(uint64(AccountLayoutSize)), uint64(AccountLayoutSize), program.Token)
	if err := ctx.Invoke(create, seeds); err != nil {
		return err
	}
	return ctx.Invoke(InstructionInitializeAccount(associated.Key, mint.Key, wallet.Key))
}
