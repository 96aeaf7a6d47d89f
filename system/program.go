package system

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log"

	"github.com/egaotan/serum-saver/backend"
	"github.com/egaotan/serum-saver/program"
	"github.com/gagliardetto/solana-go"
)

const (
	InstructionCreateAccountTag = uint32(0)
	InstructionTransferTag      = uint32(2)
)

var (
	ErrAccountAlreadyInUse = errors.New("account already in use")
	ErrInvalidInstruction  = errors.New("invalid system instruction")
)

type Program struct {
	log *log.Logger
	id  solana.PublicKey
}

func NewProgram(logger *log.Logger) *Program {
	p := &Program{
		log: logger,
		id:  program.System,
	}
	return p
}

func (p *Program) Name() string {
	return "system"
}

func (p *Program) Id() solana.PublicKey {
	return p.id
}

// InstructionCreateAccount funds newKey with the rent exempt minimum for
// space bytes and assigns it to ownerId. Both keys sign.
func InstructionCreateAccount(fromKey solana.PublicKey, newKey solana.PublicKey, lamports uint64, space uint64, ownerId solana.PublicKey) *program.Instruction {
	data := make([]byte, 52)
	binary.LittleEndian.PutUint32(data[0:], InstructionCreateAccountTag)
	binary.LittleEndian.PutUint64(data[4:], lamports)
	binary.LittleEndian.PutUint64(data[12:], space)
	copy(data[20:], ownerId.Bytes())
	instruction := &program.Instruction{
		IsAccounts: []*solana.AccountMeta{
			{PublicKey: fromKey, IsSigner: true, IsWritable: true},
			{PublicKey: newKey, IsSigner: true, IsWritable: true},
		},
		IsData:      data,
		IsProgramID: program.System,
	}
	return instruction
}

func InstructionTransfer(fromKey solana.PublicKey, toKey solana.PublicKey, lamports uint64) *program.Instruction {
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:], InstructionTransferTag)
	binary.LittleEndian.PutUint64(data[4:], lamports)
	return &program.Instruction{
		IsAccounts: []*solana.AccountMeta{
			{PublicKey: fromKey, IsSigner: true, IsWritable: true},
			{PublicKey: toKey, IsSigner: false, IsWritable: true},
		},
		IsData:      data,
		IsProgramID: program.System,
	}
}

func (p *Program) Process(ctx *backend.Context, accounts []*backend.AccountInfo, data []byte) error {
	if len(data) < 4 {
		return ErrInvalidInstruction
	}
	switch binary.LittleEndian.Uint32(data) {
	case InstructionCreateAccountTag:
		if len(data) != 52 || len(accounts) < 2 {
			return ErrInvalidInstruction
		}
		lamports := binary.LittleEndian.Uint64(data[4:])
		space := binary.LittleEndian.Uint64(data[12:])
		owner := solana.PublicKeyFromBytes(data[20:52])
		return p.createAccount(ctx, accounts[0], accounts[1], lamports, space, owner)
	case InstructionTransferTag:
		if len(data) != 12 || len(accounts) < 2 {
			return ErrInvalidInstruction
		}
		return p.transfer(accounts[0], accounts[1], binary.LittleEndian.Uint64(data[4:]))
	default:
		return fmt.Errorf("%w: tag %d", ErrInvalidInstruction, binary.LittleEndian.Uint32(data))
	}
}

func (p *Program) createAccount(ctx *backend.Context, from, to *backend.AccountInfo, lamports, space uint64, owner solana.PublicKey) error {
	if !from.IsSigner || !to.IsSigner {
		return fmt.Errorf("%w: create account", backend.ErrMissingSigner)
	}
	if !to.Empty() {
		return fmt.Errorf("%w: %s", ErrAccountAlreadyInUse, to.Key)
	}
	if err := p.transfer(from, to, lamports); err != nil {
		return err
	}
	to.Data = make([]byte, space)
	to.Owner = owner
	ctx.Log("create account %s, space: %d, owner: %s", to.Key, space, owner)
	return nil
}

func (p *Program) transfer(from, to *backend.AccountInfo, lamports uint64) error {
	if !from.IsSigner {
		return fmt.Errorf("%w: transfer from %s", backend.ErrMissingSigner, from.Key)
	}
	if from.Lamports < lamports {
		return fmt.Errorf("%w: %s has %d, need %d", backend.ErrInsufficientFunds, from.Key, from.Lamports, lamports)
	}
	from.Lamports -= lamports
	to.Lamports += lamports
	return nil
}
