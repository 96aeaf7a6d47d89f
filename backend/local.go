package backend

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"log"
	"sync"

	"github.com/gagliardetto/solana-go"
)

var (
	NativeLoader = solana.MustPublicKeyFromBase58("NativeLoader1111111111111111111111111111111")
)

// Local is an in-process host for Processors. Every Execute call is one
// unit of work: instructions run in order against a private copy of the
// touched accounts, which is committed only if all of them succeed.
type Local struct {
	lock       sync.Mutex
	logger     *log.Logger
	accounts   map[solana.PublicKey]*Account
	processors map[solana.PublicKey]Processor
	slot       uint64
}

func NewLocal(logger *log.Logger) *Local {
	return &Local{
		logger:     logger,
		accounts:   make(map[solana.PublicKey]*Account),
		processors: make(map[solana.PublicKey]Processor),
		slot:       1,
	}
}

func (l *Local) Register(processors ...Processor) {
	l.lock.Lock()
	defer l.lock.Unlock()
	for _, processor := range processors {
		l.processors[processor.Id()] = processor
		l.accounts[processor.Id()] = &Account{
			PubKey:     processor.Id(),
			Owner:      NativeLoader,
			Lamports:   1,
			Executable: true,
		}
		l.logger.Printf("register program: %s", processor.Id())
	}
}

// SetAccount writes an account directly, bypassing every program.
func (l *Local) SetAccount(account *Account) {
	l.lock.Lock()
	defer l.lock.Unlock()
	account = account.Clone()
	account.Height = l.slot
	l.accounts[account.PubKey] = account
}

func (l *Local) Airdrop(key solana.PublicKey, lamports uint64) {
	l.lock.Lock()
	defer l.lock.Unlock()
	account, ok := l.accounts[key]
	if !ok {
		account = &Account{PubKey: key, Owner: solana.SystemProgramID}
		l.accounts[key] = account
	}
	account.Lamports += lamports
	account.Height = l.slot
}

func (l *Local) Account(key solana.PublicKey) *Account {
	l.lock.Lock()
	defer l.lock.Unlock()
	if account, ok := l.accounts[key]; ok {
		return account.Clone()
	}
	return nil
}

func (l *Local) Slot() uint64 {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.slot
}

func (l *Local) Accounts(ctx context.Context, keys []solana.PublicKey) ([]*Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.lock.Lock()
	defer l.lock.Unlock()
	accounts := make([]*Account, 0, len(keys))
	for _, key := range keys {
		if account, ok := l.accounts[key]; ok {
			accounts = append(accounts, account.Clone())
		} else {
			accounts = append(accounts, nil)
		}
	}
	return accounts, nil
}

func (l *Local) MinimumBalanceForRentExemption(ctx context.Context, size uint64) (uint64, error) {
	return RentExemptMinimum(size), nil
}

// Execute runs instructions as one unit. On failure nothing is committed and
// the returned receipt still carries the program logs.
func (l *Local) Execute(ctx context.Context, instructions []solana.Instruction, signers []solana.PrivateKey) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.lock.Lock()
	defer l.lock.Unlock()
	u, trx, err := l.process(instructions, signers)
	receipt := &Receipt{Slot: l.slot}
	if u != nil {
		receipt.Logs = u.logs
	}
	if err != nil {
		l.logger.Printf("transaction failed at slot %d: %s", l.slot, err)
		return receipt, err
	}
	u.commit()
	receipt.Signature = trx.Signatures[0]
	l.logger.Printf("transaction %s committed at slot %d", receipt.Signature, l.slot)
	l.slot++
	return receipt, nil
}

// Simulate runs instructions without committing and returns the resulting
// state of keys.
func (l *Local) Simulate(ctx context.Context, instructions []solana.Instruction, signers []solana.PrivateKey, keys []solana.PublicKey) ([]*Account, *Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	l.lock.Lock()
	defer l.lock.Unlock()
	u, _, err := l.process(instructions, signers)
	receipt := &Receipt{Slot: l.slot}
	if u != nil {
		receipt.Logs = u.logs
	}
	if err != nil {
		return nil, receipt, err
	}
	accounts := make([]*Account, 0, len(keys))
	for _, key := range keys {
		account := u.load(key)
		if account.Empty() {
			accounts = append(accounts, nil)
			continue
		}
		accounts = append(accounts, account.Clone())
	}
	return accounts, receipt, nil
}

func (l *Local) blockHash() solana.Hash {
	seed := make([]byte, 8)
	binary.LittleEndian.PutUint64(seed, l.slot)
	return solana.Hash(sha256.Sum256(seed))
}

func (l *Local) process(instructions []solana.Instruction, signers []solana.PrivateKey) (*unit, *solana.Transaction, error) {
	trx, err := buildTransaction(instructions, l.blockHash(), signers)
	if err != nil {
		return nil, nil, err
	}
	u := &unit{
		local:    l,
		accounts: make(map[solana.PublicKey]*Account),
		slot:     l.slot,
	}
	for i, instruction := range instructions {
		data, err := instruction.Data()
		if err != nil {
			return u, nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		if err := u.run(nil, instruction.ProgramID(), instruction.Accounts(), data); err != nil {
			return u, nil, fmt.Errorf("instruction %d: %w", i, err)
		}
	}
	return u, trx, nil
}

type unit struct {
	local    *Local
	accounts map[solana.PublicKey]*Account
	logs     []string
	slot     uint64
}

func (u *unit) log(format string, args ...interface{}) {
	u.logs = append(u.logs, fmt.Sprintf(format, args...))
}

func (u *unit) load(key solana.PublicKey) *Account {
	if account, ok := u.accounts[key]; ok {
		return account
	}
	account, ok := u.local.accounts[key]
	if ok {
		account = account.Clone()
	} else {
		account = &Account{PubKey: key, Owner: solana.SystemProgramID}
	}
	u.accounts[key] = account
	return account
}

func (u *unit) run(caller *frame, programID solana.PublicKey, metas []*solana.AccountMeta, data []byte) error {
	depth := 1
	if caller != nil {
		depth = caller.depth + 1
	}
	if depth > MaxInvokeDepth {
		return ErrCallDepth
	}
	processor, ok := u.local.processors[programID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProgram, programID)
	}
	f := &frame{
		program:    programID,
		depth:      depth,
		privileges: make(map[solana.PublicKey]privilege, len(metas)),
		pre:        make(map[solana.PublicKey]*Account, len(metas)),
	}
	for _, meta := range metas {
		p := f.privileges[meta.PublicKey]
		p.signer = p.signer || meta.IsSigner
		p.writable = p.writable || meta.IsWritable
		f.privileges[meta.PublicKey] = p
		if _, ok := f.pre[meta.PublicKey]; !ok {
			f.pre[meta.PublicKey] = u.load(meta.PublicKey).Clone()
		}
	}
	infos := make([]*AccountInfo, 0, len(metas))
	for _, meta := range metas {
		p := f.privileges[meta.PublicKey]
		infos = append(infos, &AccountInfo{
			Key:        meta.PublicKey,
			IsSigner:   p.signer,
			IsWritable: p.writable,
			Account:    u.accounts[meta.PublicKey],
		})
	}
	u.log("Program %s invoke [%d]", programID, depth)
	if err := processor.Process(&Context{unit: u, frame: f}, infos, data); err != nil {
		u.log("Program %s failed: %s", programID, err)
		return err
	}
	if err := f.verifyAll(u); err != nil {
		u.log("Program %s failed: %s", programID, err)
		return err
	}
	u.log("Program %s success", programID)
	return nil
}

func (u *unit) commit() {
	for key, account := range u.accounts {
		if account.Empty() {
			delete(u.local.accounts, key)
			continue
		}
		account.Height = u.slot
		u.local.accounts[key] = account
	}
}
