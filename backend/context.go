package backend

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Processor is a program the Local host can run.
type Processor interface {
	Id() solana.PublicKey
	Process(ctx *Context, accounts []*AccountInfo, data []byte) error
}

// AccountInfo is an account as seen by one instruction. Account points into
// the working set of the running unit, so writes are visible to later calls
// and are discarded if the unit fails.
type AccountInfo struct {
	Key        solana.PublicKey
	IsSigner   bool
	IsWritable bool
	*Account
}

type privilege struct {
	signer   bool
	writable bool
}

type frame struct {
	program    solana.PublicKey
	depth      int
	privileges map[solana.PublicKey]privilege
	pre        map[solana.PublicKey]*Account
	moved      int64
}

// Context is handed to a Processor for the duration of one instruction.
type Context struct {
	unit  *unit
	frame *frame
}

func (c *Context) ProgramID() solana.PublicKey {
	return c.frame.program
}

func (c *Context) Slot() uint64 {
	return c.unit.slot
}

func (c *Context) Log(format string, args ...interface{}) {
	c.unit.log("Program log: "+format, args...)
}

// Invoke runs instruction as a cross-program call. Each entry of signerSeeds
// is a seed set whose program address, derived under the calling program,
// is granted signer privilege for the call.
func (c *Context) Invoke(instruction solana.Instruction, signerSeeds ...[][]byte) error {
	data, err := instruction.Data()
	if err != nil {
		return err
	}
	programID := instruction.ProgramID()
	if _, ok := c.frame.privileges[programID]; !ok {
		return fmt.Errorf("%w: program %s not passed to %s", ErrUnknownProgram, programID, c.frame.program)
	}
	pdas := make(map[solana.PublicKey]bool, len(signerSeeds))
	for _, seeds := range signerSeeds {
		key, err := solana.CreateProgramAddress(seeds, c.frame.program)
		if err != nil {
			return fmt.Errorf("invoke %s: %w", programID, err)
		}
		pdas[key] = true
	}
	metas := instruction.Accounts()
	keys := make([]solana.PublicKey, 0, len(metas))
	for _, meta := range metas {
		p, ok := c.frame.privileges[meta.PublicKey]
		if !ok {
			return fmt.Errorf("%w: %s not passed to %s", ErrAccountNotFound, meta.PublicKey, c.frame.program)
		}
		if meta.IsSigner && !p.signer && !pdas[meta.PublicKey] {
			return fmt.Errorf("%w: signer %s", ErrPrivilegeEscalation, meta.PublicKey)
		}
		if meta.IsWritable && !p.writable {
			return fmt.Errorf("%w: writable %s", ErrPrivilegeEscalation, meta.PublicKey)
		}
		keys = append(keys, meta.PublicKey)
	}
	if err := c.frame.verify(c.unit, keys); err != nil {
		return err
	}
	for _, key := range dedup(keys) {
		c.frame.moved += int64(c.unit.accounts[key].Lamports) - int64(c.frame.pre[key].Lamports)
	}
	if err := c.unit.run(c.frame, programID, metas, data); err != nil {
		return err
	}
	for _, key := range keys {
		c.frame.pre[key] = c.unit.accounts[key].Clone()
	}
	return nil
}

// verify checks the changes this frame made to keys against what the
// running program is allowed to do.
func (f *frame) verify(u *unit, keys []solana.PublicKey) error {
	for _, key := range keys {
		pre := f.pre[key]
		post := u.accounts[key]
		if post.equal(pre) {
			continue
		}
		p := f.privileges[key]
		if !p.writable {
			return fmt.Errorf("%w: %s", ErrReadonlyModified, key)
		}
		owned := pre.Owner == f.program
		if post.Owner != pre.Owner && !owned {
			return fmt.Errorf("%w: owner of %s", ErrExternalAccountModified, key)
		}
		if post.Owner != pre.Owner && !zeroed(post.Data) {
			return fmt.Errorf("%w: owner of %s changed with data", ErrExternalAccountModified, key)
		}
		if !owned && string(post.Data) != string(pre.Data) {
			return fmt.Errorf("%w: data of %s", ErrExternalAccountModified, key)
		}
		if !owned && post.Lamports < pre.Lamports {
			return fmt.Errorf("%w: lamports of %s", ErrExternalAccountModified, key)
		}
		if post.Executable != pre.Executable {
			return fmt.Errorf("%w: executable flag of %s", ErrExternalAccountModified, key)
		}
	}
	return nil
}

func (f *frame) verifyAll(u *unit) error {
	keys := make([]solana.PublicKey, 0, len(f.pre))
	var before, after int64
	for key, pre := range f.pre {
		keys = append(keys, key)
		before += int64(pre.Lamports)
		after += int64(u.accounts[key].Lamports)
	}
	if err := f.verify(u, keys); err != nil {
		return err
	}
	if after-before+f.moved != 0 {
		return fmt.Errorf("%w: %s unbalanced lamports", ErrExternalAccountModified, f.program)
	}
	return nil
}

func zeroed(data []byte) bool {
	for _, b := range data {
		if b != 0 {
			return false
		}
	}
	return true
}

func dedup(keys []solana.PublicKey) []solana.PublicKey {
	seen := make(map[solana.PublicKey]bool, len(keys))
	out := make([]solana.PublicKey, 0, len(keys))
	for _, key := range keys {
		if !seen[key] {
			seen[key] = true
			out = append(out, key)
		}
	}
	return out
}
