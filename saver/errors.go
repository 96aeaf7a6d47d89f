package saver

import (
	"errors"
	"fmt"
)

// Error is a program error with a stable numeric code.
type Error struct {
	Code uint32
	Name string
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s(%d): %s", e.Name, e.Code, e.Msg)
}

var (
	ErrInstructionFallbackNotFound  = &Error{Code: 101, Name: "InstructionFallbackNotFound", Msg: "Fallback functions are not supported"}
	ErrInstructionDidNotDeserialize = &Error{Code: 102, Name: "InstructionDidNotDeserialize", Msg: "The program could not deserialize the given instruction"}

	ErrCoinQtyOverflow  = &Error{Code: 300, Name: "CoinQtyOverflow", Msg: "Swap coin_qty is overflow"}
	ErrNonZeroU64       = &Error{Code: 301, Name: "NonZeroU64", Msg: "Amount should be greater than zero"}
	ErrSettlementShrunk = &Error{Code: 302, Name: "SettlementShrunk", Msg: "Settlement vault balance fell below its snapshot"}

	ErrAccountAlreadyInitialized    = &Error{Code: 3000, Name: "AccountDiscriminatorAlreadySet", Msg: "The account discriminator was already set on this account"}
	ErrAccountDiscriminatorMismatch = &Error{Code: 3002, Name: "AccountDiscriminatorMismatch", Msg: "Account discriminator did not match what was expected"}
	ErrAccountDidNotDeserialize     = &Error{Code: 3003, Name: "AccountDidNotDeserialize", Msg: "Failed to deserialize the account"}
	ErrNotEnoughAccountKeys         = &Error{Code: 3005, Name: "AccountNotEnoughKeys", Msg: "Not enough account keys given to the instruction"}
	ErrAccountOwnedByWrongProgram   = &Error{Code: 3007, Name: "AccountOwnedByWrongProgram", Msg: "The given account is owned by a different program than expected"}
	ErrInvalidProgramID             = &Error{Code: 3008, Name: "InvalidProgramId", Msg: "Program ID was not as expected"}
	ErrAccountNotInitialized        = &Error{Code: 3012, Name: "AccountNotInitialized", Msg: "The program expected this account to be already initialized"}
)

// ErrConstraint matches every ConstraintError.
var ErrConstraint = errors.New("constraint violated")

const (
	ConstraintHasOne = uint32(2001)
	ConstraintSigner = uint32(2002)
	ConstraintRaw    = uint32(2003)
	ConstraintSeeds  = uint32(2006)
)

// ConstraintError names the account and the rule it broke.
type ConstraintError struct {
	Code       uint32
	Account    string
	Constraint string
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("constraint %d violated on %s: %s", e.Code, e.Account, e.Constraint)
}

func (e *ConstraintError) Is(target error) bool {
	return target == ErrConstraint
}

func hasOne(account, field string) error {
	return &ConstraintError{Code: ConstraintHasOne, Account: account, Constraint: "has_one " + field}
}

func raw(account, constraint string) error {
	return &ConstraintError{Code: ConstraintRaw, Account: account, Constraint: constraint}
}

func signer(account string) error {
	return &ConstraintError{Code: ConstraintSigner, Account: account, Constraint: "signer"}
}

func seeds(account string) error {
	return &ConstraintError{Code: ConstraintSeeds, Account: account, Constraint: "seeds"}
}
