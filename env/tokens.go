package env

import (
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

type Token struct {
	Symbol  string
	Name    string
	Mint    solana.PublicKey
	Decimal int32
}

func (token *Token) AmountUi(amount uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -token.Decimal)
}

// AmountNative converts a ui amount to native units, truncating extra precision.
func (token *Token) AmountNative(amountUi decimal.Decimal) (uint64, error) {
	if amountUi.IsNegative() {
		return 0, fmt.Errorf("token(%s) amount is negative: %s", token.Symbol, amountUi)
	}
	native := amountUi.Shift(token.Decimal).Truncate(0).BigInt()
	if !native.IsUint64() {
		return 0, fmt.Errorf("token(%s) amount is overflow: %s", token.Symbol, amountUi)
	}
	return native.Uint64(), nil
}

func (e *Env) Token(key solana.PublicKey) *Token {
	if item, ok := e.tokens[key]; ok {
		return item
	}
	return nil
}

func (e *Env) AddToken(token *Token) {
	e.tokens[token.Mint] = token
}

// TokenOrUnknown never returns nil, unknown mints render with 0 decimals.
func (e *Env) TokenOrUnknown(key solana.PublicKey) *Token {
	if token := e.Token(key); token != nil {
		return token
	}
	return &Token{Symbol: key.String()[:6], Name: key.String(), Mint: key}
}
