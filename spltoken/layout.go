package spltoken

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/egaotan/serum-saver/backend"
	"github.com/egaotan/serum-saver/program"
	"github.com/gagliardetto/solana-go"
)

var (
	AccountLayoutSize = 165
	MintLayoutSize    = 82
)

const (
	AccountStateUninitialized = uint8(0)
	AccountStateInitialized   = uint8(1)
	AccountStateFrozen        = uint8(2)
)

var (
	OptionNone = [4]byte{0, 0, 0, 0}
	OptionSome = [4]byte{1, 0, 0, 0}
)

type AccountLayout struct {
	Mint                 solana.PublicKey
	Owner                solana.PublicKey
	Amount               uint64
	DelegateOption       [4]byte
	Delegate             solana.PublicKey
	State                uint8
	IsNativeOption       [4]byte
	IsNative             uint64
	DelegatedAmount      uint64
	CloseAuthorityOption [4]byte
	CloseAuthority       solana.PublicKey
}

func (a *AccountLayout) HasDelegate() bool {
	return a.DelegateOption != OptionNone
}

func (a *AccountLayout) HasCloseAuthority() bool {
	return a.CloseAuthorityOption != OptionNone
}

func (a *AccountLayout) Pack() []byte {
	buf := bytes.NewBuffer(make([]byte, 0, AccountLayoutSize))
	binary.Write(buf, binary.LittleEndian, a)
	return buf.Bytes()
}

type MintLayout struct {
	MintAuthorityOption   [4]byte
	MintAuthority         solana.PublicKey
	Supply                uint64
	Decimals              byte
	IsInitialized         uint8
	FreezeAuthorityOption [4]byte
	FreezeAuthority       solana.PublicKey
}

func (m *MintLayout) Pack() []byte {
	buf := bytes.NewBuffer(make([]byte, 0, MintLayoutSize))
	binary.Write(buf, binary.LittleEndian, m)
	return buf.Bytes()
}

type KeyedAccount struct {
	Key    solana.PublicKey
	Height uint64
	AccountLayout
}

type KeyedMint struct {
	Key    solana.PublicKey
	Height uint64
	MintLayout
}

func UnpackAccount(data []byte) (*AccountLayout, error) {
	if len(data) != AccountLayoutSize {
		return nil, fmt.Errorf("spl token account data size is not valid, expected: %d, actual: %d", AccountLayoutSize, len(data))
	}
	account := &AccountLayout{}
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, account); err != nil {
		return nil, err
	}
	return account, nil
}

func UnpackMint(data []byte) (*MintLayout, error) {
	if len(data) != MintLayoutSize {
		return nil, fmt.Errorf("spl token mint data size is not valid, expected: %d, actual: %d", MintLayoutSize, len(data))
	}
	mint := &MintLayout{}
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, mint); err != nil {
		return nil, err
	}
	return mint, nil
}

func ParseAccount(account *backend.Account) (*KeyedAccount, error) {
	if account == nil {
		return nil, fmt.Errorf("account is missing")
	}
	if account.Owner != program.Token {
		return nil, fmt.Errorf("account(%s) is not spl token program account, expected: %s, actual: %s", account.PubKey, program.Token, account.Owner)
	}
	layout, err := UnpackAccount(account.Data)
	if err != nil {
		return nil, fmt.Errorf("account(%s): %w", account.PubKey, err)
	}
	return &KeyedAccount{Key: account.PubKey, Height: account.Height, AccountLayout: *layout}, nil
}

func ParseMint(account *backend.Account) (*KeyedMint, error) {
	if account == nil {
		return nil, fmt.Errorf("mint is missing")
	}
	if account.Owner != program.Token {
		return nil, fmt.Errorf("account(%s) is not spl token program account", account.PubKey)
	}
	layout, err := UnpackMint(account.Data)
	if err != nil {
		return nil, fmt.Errorf("account(%s): %w", account.PubKey, err)
	}
	return &KeyedMint{Key: account.PubKey, Height: account.Height, MintLayout: *layout}, nil
}
