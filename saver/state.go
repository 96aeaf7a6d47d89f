package saver

import (
	"bytes"
	"crypto/sha256"

	"github.com/egaotan/serum-saver/backend"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

var (
	SaverDiscriminator       = accountDiscriminator("Saver")
	SaverMarketDiscriminator = accountDiscriminator("SaverMarket")
)

const (
	SaverSize       = 8 + 32 + 32 + 1 + 32
	SaverMarketSize = 8 + 32 + 32 + 8 + 32 + 32
)

func accountDiscriminator(name string) [8]byte {
	hash := sha256.Sum256([]byte("account:" + name))
	var out [8]byte
	copy(out[:], hash[:8])
	return out
}

// Saver is the vault registry: who controls it, the derived signer and the
// SRM vault paying for fee discounts.
type Saver struct {
	Controller solana.PublicKey
	Signer     solana.PublicKey
	Nonce      uint8
	SrmVault   solana.PublicKey
}

// SaverMarket binds a saver to one dex market. CoinLotSize is read from the
// market once and never refreshed.
type SaverMarket struct {
	Saver       solana.PublicKey
	OpenOrders  solana.PublicKey
	CoinLotSize uint64
	CoinVault   solana.PublicKey
	PcVault     solana.PublicKey
}

type KeyedSaver struct {
	Key solana.PublicKey
	Saver
}

type KeyedSaverMarket struct {
	Key solana.PublicKey
	SaverMarket
}

func pack(discriminator [8]byte, v interface{}) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write(discriminator[:])
	if err := bin.NewBorshEncoder(buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func unpack(discriminator [8]byte, data []byte, v interface{}) error {
	if len(data) < 8 {
		return ErrAccountDidNotDeserialize
	}
	if bytes.Equal(data[:8], make([]byte, 8)) {
		return ErrAccountNotInitialized
	}
	if !bytes.Equal(data[:8], discriminator[:]) {
		return ErrAccountDiscriminatorMismatch
	}
	if err := bin.NewBorshDecoder(data[8:]).Decode(v); err != nil {
		return ErrAccountDidNotDeserialize
	}
	return nil
}

func (s *Saver) Pack() ([]byte, error) {
	return pack(SaverDiscriminator, s)
}

func UnpackSaver(data []byte) (*Saver, error) {
	s := &Saver{}
	if err := unpack(SaverDiscriminator, data, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (m *SaverMarket) Pack() ([]byte, error) {
	return pack(SaverMarketDiscriminator, m)
}

func UnpackSaverMarket(data []byte) (*SaverMarket, error) {
	m := &SaverMarket{}
	if err := unpack(SaverMarketDiscriminator, data, m); err != nil {
		return nil, err
	}
	return m, nil
}

// ParseSaver reads a saver account, which must belong to programID.
func ParseSaver(account *backend.Account, programID solana.PublicKey) (*KeyedSaver, error) {
	if account == nil || account.Empty() {
		return nil, ErrAccountNotInitialized
	}
	if account.Owner != programID {
		return nil, ErrAccountOwnedByWrongProgram
	}
	s, err := UnpackSaver(account.Data)
	if err != nil {
		return nil, err
	}
	return &KeyedSaver{Key: account.PubKey, Saver: *s}, nil
}

func ParseSaverMarket(account *backend.Account, programID solana.PublicKey) (*KeyedSaverMarket, error) {
	if account == nil || account.Empty() {
		return nil, ErrAccountNotInitialized
	}
	if account.Owner != programID {
		return nil, ErrAccountOwnedByWrongProgram
	}
	m, err := UnpackSaverMarket(account.Data)
	if err != nil {
		return nil, err
	}
	return &KeyedSaverMarket{Key: account.PubKey, SaverMarket: *m}, nil
}
