package saver

import (
	"github.com/gagliardetto/solana-go"
)

// DeriveAuthority is the signer of a saver: the program address of
// [saver, [nonce]] under programID.
func DeriveAuthority(programID solana.PublicKey, saver solana.PublicKey, nonce uint8) (solana.PublicKey, error) {
	return solana.CreateProgramAddress(authoritySeeds(saver, nonce), programID)
}

// FindAuthority searches the bump a new saver should be created with.
func FindAuthority(programID solana.PublicKey, saver solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{saver.Bytes()}, programID)
}

func authoritySeeds(saver solana.PublicKey, nonce uint8) [][]byte {
	return [][]byte{saver.Bytes(), {nonce}}
}

// Authority lets the program sign as a saver's derived signer. It is only
// handed out by Saver.Authority after re-deriving from the stored nonce.
type Authority struct {
	key   solana.PublicKey
	seeds [][]byte
}

func (a *Authority) Key() solana.PublicKey {
	return a.key
}

func (a *Authority) Seeds() [][]byte {
	return a.seeds
}

func (s *Saver) Authority(programID solana.PublicKey, saver solana.PublicKey) (*Authority, error) {
	key, err := DeriveAuthority(programID, saver, s.Nonce)
	if err != nil || key != s.Signer {
		return nil, seeds("signer")
	}
	return &Authority{key: key, seeds: authoritySeeds(saver, s.Nonce)}, nil
}
