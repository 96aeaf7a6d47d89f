package env

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/gagliardetto/solana-go"
)

// TokenList is the solana-labs token list format.
type TokenList struct {
	Name      string            `json:"name"`
	TimeStamp string            `json:"timestamp"`
	Tokens    []*TokenListEntry `json:"tokens"`
}

type TokenListEntry struct {
	ChainId  int      `json:"chainId"`
	Address  string   `json:"address"`
	Symbol   string   `json:"symbol"`
	Name     string   `json:"name"`
	Decimals int      `json:"decimals"`
	LogoURI  string   `json:"logoURI"`
	Tags     []string `json:"tags"`
}

// LoadTokenList adds the mainnet tokens of a token list file. Tokens that
// are already known keep their configured metadata.
func (e *Env) LoadTokenList(file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read token list(%s): %w", file, err)
	}
	var tokenList TokenList
	if err := json.Unmarshal(data, &tokenList); err != nil {
		return fmt.Errorf("parse token list(%s): %w", file, err)
	}
	added := 0
	for _, entry := range tokenList.Tokens {
		if entry.ChainId != MainnetChainId {
			continue
		}
		mint, err := solana.PublicKeyFromBase58(entry.Address)
		if err != nil {
			e.logger.Printf("token list: skip %s(%s): %s", entry.Symbol, entry.Address, err)
			continue
		}
		if e.Token(mint) != nil {
			continue
		}
		e.AddToken(&Token{
			Symbol:  entry.Symbol,
			Name:    entry.Name,
			Mint:    mint,
			Decimal: int32(entry.Decimals),
		})
		added++
	}
	e.logger.Printf("token list %s loaded, tokens added: %d", tokenList.Name, added)
	return nil
}

const (
	MainnetChainId = 101
)
