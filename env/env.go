package env

import (
	"log"

	"github.com/egaotan/serum-saver/config"
	"github.com/egaotan/serum-saver/utils"
	"github.com/gagliardetto/solana-go"
)

// Env holds the static metadata of the tokens and markets the service trades.
type Env struct {
	logger  *log.Logger
	tokens  map[solana.PublicKey]*Token
	markets map[solana.PublicKey]*config.Market
	order   []solana.PublicKey
}

func NewEnv(logger *log.Logger) *Env {
	if logger == nil {
		logger = utils.Discard()
	}
	return &Env{
		logger:  logger,
		tokens:  make(map[solana.PublicKey]*Token),
		markets: make(map[solana.PublicKey]*config.Market),
	}
}

func (e *Env) Load(cfg *config.Config) {
	for _, token := range cfg.Tokens {
		e.AddToken(&Token{
			Symbol:  token.Symbol,
			Name:    token.Name,
			Mint:    token.Mint,
			Decimal: token.Decimal,
		})
	}
	for _, market := range cfg.Markets {
		e.AddMarket(market)
	}
	e.logger.Printf("env loaded, tokens: %d, markets: %d", len(e.tokens), len(e.markets))
}

func (e *Env) AddMarket(market *config.Market) {
	if _, ok := e.markets[market.Market]; !ok {
		e.order = append(e.order, market.Market)
	}
	e.markets[market.Market] = market
}

func (e *Env) Market(key solana.PublicKey) *config.Market {
	if item, ok := e.markets[key]; ok {
		return item
	}
	return nil
}

// MarketByBinding looks a market up by its saver binding account.
func (e *Env) MarketByBinding(binding solana.PublicKey) *config.Market {
	for _, market := range e.markets {
		if market.Binding == binding {
			return market
		}
	}
	return nil
}

func (e *Env) Markets() []*config.Market {
	markets := make([]*config.Market, 0, len(e.order))
	for _, key := range e.order {
		markets = append(markets, e.markets[key])
	}
	return markets
}
