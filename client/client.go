package client

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/egaotan/serum-saver/backend"
	"github.com/egaotan/serum-saver/saver"
	"github.com/egaotan/serum-saver/serum"
	"github.com/egaotan/serum-saver/spltoken"
	"github.com/egaotan/serum-saver/store"
	"github.com/egaotan/serum-saver/utils"
	"github.com/gagliardetto/solana-go"
)

var (
	ErrAccountNotFound = errors.New("account not found")
)

// Client drives the saver program for one controller over any executor.
type Client struct {
	log       *log.Logger
	executor  backend.Executor
	programID solana.PublicKey
	dex       solana.PublicKey
	rebate    solana.PublicKey
	store     *store.Store
}

func NewClient(executor backend.Executor, programID, dex, rebate solana.PublicKey, logger *log.Logger) *Client {
	if logger == nil {
		logger = utils.Discard()
	}
	return &Client{
		log:       logger,
		executor:  executor,
		programID: programID,
		dex:       dex,
		rebate:    rebate,
	}
}

// SetStore journals every swap and binding to s.
func (c *Client) SetStore(s *store.Store) {
	c.store = s
}

func (c *Client) accounts(ctx context.Context, keys ...solana.PublicKey) ([]*backend.Account, error) {
	accounts, err := c.executor.Accounts(ctx, keys)
	if err != nil {
		return nil, err
	}
	for i, account := range accounts {
		if account == nil {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, keys[i])
		}
	}
	return accounts, nil
}

func (c *Client) Vault(ctx context.Context, key solana.PublicKey) (*saver.KeyedSaver, error) {
	accounts, err := c.accounts(ctx, key)
	if err != nil {
		return nil, err
	}
	return saver.ParseSaver(accounts[0], c.programID)
}

func (c *Client) Binding(ctx context.Context, key solana.PublicKey) (*saver.KeyedSaverMarket, error) {
	accounts, err := c.accounts(ctx, key)
	if err != nil {
		return nil, err
	}
	return saver.ParseSaverMarket(accounts[0], c.programID)
}

func (c *Client) Market(ctx context.Context, key solana.PublicKey) (*serum.KeyedMarket, error) {
	accounts, err := c.accounts(ctx, key)
	if err != nil {
		return nil, err
	}
	if accounts[0].Owner != c.dex {
		return nil, fmt.Errorf("market(%s) is not owned by %s", key, c.dex)
	}
	layout, err := serum.UnpackMarket(accounts[0].Data)
	if err != nil {
		return nil, fmt.Errorf("market(%s): %w", key, err)
	}
	return &serum.KeyedMarket{Key: key, Height: accounts[0].Height, MarketLayout: *layout}, nil
}

// Model loads a market with both books for pricing.
func (c *Client) Model(ctx context.Context, key solana.PublicKey, baseDecimals, quoteDecimals int32) (*serum.Model, error) {
	market, err := c.Market(ctx, key)
	if err != nil {
		return nil, err
	}
	accounts, err := c.accounts(ctx, market.Bids, market.Asks)
	if err != nil {
		return nil, err
	}
	books := make([]*serum.KeyedOrderBook, 0, 2)
	for _, account := range accounts {
		book, err := serum.UnpackOrderBook(account.Data)
		if err != nil {
			return nil, fmt.Errorf("order book(%s): %w", account.PubKey, err)
		}
		books = append(books, &serum.KeyedOrderBook{Key: account.PubKey, Height: account.Height, OrderBookLayout: *book})
	}
	return &serum.Model{
		Market:        market,
		Bid:           books[0],
		Ask:           books[1],
		BaseDecimals:  baseDecimals,
		QuoteDecimals: quoteDecimals,
	}, nil
}

// Balances reads token balances. Missing accounts read as zero.
func (c *Client) Balances(ctx context.Context, keys ...solana.PublicKey) ([]uint64, error) {
	accounts, err := c.executor.Accounts(ctx, keys)
	if err != nil {
		return nil, err
	}
	balances := make([]uint64, len(keys))
	for i, account := range accounts {
		if account == nil {
			continue
		}
		token, err := spltoken.ParseAccount(account)
		if err != nil {
			return nil, err
		}
		balances[i] = token.Amount
	}
	return balances, nil
}
