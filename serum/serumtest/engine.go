// Package serumtest runs a small matching engine speaking the dex wire format
// inside a backend.Local, plus helpers to stand up markets and traders.
package serumtest

import (
	"errors"
	"fmt"
	"log"
	"math/bits"

	"github.com/egaotan/serum-saver/backend"
	"github.com/egaotan/serum-saver/serum"
	"github.com/egaotan/serum-saver/spltoken"
	"github.com/gagliardetto/solana-go"
)

var (
	ErrMissingAccounts    = errors.New("not enough account keys")
	ErrWrongAccount       = errors.New("account does not belong to this market")
	ErrWrongOwner         = errors.New("open orders owner mismatch")
	ErrWrongSrmAccount    = errors.New("invalid srm fee discount account")
	ErrWrongMint          = errors.New("order payer has the wrong mint")
	ErrAlreadyInitialized = errors.New("open orders already initialized")
	ErrSelfTrade          = errors.New("order would self trade")
	ErrOverflow           = errors.New("order size overflows")
	ErrMarketDisabled     = errors.New("market is disabled")
)

// Engine matches orders synchronously: takers fill against the book inside
// NewOrderV3, makers are credited when their events are consumed.
type Engine struct {
	log    *log.Logger
	id     solana.PublicKey
	rebate solana.PublicKey
}

func NewEngine(logger *log.Logger, id solana.PublicKey, rebate solana.PublicKey) *Engine {
	return &Engine{
		log:    logger,
		id:     id,
		rebate: rebate,
	}
}

func (e *Engine) Name() string {
	return "serum dex"
}

func (e *Engine) Id() solana.PublicKey {
	return e.id
}

func (e *Engine) Process(ctx *backend.Context, accounts []*backend.AccountInfo, data []byte) error {
	tag, _, err := serum.DecodeInstruction(data)
	if err != nil {
		return err
	}
	switch tag {
	case serum.InstructionInitOpenOrdersTag:
		return e.initOpenOrders(accounts)
	case serum.InstructionNewOrderV3Tag:
		order, err := serum.DecodeNewOrder(data)
		if err != nil {
			return err
		}
		return e.newOrder(ctx, accounts, order)
	case serum.InstructionSettleFundsTag:
		return e.settleFunds(ctx, accounts)
	case serum.InstructionConsumeEventsTag:
		limit, err := serum.DecodeConsumeEvents(data)
		if err != nil {
			return err
		}
		return e.consumeEvents(accounts, limit)
	default:
		return fmt.Errorf("%w: tag %d", serum.ErrInvalidInstruction, tag)
	}
}

func (e *Engine) loadMarket(info *backend.AccountInfo) (*serum.MarketLayout, error) {
	if info.Owner != e.id {
		return nil, fmt.Errorf("%w: market %s", ErrWrongAccount, info.Key)
	}
	market, err := serum.UnpackMarket(info.Data)
	if err != nil {
		return nil, err
	}
	if market.OwnAddress != info.Key {
		return nil, fmt.Errorf("%w: market %s", ErrWrongAccount, info.Key)
	}
	if market.AccountFlag&serum.AccountFlagDisabled != 0 {
		return nil, ErrMarketDisabled
	}
	return market, nil
}

func (e *Engine) loadOpenOrders(info *backend.AccountInfo, market solana.PublicKey) (*serum.OpenOrdersLayout, error) {
	if info.Owner != e.id {
		return nil, fmt.Errorf("%w: open orders %s", ErrWrongAccount, info.Key)
	}
	openOrders, err := serum.UnpackOpenOrders(info.Data)
	if err != nil {
		return nil, err
	}
	if !openOrders.Initialized() || openOrders.Market != market {
		return nil, fmt.Errorf("%w: open orders %s", ErrWrongAccount, info.Key)
	}
	return openOrders, nil
}

func (e *Engine) loadBook(info *backend.AccountInfo, key solana.PublicKey, flag uint64) (*serum.OrderBookLayout, error) {
	if info.Key != key || info.Owner != e.id {
		return nil, fmt.Errorf("%w: book %s", ErrWrongAccount, info.Key)
	}
	book, err := serum.UnpackOrderBook(info.Data)
	if err != nil {
		return nil, err
	}
	if book.AccountFlag&flag == 0 {
		return nil, fmt.Errorf("%w: book %s", ErrWrongAccount, info.Key)
	}
	return book, nil
}

func (e *Engine) initOpenOrders(accounts []*backend.AccountInfo) error {
	if len(accounts) < 3 {
		return ErrMissingAccounts
	}
	info, owner, marketInfo := accounts[0], accounts[1], accounts[2]
	if info.Owner != e.id || len(info.Data) != serum.OpenOrdersLayoutSize {
		return fmt.Errorf("%w: open orders %s", ErrWrongAccount, info.Key)
	}
	if !owner.IsSigner {
		return fmt.Errorf("%w: %s", backend.ErrMissingSigner, owner.Key)
	}
	if _, err := e.loadMarket(marketInfo); err != nil {
		return err
	}
	openOrders, err := serum.UnpackOpenOrders(info.Data)
	if err != nil {
		return err
	}
	if openOrders.AccountFlag != 0 {
		return ErrAlreadyInitialized
	}
	openOrders = &serum.OpenOrdersLayout{
		Data1:       serum.HeadPadding,
		AccountFlag: serum.AccountFlagInitialized | serum.AccountFlagOpenOrders,
		Market:      marketInfo.Key,
		Owner:       owner.Key,
		Data2:       serum.TailPadding,
	}
	for i := range openOrders.FreeSlotBits.Id {
		openOrders.FreeSlotBits.Id[i] = 0xff
	}
	copy(info.Data, openOrders.Pack())
	return nil
}

// feeTier reads the taker fee from a discount account, which must hold the
// rebate mint and belong to the open orders owner.
func (e *Engine) feeTier(info *backend.AccountInfo, owner solana.PublicKey) (uint64, error) {
	account, err := spltoken.ParseAccount(info.Account)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrWrongSrmAccount, err)
	}
	if account.Mint != e.rebate || account.Owner != owner {
		return 0, fmt.Errorf("%w: %s", ErrWrongSrmAccount, info.Key)
	}
	return serum.TakerFeeBps(account.Amount), nil
}

type match struct {
	market     *serum.MarketLayout
	openOrders *serum.OpenOrdersLayout
	key        solana.PublicKey
	events     *serum.EventQueueLayout
	order      *serum.NewOrderV3
	feeBps     uint64
}

func (e *Engine) newOrder(ctx *backend.Context, accounts []*backend.AccountInfo, order *serum.NewOrderV3) error {
	if len(accounts) < 12 {
		return ErrMissingAccounts
	}
	marketInfo, openOrdersInfo, requestInfo, eventInfo := accounts[0], accounts[1], accounts[2], accounts[3]
	bidsInfo, asksInfo, payer, owner := accounts[4], accounts[5], accounts[6], accounts[7]
	coinVault, pcVault := accounts[8], accounts[9]
	market, err := e.loadMarket(marketInfo)
	if err != nil {
		return err
	}
	openOrders, err := e.loadOpenOrders(openOrdersInfo, marketInfo.Key)
	if err != nil {
		return err
	}
	if !owner.IsSigner {
		return fmt.Errorf("%w: %s", backend.ErrMissingSigner, owner.Key)
	}
	if openOrders.Owner != owner.Key {
		return ErrWrongOwner
	}
	if requestInfo.Key != market.RequestQueue || eventInfo.Key != market.EventQueue ||
		coinVault.Key != market.BaseVault || pcVault.Key != market.QuoteVault {
		return ErrWrongAccount
	}
	feeBps := serum.BaseTakerFeeBps
	if len(accounts) > 12 {
		feeBps, err = e.feeTier(accounts[12], owner.Key)
		if err != nil {
			return err
		}
	}
	request, err := serum.UnpackRequestQueue(requestInfo.Data)
	if err != nil {
		return err
	}
	events, err := serum.UnpackEventQueue(eventInfo.Data)
	if err != nil {
		return err
	}
	bids, err := e.loadBook(bidsInfo, market.Bids, serum.AccountFlagBids)
	if err != nil {
		return err
	}
	asks, err := e.loadBook(asksInfo, market.Asks, serum.AccountFlagAsks)
	if err != nil {
		return err
	}
	payerAccount, err := spltoken.ParseAccount(payer.Account)
	if err != nil {
		return err
	}

	m := &match{
		market:     market,
		openOrders: openOrders,
		key:        openOrdersInfo.Key,
		events:     events,
		order:      order,
		feeBps:     feeBps,
	}
	var deposit uint64
	var vault solana.PublicKey
	if order.Side == serum.Bid {
		if payerAccount.Mint != market.QuoteToken {
			return ErrWrongMint
		}
		deposit = m.lockQuote()
		vault = pcVault.Key
	} else {
		if payerAccount.Mint != market.BaseToken {
			return ErrWrongMint
		}
		deposit, err = m.lockBase()
		if err != nil {
			return err
		}
		vault = coinVault.Key
	}
	if deposit > 0 {
		if err := ctx.Invoke(spltoken.InstructionTransfer(payer.Key, vault, owner.Key, deposit)); err != nil {
			return err
		}
	}

	seqNum := request.NextSeqNum()
	if order.Side == serum.Bid {
		rest, post, err := m.buy(asks.Slab.Items(false, 0), seqNum)
		if err != nil {
			return err
		}
		asks.Slab.Rebuild(rest)
		if post != nil {
			bids.Slab.Rebuild(append(bids.Slab.Items(true, 0), post))
		}
	} else {
		rest, post, err := m.sell(bids.Slab.Items(true, 0), seqNum)
		if err != nil {
			return err
		}
		bids.Slab.Rebuild(rest)
		if post != nil {
			asks.Slab.Rebuild(append(asks.Slab.Items(false, 0), post))
		}
	}
	ctx.Log("new order %s price %d qty %d, fee %d bps", order.Side, order.LimitPrice, order.MaxCoinQty, feeBps)

	if err := bids.Pack(bidsInfo.Data); err != nil {
		return err
	}
	if err := asks.Pack(asksInfo.Data); err != nil {
		return err
	}
	events.Pack(eventInfo.Data)
	request.Pack(requestInfo.Data)
	copy(openOrdersInfo.Data, openOrders.Pack())
	copy(marketInfo.Data, market.Pack())
	return nil
}

// lockQuote takes the bid's quote budget, free balance first, and returns
// what the payer still has to deposit.
func (m *match) lockQuote() uint64 {
	locked := m.order.MaxNativePcQtyIncludingFees
	fromFree := min(m.openOrders.QuoteTokenFree, locked)
	m.openOrders.QuoteTokenFree -= fromFree
	m.openOrders.QuoteTokenTotal += locked - fromFree
	return locked - fromFree
}

func (m *match) lockBase() (uint64, error) {
	hi, locked := bits.Mul64(m.order.MaxCoinQty, m.market.BaseLotSize)
	if hi != 0 {
		return 0, ErrOverflow
	}
	fromFree := min(m.openOrders.BaseTokenFree, locked)
	m.openOrders.BaseTokenFree -= fromFree
	m.openOrders.BaseTokenTotal += locked - fromFree
	return locked - fromFree, nil
}

// takerCost is the quote a taker pays for lots at price, fee included.
func takerCost(lots, price, quoteLotSize, feeBps uint64) (uint64, bool) {
	hi, notional := bits.Mul64(lots, price)
	if hi != 0 {
		return 0, false
	}
	hi, notional = bits.Mul64(notional, quoteLotSize)
	if hi != 0 {
		return 0, false
	}
	total, carry := bits.Add64(notional, serum.TakerFee(notional, feeBps), 0)
	return total, carry == 0
}

// affordable is the most lots, at most max, a budget pays for.
func affordable(max, price, quoteLotSize, feeBps, budget uint64) uint64 {
	lo, hi := uint64(0), max
	for lo < hi {
		mid := lo + (hi-lo+1)/2
		if cost, ok := takerCost(mid, price, quoteLotSize, feeBps); ok && cost <= budget {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

func (m *match) selfTrade(leaf *serum.LeafNode, remaining uint64, side serum.Side) (uint64, bool, error) {
	switch m.order.SelfTradeBehavior {
	case serum.AbortTransaction:
		return remaining, false, ErrSelfTrade
	case serum.CancelProvide:
		m.release(leaf, leaf.Quantity, side)
		m.openOrders.RemoveOrder(leaf.OwnerSlot)
		return remaining, false, nil
	default:
		decrement := min(leaf.Quantity, remaining)
		m.release(leaf, decrement, side)
		leaf.Quantity -= decrement
		if leaf.Quantity == 0 {
			m.openOrders.RemoveOrder(leaf.OwnerSlot)
			return remaining - decrement, false, nil
		}
		return remaining - decrement, true, nil
	}
}

// release frees what one of our own resting orders had locked; side is the
// side of that resting order.
func (m *match) release(leaf *serum.LeafNode, lots uint64, side serum.Side) {
	if side == serum.Ask {
		m.openOrders.BaseTokenFree += lots * m.market.BaseLotSize
	} else {
		m.openOrders.QuoteTokenFree += lots * leaf.Key.Price() * m.market.QuoteLotSize
	}
}

func (m *match) fill(leaf *serum.LeafNode, lots uint64, makerBid bool) (uint64, error) {
	base := lots * m.market.BaseLotSize
	quote := lots * leaf.Key.Price() * m.market.QuoteLotSize
	flag := serum.EventFlagFill | serum.EventFlagMaker
	released, paid := quote, base
	if makerBid {
		flag |= serum.EventFlagBid
		released, paid = base, quote
	}
	leaf.Quantity -= lots
	err := m.events.Push(&serum.EventNodeLayout{
		EventFlag:              flag,
		OpenOrdersSlot:         leaf.OwnerSlot,
		FeeTier:                leaf.FeeTier,
		NativeQuantityReleased: released,
		NativeQuantityPaid:     paid,
		Order:                  serum.Order{U128: leaf.Key},
		OpenOrders:             leaf.Owner,
		ClientOrderId:          leaf.ClientOrderId,
	})
	if err != nil {
		return 0, err
	}
	if leaf.Quantity == 0 {
		flag = serum.EventFlagOut
		if makerBid {
			flag |= serum.EventFlagBid
		}
		err = m.events.Push(&serum.EventNodeLayout{
			EventFlag:      flag,
			OpenOrdersSlot: leaf.OwnerSlot,
			Order:          serum.Order{U128: leaf.Key},
			OpenOrders:     leaf.Owner,
			ClientOrderId:  leaf.ClientOrderId,
		})
	}
	return quote, err
}

func (m *match) post(side serum.Side, lots uint64, seqNum uint64) (*serum.LeafNode, error) {
	id := serum.NewOrderId(m.order.LimitPrice, seqNum)
	if side == serum.Bid {
		// bids walk descending, inverting the sequence keeps time priority
		id = serum.NewOrderId(m.order.LimitPrice, ^seqNum)
	}
	slot, err := m.openOrders.AddOrder(id, side, m.order.ClientOrderId)
	if err != nil {
		return nil, err
	}
	return &serum.LeafNode{
		OwnerSlot:     slot,
		Key:           id,
		Owner:         m.key,
		Quantity:      lots,
		ClientOrderId: m.order.ClientOrderId,
	}, nil
}

// buy matches a bid against asks, best first, and returns the asks left on
// the book plus the bid to rest, if any.
func (m *match) buy(asks []*serum.LeafNode, seqNum uint64) ([]*serum.LeafNode, *serum.LeafNode, error) {
	budget := m.order.MaxNativePcQtyIncludingFees
	remaining := m.order.MaxCoinQty
	limit := m.order.LimitPrice
	crossed := len(asks) > 0 && asks[0].Key.Price() <= limit
	if m.order.OrderType == serum.PostOnly && crossed {
		m.openOrders.QuoteTokenFree += budget
		return asks, nil, nil
	}
	rest := make([]*serum.LeafNode, 0, len(asks))
	done := false
	for _, leaf := range asks {
		if done || remaining == 0 || leaf.Key.Price() > limit {
			done = true
			rest = append(rest, leaf)
			continue
		}
		if leaf.Owner == m.key {
			var keep bool
			var err error
			remaining, keep, err = m.selfTrade(leaf, remaining, serum.Ask)
			if err != nil {
				return nil, nil, err
			}
			if keep {
				rest = append(rest, leaf)
			}
			continue
		}
		lots := affordable(min(leaf.Quantity, remaining), leaf.Key.Price(), m.market.QuoteLotSize, m.feeBps, budget)
		if lots == 0 {
			done = true
			rest = append(rest, leaf)
			continue
		}
		quote, err := m.fill(leaf, lots, false)
		if err != nil {
			return nil, nil, err
		}
		fee := serum.TakerFee(quote, m.feeBps)
		budget -= quote + fee
		remaining -= lots
		m.openOrders.QuoteTokenTotal -= quote + fee
		m.openOrders.BaseTokenFree += lots * m.market.BaseLotSize
		m.openOrders.BaseTokenTotal += lots * m.market.BaseLotSize
		m.market.QuoteFeesAccrued += fee
		if leaf.Quantity > 0 {
			rest = append(rest, leaf)
		}
	}
	var posted *serum.LeafNode
	if m.order.OrderType != serum.ImmediateOrCancel && remaining > 0 {
		lots := min(remaining, budget/(limit*m.market.QuoteLotSize))
		if lots > 0 {
			leaf, err := m.post(serum.Bid, lots, seqNum)
			if err != nil {
				return nil, nil, err
			}
			posted = leaf
			budget -= lots * limit * m.market.QuoteLotSize
		}
	}
	m.openOrders.QuoteTokenFree += budget
	return rest, posted, nil
}

// sell matches an ask against bids, best first.
func (m *match) sell(bids []*serum.LeafNode, seqNum uint64) ([]*serum.LeafNode, *serum.LeafNode, error) {
	remaining := m.order.MaxCoinQty
	limit := m.order.LimitPrice
	crossed := len(bids) > 0 && bids[0].Key.Price() >= limit
	if m.order.OrderType == serum.PostOnly && crossed {
		m.openOrders.BaseTokenFree += remaining * m.market.BaseLotSize
		return bids, nil, nil
	}
	rest := make([]*serum.LeafNode, 0, len(bids))
	done := false
	for _, leaf := range bids {
		if done || remaining == 0 || leaf.Key.Price() < limit {
			done = true
			rest = append(rest, leaf)
			continue
		}
		if leaf.Owner == m.key {
			var keep bool
			var err error
			remaining, keep, err = m.selfTrade(leaf, remaining, serum.Bid)
			if err != nil {
				return nil, nil, err
			}
			if keep {
				rest = append(rest, leaf)
			}
			continue
		}
		lots := min(leaf.Quantity, remaining)
		quote, err := m.fill(leaf, lots, true)
		if err != nil {
			return nil, nil, err
		}
		fee := serum.TakerFee(quote, m.feeBps)
		remaining -= lots
		m.openOrders.BaseTokenTotal -= lots * m.market.BaseLotSize
		m.openOrders.QuoteTokenFree += quote - fee
		m.openOrders.QuoteTokenTotal += quote - fee
		m.market.QuoteFeesAccrued += fee
		if leaf.Quantity > 0 {
			rest = append(rest, leaf)
		}
	}
	if m.order.OrderType != serum.ImmediateOrCancel && remaining > 0 {
		leaf, err := m.post(serum.Ask, remaining, seqNum)
		if err != nil {
			return nil, nil, err
		}
		return rest, leaf, nil
	}
	m.openOrders.BaseTokenFree += remaining * m.market.BaseLotSize
	return rest, nil, nil
}

func (e *Engine) settleFunds(ctx *backend.Context, accounts []*backend.AccountInfo) error {
	if len(accounts) < 9 {
		return ErrMissingAccounts
	}
	marketInfo, openOrdersInfo, owner := accounts[0], accounts[1], accounts[2]
	coinVault, pcVault, coinWallet, pcWallet, vaultSigner := accounts[3], accounts[4], accounts[5], accounts[6], accounts[7]
	market, err := e.loadMarket(marketInfo)
	if err != nil {
		return err
	}
	openOrders, err := e.loadOpenOrders(openOrdersInfo, marketInfo.Key)
	if err != nil {
		return err
	}
	if !owner.IsSigner {
		return fmt.Errorf("%w: %s", backend.ErrMissingSigner, owner.Key)
	}
	if openOrders.Owner != owner.Key {
		return ErrWrongOwner
	}
	if coinVault.Key != market.BaseVault || pcVault.Key != market.QuoteVault {
		return ErrWrongAccount
	}
	signer, err := serum.VaultSigner(marketInfo.Key, market.VaultSignerNonce, e.id)
	if err != nil || signer != vaultSigner.Key {
		return fmt.Errorf("%w: vault signer %s", ErrWrongAccount, vaultSigner.Key)
	}
	if len(accounts) > 9 {
		referrer, err := spltoken.ParseAccount(accounts[9].Account)
		if err != nil {
			return err
		}
		if referrer.Mint != market.QuoteToken {
			return fmt.Errorf("%w: referrer %s", ErrWrongMint, accounts[9].Key)
		}
	}
	seeds := serum.VaultSignerSeeds(marketInfo.Key, market.VaultSignerNonce)
	base, quote := openOrders.BaseTokenFree, openOrders.QuoteTokenFree
	if base > 0 {
		if err := ctx.Invoke(spltoken.InstructionTransfer(coinVault.Key, coinWallet.Key, signer, base), seeds); err != nil {
			return err
		}
	}
	if quote > 0 {
		if err := ctx.Invoke(spltoken.InstructionTransfer(pcVault.Key, pcWallet.Key, signer, quote), seeds); err != nil {
			return err
		}
	}
	openOrders.BaseTokenFree, openOrders.BaseTokenTotal = 0, openOrders.BaseTokenTotal-base
	openOrders.QuoteTokenFree, openOrders.QuoteTokenTotal = 0, openOrders.QuoteTokenTotal-quote
	ctx.Log("settle base %d quote %d", base, quote)
	copy(openOrdersInfo.Data, openOrders.Pack())
	return nil
}

// consumeEvents credits makers from the event queue. It stops at the first
// event whose open orders account was not passed in.
func (e *Engine) consumeEvents(accounts []*backend.AccountInfo, limit uint16) error {
	if len(accounts) < 5 {
		return ErrMissingAccounts
	}
	n := len(accounts)
	marketInfo, eventInfo := accounts[n-4], accounts[n-3]
	market, err := e.loadMarket(marketInfo)
	if err != nil {
		return err
	}
	if eventInfo.Key != market.EventQueue || eventInfo.Owner != e.id {
		return ErrWrongAccount
	}
	events, err := serum.UnpackEventQueue(eventInfo.Data)
	if err != nil {
		return err
	}
	infos := make(map[solana.PublicKey]*backend.AccountInfo)
	layouts := make(map[solana.PublicKey]*serum.OpenOrdersLayout)
	for _, info := range accounts[:n-4] {
		openOrders, err := e.loadOpenOrders(info, marketInfo.Key)
		if err != nil {
			return err
		}
		infos[info.Key] = info
		layouts[info.Key] = openOrders
	}
	consumed := 0
	for consumed < int(limit) && len(events.Nodes) > 0 {
		event := events.Nodes[0]
		openOrders, ok := layouts[event.OpenOrders]
		if !ok {
			break
		}
		switch {
		case event.IsFill() && event.IsBid():
			openOrders.QuoteTokenTotal -= event.NativeQuantityPaid
			openOrders.BaseTokenFree += event.NativeQuantityReleased
			openOrders.BaseTokenTotal += event.NativeQuantityReleased
		case event.IsFill():
			openOrders.BaseTokenTotal -= event.NativeQuantityPaid
			openOrders.QuoteTokenFree += event.NativeQuantityReleased
			openOrders.QuoteTokenTotal += event.NativeQuantityReleased
		case event.EventFlag&serum.EventFlagOut != 0:
			openOrders.RemoveOrder(event.OpenOrdersSlot)
			if event.IsBid() {
				openOrders.QuoteTokenFree += event.NativeQuantityReleased
			} else {
				openOrders.BaseTokenFree += event.NativeQuantityReleased
			}
		}
		events.Pop(1)
		consumed++
	}
	e.log.Printf("consumed %d events on %s", consumed, marketInfo.Key)
	for key, info := range infos {
		copy(info.Data, layouts[key].Pack())
	}
	events.Pack(eventInfo.Data)
	return nil
}
