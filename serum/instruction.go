package serum

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/egaotan/serum-saver/program"
	"github.com/gagliardetto/solana-go"
)

const (
	InstructionConsumeEventsTag  = uint32(3)
	InstructionSettleFundsTag    = uint32(5)
	InstructionNewOrderV3Tag     = uint32(10)
	InstructionInitOpenOrdersTag = uint32(15)
)

type Side uint32

const (
	Bid Side = 0
	Ask Side = 1
)

func (s Side) String() string {
	if s == Bid {
		return "bid"
	}
	return "ask"
}

type OrderType uint32

const (
	Limit             OrderType = 0
	ImmediateOrCancel OrderType = 1
	PostOnly          OrderType = 2
)

type SelfTradeBehavior uint32

const (
	DecrementTake    SelfTradeBehavior = 0
	CancelProvide    SelfTradeBehavior = 1
	AbortTransaction SelfTradeBehavior = 2
)

const (
	MaxLimit = uint16(65535)
)

var (
	ErrZeroValue          = errors.New("order value must be greater than zero")
	ErrInvalidInstruction = errors.New("invalid dex instruction")
	ErrOutOfRange         = errors.New("value is out of u64 range")
)

var (
	NewOrderV3DataSize = 5 + 46
)

type NewOrderV3 struct {
	Side                        Side
	LimitPrice                  uint64
	MaxCoinQty                  uint64
	MaxNativePcQtyIncludingFees uint64
	SelfTradeBehavior           SelfTradeBehavior
	OrderType                   OrderType
	ClientOrderId               uint64
	Limit                       uint16
}

type NewOrderAccounts struct {
	Market       solana.PublicKey
	OpenOrders   solana.PublicKey
	RequestQueue solana.PublicKey
	EventQueue   solana.PublicKey
	Bids         solana.PublicKey
	Asks         solana.PublicKey
	OrderPayer   solana.PublicKey
	Owner        solana.PublicKey
	CoinVault    solana.PublicKey
	PcVault      solana.PublicKey
	TokenProgram solana.PublicKey
	Rent         solana.PublicKey
	SrmAccount   *solana.PublicKey
}

type SettleFundsAccounts struct {
	Market       solana.PublicKey
	OpenOrders   solana.PublicKey
	Owner        solana.PublicKey
	CoinVault    solana.PublicKey
	PcVault      solana.PublicKey
	CoinWallet   solana.PublicKey
	PcWallet     solana.PublicKey
	VaultSigner  solana.PublicKey
	TokenProgram solana.PublicKey
	Referrer     *solana.PublicKey
}

func header(tag uint32, size int) []byte {
	data := make([]byte, size)
	data[0] = 0
	binary.LittleEndian.PutUint32(data[1:], tag)
	return data
}

// InstructionInitOpenOrders registers openOrders with market. The market is
// passed a second time in the slot older dex versions used for the rent sysvar.
func InstructionInitOpenOrders(dex solana.PublicKey, openOrders solana.PublicKey, owner solana.PublicKey, market solana.PublicKey, marketAuthority *solana.PublicKey) *program.Instruction {
	accounts := []*solana.AccountMeta{
		{PublicKey: openOrders, IsSigner: false, IsWritable: true},
		{PublicKey: owner, IsSigner: true, IsWritable: false},
		{PublicKey: market, IsSigner: false, IsWritable: false},
		{PublicKey: market, IsSigner: false, IsWritable: false},
	}
	if marketAuthority != nil {
		accounts = append(accounts, &solana.AccountMeta{PublicKey: *marketAuthority, IsSigner: true, IsWritable: false})
	}
	return &program.Instruction{
		IsAccounts:  accounts,
		IsData:      header(InstructionInitOpenOrdersTag, 5),
		IsProgramID: dex,
	}
}

func InstructionNewOrder(dex solana.PublicKey, accounts *NewOrderAccounts, order *NewOrderV3) (*program.Instruction, error) {
	if order.LimitPrice == 0 || order.MaxCoinQty == 0 || order.MaxNativePcQtyIncludingFees == 0 {
		return nil, ErrZeroValue
	}
	data := header(InstructionNewOrderV3Tag, NewOrderV3DataSize)
	binary.LittleEndian.PutUint32(data[5:], uint32(order.Side))
	binary.LittleEndian.PutUint64(data[9:], order.LimitPrice)
	binary.LittleEndian.PutUint64(data[17:], order.MaxCoinQty)
	binary.LittleEndian.PutUint64(data[25:], order.MaxNativePcQtyIncludingFees)
	binary.LittleEndian.PutUint32(data[33:], uint32(order.SelfTradeBehavior))
	binary.LittleEndian.PutUint32(data[37:], uint32(order.OrderType))
	binary.LittleEndian.PutUint64(data[41:], order.ClientOrderId)
	binary.LittleEndian.PutUint16(data[49:], order.Limit)
	metas := []*solana.AccountMeta{
		{PublicKey: accounts.Market, IsSigner: false, IsWritable: true},
		{PublicKey: accounts.OpenOrders, IsSigner: false, IsWritable: true},
		{PublicKey: accounts.RequestQueue, IsSigner: false, IsWritable: true},
		{PublicKey: accounts.EventQueue, IsSigner: false, IsWritable: true},
		{PublicKey: accounts.Bids, IsSigner: false, IsWritable: true},
		{PublicKey: accounts.Asks, IsSigner: false, IsWritable: true},
		{PublicKey: accounts.OrderPayer, IsSigner: false, IsWritable: true},
		{PublicKey: accounts.Owner, IsSigner: true, IsWritable: false},
		{PublicKey: accounts.CoinVault, IsSigner: false, IsWritable: true},
		{PublicKey: accounts.PcVault, IsSigner: false, IsWritable: true},
		{PublicKey: accounts.TokenProgram, IsSigner: false, IsWritable: false},
		{PublicKey: accounts.Rent, IsSigner: false, IsWritable: false},
	}
	if accounts.SrmAccount != nil {
		metas = append(metas, &solana.AccountMeta{PublicKey: *accounts.SrmAccount, IsSigner: false, IsWritable: false})
	}
	return &program.Instruction{
		IsAccounts:  metas,
		IsData:      data,
		IsProgramID: dex,
	}, nil
}

func InstructionSettleFunds(dex solana.PublicKey, accounts *SettleFundsAccounts) *program.Instruction {
	metas := []*solana.AccountMeta{
		{PublicKey: accounts.Market, IsSigner: false, IsWritable: true},
		{PublicKey: accounts.OpenOrders, IsSigner: false, IsWritable: true},
		{PublicKey: accounts.Owner, IsSigner: true, IsWritable: false},
		{PublicKey: accounts.CoinVault, IsSigner: false, IsWritable: true},
		{PublicKey: accounts.PcVault, IsSigner: false, IsWritable: true},
		{PublicKey: accounts.CoinWallet, IsSigner: false, IsWritable: true},
		{PublicKey: accounts.PcWallet, IsSigner: false, IsWritable: true},
		{PublicKey: accounts.VaultSigner, IsSigner: false, IsWritable: false},
		{PublicKey: accounts.TokenProgram, IsSigner: false, IsWritable: false},
	}
	if accounts.Referrer != nil {
		metas = append(metas, &solana.AccountMeta{PublicKey: *accounts.Referrer, IsSigner: false, IsWritable: true})
	}
	return &program.Instruction{
		IsAccounts:  metas,
		IsData:      header(InstructionSettleFundsTag, 5),
		IsProgramID: dex,
	}
}

func InstructionConsumeEvents(dex solana.PublicKey, openOrders []solana.PublicKey, market, eventQueue, coinFeeReceivable, pcFeeReceivable solana.PublicKey, limit uint16) *program.Instruction {
	metas := make([]*solana.AccountMeta, 0, len(openOrders)+4)
	for _, key := range openOrders {
		metas = append(metas, &solana.AccountMeta{PublicKey: key, IsSigner: false, IsWritable: true})
	}
	metas = append(metas,
		&solana.AccountMeta{PublicKey: market, IsSigner: false, IsWritable: true},
		&solana.AccountMeta{PublicKey: eventQueue, IsSigner: false, IsWritable: true},
		&solana.AccountMeta{PublicKey: coinFeeReceivable, IsSigner: false, IsWritable: true},
		&solana.AccountMeta{PublicKey: pcFeeReceivable, IsSigner: false, IsWritable: true},
	)
	data := header(InstructionConsumeEventsTag, 7)
	binary.LittleEndian.PutUint16(data[5:], limit)
	return &program.Instruction{
		IsAccounts:  metas,
		IsData:      data,
		IsProgramID: dex,
	}
}

// DecodeInstruction splits instruction data into its tag and body.
func DecodeInstruction(data []byte) (uint32, []byte, error) {
	if len(data) < 5 {
		return 0, nil, fmt.Errorf("%w: data too short", ErrInvalidInstruction)
	}
	if data[0] != 0 {
		return 0, nil, fmt.Errorf("%w: unknown version %d", ErrInvalidInstruction, data[0])
	}
	return binary.LittleEndian.Uint32(data[1:5]), data[5:], nil
}

func DecodeNewOrder(data []byte) (*NewOrderV3, error) {
	tag, body, err := DecodeInstruction(data)
	if err != nil {
		return nil, err
	}
	if tag != InstructionNewOrderV3Tag || len(body) != NewOrderV3DataSize-5 {
		return nil, fmt.Errorf("%w: not a new order v3", ErrInvalidInstruction)
	}
	order := &NewOrderV3{
		Side:                        Side(binary.LittleEndian.Uint32(body[0:])),
		LimitPrice:                  binary.LittleEndian.Uint64(body[4:]),
		MaxCoinQty:                  binary.LittleEndian.Uint64(body[12:]),
		MaxNativePcQtyIncludingFees: binary.LittleEndian.Uint64(body[20:]),
		SelfTradeBehavior:           SelfTradeBehavior(binary.LittleEndian.Uint32(body[28:])),
		OrderType:                   OrderType(binary.LittleEndian.Uint32(body[32:])),
		ClientOrderId:               binary.LittleEndian.Uint64(body[36:]),
		Limit:                       binary.LittleEndian.Uint16(body[44:]),
	}
	if order.Side > Ask || order.OrderType > PostOnly || order.SelfTradeBehavior > AbortTransaction {
		return nil, fmt.Errorf("%w: bad enum value", ErrInvalidInstruction)
	}
	if order.LimitPrice == 0 || order.MaxCoinQty == 0 || order.MaxNativePcQtyIncludingFees == 0 {
		return nil, ErrZeroValue
	}
	return order, nil
}

func DecodeConsumeEvents(data []byte) (uint16, error) {
	tag, body, err := DecodeInstruction(data)
	if err != nil {
		return 0, err
	}
	if tag != InstructionConsumeEventsTag || len(body) != 2 {
		return 0, fmt.Errorf("%w: not consume events", ErrInvalidInstruction)
	}
	return binary.LittleEndian.Uint16(body), nil
}
