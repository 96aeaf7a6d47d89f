package serum

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/badgerodon/collections/stack"
	"github.com/gagliardetto/solana-go"
)

const (
	AccountFlagInitialized  = uint64(1) << 0
	AccountFlagMarket       = uint64(1) << 1
	AccountFlagOpenOrders   = uint64(1) << 2
	AccountFlagRequestQueue = uint64(1) << 3
	AccountFlagEventQueue   = uint64(1) << 4
	AccountFlagBids         = uint64(1) << 5
	AccountFlagAsks         = uint64(1) << 6
	AccountFlagDisabled     = uint64(1) << 7
)

var (
	HeadPadding = [5]byte{'s', 'e', 'r', 'u', 'm'}
	TailPadding = [7]byte{'p', 'a', 'd', 'd', 'i', 'n', 'g'}
)

var (
	MarketLayoutSize = 388
)

type MarketLayout struct {
	Data1                  [5]byte
	AccountFlag            uint64
	OwnAddress             solana.PublicKey
	VaultSignerNonce       uint64
	BaseToken              solana.PublicKey
	QuoteToken             solana.PublicKey
	BaseVault              solana.PublicKey
	BaseDepositsTotal      uint64
	BaseFeesAccrued        uint64
	QuoteVault             solana.PublicKey
	QuoteDepositsTotal     uint64
	QuoteFeesAccrued       uint64
	QuoteDustThreshold     uint64
	RequestQueue           solana.PublicKey
	EventQueue             solana.PublicKey
	Bids                   solana.PublicKey
	Asks                   solana.PublicKey
	BaseLotSize            uint64
	QuoteLotSize           uint64
	FeeRateBps             uint64
	ReferrerRebatesAccrued uint64
	Data2                  [7]byte
}

type KeyedMarket struct {
	Key    solana.PublicKey
	Height uint64
	MarketLayout
}

func UnpackMarket(data []byte) (*MarketLayout, error) {
	if len(data) != MarketLayoutSize {
		return nil, fmt.Errorf("market data size is not valid, expected: %d, actual: %d", MarketLayoutSize, len(data))
	}
	market := &MarketLayout{}
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, market); err != nil {
		return nil, err
	}
	if market.AccountFlag&(AccountFlagInitialized|AccountFlagMarket) != AccountFlagInitialized|AccountFlagMarket {
		return nil, fmt.Errorf("account is not an initialized market, flags: %d", market.AccountFlag)
	}
	return market, nil
}

func (m *MarketLayout) Pack() []byte {
	buf := bytes.NewBuffer(make([]byte, 0, MarketLayoutSize))
	binary.Write(buf, binary.LittleEndian, m)
	return buf.Bytes()
}

// U128 is an order id: the price in the high 64 bits, a sequence number in
// the low 64 bits, little endian.
type U128 struct {
	Id [16]uint8
}

func NewOrderId(price uint64, seqNum uint64) U128 {
	id := U128{}
	binary.LittleEndian.PutUint64(id.Id[0:8], seqNum)
	binary.LittleEndian.PutUint64(id.Id[8:16], price)
	return id
}

func (u U128) Price() uint64 {
	return binary.LittleEndian.Uint64(u.Id[8:16])
}

func (u U128) SeqNum() uint64 {
	return binary.LittleEndian.Uint64(u.Id[0:8])
}

func (u U128) Less(o U128) bool {
	if u.Price() != o.Price() {
		return u.Price() < o.Price()
	}
	return u.SeqNum() < o.SeqNum()
}

func (u U128) bit(i int) uint8 {
	// bit 127 is the most significant
	return (u.Id[15-i/8] >> (7 - uint(i%8))) & 1
}

type Order struct {
	U128
}

type Client struct {
	Id uint64
}

var (
	OpenOrdersLayoutSize = 3228
	OpenOrdersSlots      = 128
)

type OpenOrdersLayout struct {
	Data1                  [5]byte
	AccountFlag            uint64
	Market                 solana.PublicKey
	Owner                  solana.PublicKey
	BaseTokenFree          uint64
	BaseTokenTotal         uint64
	QuoteTokenFree         uint64
	QuoteTokenTotal        uint64
	FreeSlotBits           U128
	IsBidBits              U128
	Orders                 [128]Order
	Clients                [128]Client
	ReferrerRebatesAccrued uint64
	Data2                  [7]byte
}

type KeyedOpenOrders struct {
	Key    solana.PublicKey
	Height uint64
	OpenOrdersLayout
}

func UnpackOpenOrders(data []byte) (*OpenOrdersLayout, error) {
	if len(data) != OpenOrdersLayoutSize {
		return nil, fmt.Errorf("open orders data size is not valid, expected: %d, actual: %d", OpenOrdersLayoutSize, len(data))
	}
	openOrders := &OpenOrdersLayout{}
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, openOrders); err != nil {
		return nil, err
	}
	return openOrders, nil
}

func (o *OpenOrdersLayout) Pack() []byte {
	buf := bytes.NewBuffer(make([]byte, 0, OpenOrdersLayoutSize))
	binary.Write(buf, binary.LittleEndian, o)
	return buf.Bytes()
}

func (o *OpenOrdersLayout) Initialized() bool {
	return o.AccountFlag&(AccountFlagInitialized|AccountFlagOpenOrders) == AccountFlagInitialized|AccountFlagOpenOrders
}

func slotBit(bits *U128, slot uint8) bool {
	return bits.Id[slot/8]&(1<<(slot%8)) != 0
}

func setSlotBit(bits *U128, slot uint8, on bool) {
	if on {
		bits.Id[slot/8] |= 1 << (slot % 8)
	} else {
		bits.Id[slot/8] &^= 1 << (slot % 8)
	}
}

// AddOrder takes a free slot for order and returns it.
func (o *OpenOrdersLayout) AddOrder(id U128, side Side, clientId uint64) (uint8, error) {
	for i := 0; i < OpenOrdersSlots; i++ {
		slot := uint8(i)
		if !slotBit(&o.FreeSlotBits, slot) {
			continue
		}
		setSlotBit(&o.FreeSlotBits, slot, false)
		setSlotBit(&o.IsBidBits, slot, side == Bid)
		o.Orders[slot] = Order{id}
		o.Clients[slot] = Client{clientId}
		return slot, nil
	}
	return 0, fmt.Errorf("too many open orders")
}

func (o *OpenOrdersLayout) RemoveOrder(slot uint8) {
	setSlotBit(&o.FreeSlotBits, slot, true)
	setSlotBit(&o.IsBidBits, slot, false)
	o.Orders[slot] = Order{}
	o.Clients[slot] = Client{}
}

// OpenSlots lists the slots that hold an order.
func (o *OpenOrdersLayout) OpenSlots() []uint8 {
	slots := make([]uint8, 0)
	for i := 0; i < OpenOrdersSlots; i++ {
		if !slotBit(&o.FreeSlotBits, uint8(i)) {
			slots = append(slots, uint8(i))
		}
	}
	return slots
}

var (
	SlabHeaderLayoutSize = 32
)

type SlabHeaderLayout struct {
	BumpIndex    uint32
	Zero0        uint32
	FreeListLen  uint32
	Zero1        uint32
	FreeListHead uint32
	Root         uint32
	LeafCount    uint32
	Zero2        uint32
}

var (
	UninitializedNodeType = uint32(0)
	InnerNodeType         = uint32(1)
	LeafNodeType          = uint32(2)
	FreeNodeType          = uint32(3)
	LastFreeNodeType      = uint32(4)
)

var (
	UninitializedNodeSize = 0
	InnerNodeSize         = 28
	LeafNodeSize          = 68
	FreeNodeSize          = 4
	LastFreeNodeSize      = 0
)

type UninitializedNode struct {
}

type InnerNode struct {
	PrefixLen uint32
	Key       U128
	Children  [2]uint32
}

type LeafNode struct {
	OwnerSlot     uint8
	FeeTier       uint8
	Data1         [2]uint8
	Key           U128
	Owner         solana.PublicKey
	Quantity      uint64
	ClientOrderId uint64
}

type FreeNode struct {
	Next uint32
}

type LastFreeNode struct {
}

type SlabNodeLayout struct {
	Tag  uint32
	Node interface{}
}

var (
	SlabNodeNativeLayoutSize = 72
	OrderBookOverhead        = 5 + 8 + SlabHeaderLayoutSize + 7
)

type SlabLayout struct {
	Header SlabHeaderLayout
	Nodes  []*SlabNodeLayout
}

type OrderBookLayout struct {
	Data1       [5]byte
	AccountFlag uint64
	Slab        SlabLayout
	Data2       [7]byte
	capacity    int
}

type KeyedOrderBook struct {
	Key    solana.PublicKey
	Height uint64
	OrderBookLayout
}

// OrderBookSize is the account size of a book holding up to nodes slab nodes.
func OrderBookSize(nodes int) int {
	return OrderBookOverhead + nodes*SlabNodeNativeLayoutSize
}

func UnpackOrderBook(buf []byte) (*OrderBookLayout, error) {
	if len(buf) < OrderBookOverhead {
		return nil, fmt.Errorf("order book data size is too small: %d", len(buf))
	}
	orderBook := &OrderBookLayout{capacity: (len(buf) - OrderBookOverhead) / SlabNodeNativeLayoutSize}
	index := 0
	copy(orderBook.Data1[:], buf[index:index+5])
	index += 5
	orderBook.AccountFlag = binary.LittleEndian.Uint64(buf[index : index+8])
	index += 8
	{
		slabHeaderReader := bytes.NewReader(buf[index : index+SlabHeaderLayoutSize])
		err := binary.Read(slabHeaderReader, binary.LittleEndian, &orderBook.Slab.Header)
		if err != nil {
			return nil, err
		}
		index += SlabHeaderLayoutSize
	}
	if int(orderBook.Slab.Header.BumpIndex) > orderBook.capacity {
		return nil, fmt.Errorf("order book bump index %d over capacity %d", orderBook.Slab.Header.BumpIndex, orderBook.capacity)
	}
	orderBook.Slab.Nodes = make([]*SlabNodeLayout, 0, orderBook.Slab.Header.BumpIndex)
	for i := 0; i < int(orderBook.Slab.Header.BumpIndex); i++ {
		slabNode := &SlabNodeLayout{Tag: binary.LittleEndian.Uint32(buf[index : index+4])}
		body := bytes.NewReader(buf[index+4 : index+SlabNodeNativeLayoutSize])
		var err error
		switch slabNode.Tag {
		case UninitializedNodeType:
			slabNode.Node = &UninitializedNode{}
		case InnerNodeType:
			node := &InnerNode{}
			err = binary.Read(body, binary.LittleEndian, node)
			slabNode.Node = node
		case LeafNodeType:
			node := &LeafNode{}
			err = binary.Read(body, binary.LittleEndian, node)
			slabNode.Node = node
		case FreeNodeType:
			node := &FreeNode{}
			err = binary.Read(body, binary.LittleEndian, node)
			slabNode.Node = node
		case LastFreeNodeType:
			slabNode.Node = &LastFreeNode{}
		default:
			return nil, fmt.Errorf("unknow node in order book slab node")
		}
		if err != nil {
			return nil, err
		}
		orderBook.Slab.Nodes = append(orderBook.Slab.Nodes, slabNode)
		index += SlabNodeNativeLayoutSize
	}
	copy(orderBook.Data2[:], buf[len(buf)-7:])
	return orderBook, nil
}

// Pack writes the book into buf, which must be the account it was read from.
func (ob *OrderBookLayout) Pack(buf []byte) error {
	if (len(buf)-OrderBookOverhead)/SlabNodeNativeLayoutSize < len(ob.Slab.Nodes) {
		return fmt.Errorf("order book is full")
	}
	for i := range buf {
		buf[i] = 0
	}
	index := 0
	copy(buf[index:], ob.Data1[:])
	index += 5
	binary.LittleEndian.PutUint64(buf[index:], ob.AccountFlag)
	index += 8
	header := bytes.NewBuffer(make([]byte, 0, SlabHeaderLayoutSize))
	binary.Write(header, binary.LittleEndian, &ob.Slab.Header)
	copy(buf[index:], header.Bytes())
	index += SlabHeaderLayoutSize
	for _, slabNode := range ob.Slab.Nodes {
		binary.LittleEndian.PutUint32(buf[index:], slabNode.Tag)
		node := bytes.NewBuffer(make([]byte, 0, SlabNodeNativeLayoutSize-4))
		switch n := slabNode.Node.(type) {
		case *InnerNode, *LeafNode, *FreeNode:
			binary.Write(node, binary.LittleEndian, n)
		}
		copy(buf[index+4:index+SlabNodeNativeLayoutSize], node.Bytes())
		index += SlabNodeNativeLayoutSize
	}
	copy(buf[len(buf)-7:], ob.Data2[:])
	return nil
}

// Items walks the book from the best price: descending keys for bids,
// ascending for asks. size <= 0 returns every leaf.
func (slab *SlabLayout) Items(bids bool, size int) []*LeafNode {
	leaves := make([]*LeafNode, 0)
	if slab.Header.LeafCount == 0 {
		return leaves
	}
	stack := stack.New()
	stack.Push(slab.Header.Root)
	for stack.Len() > 0 {
		index := stack.Pop().(uint32)
		node := slab.Nodes[index]
		if node.Tag == LeafNodeType {
			leafNode := node.Node.(*LeafNode)
			leaves = append(leaves, leafNode)
			if size > 0 && len(leaves) >= size {
				return leaves
			}
		} else if node.Tag == InnerNodeType {
			innerNode := node.Node.(*InnerNode)
			if bids {
				stack.Push(innerNode.Children[0])
				stack.Push(innerNode.Children[1])
			} else {
				stack.Push(innerNode.Children[1])
				stack.Push(innerNode.Children[0])
			}
		}
	}
	return leaves
}

// Rebuild replaces the slab with a crit-bit tree over leaves.
func (slab *SlabLayout) Rebuild(leaves []*LeafNode) {
	sorted := append([]*LeafNode(nil), leaves...)
	sortLeaves(sorted)
	slab.Nodes = make([]*SlabNodeLayout, 0, 2*len(sorted))
	slab.Header = SlabHeaderLayout{LeafCount: uint32(len(sorted))}
	if len(sorted) > 0 {
		slab.Header.Root = slab.build(sorted)
	}
	slab.Header.BumpIndex = uint32(len(slab.Nodes))
}

func (slab *SlabLayout) build(leaves []*LeafNode) uint32 {
	if len(leaves) == 1 {
		slab.Nodes = append(slab.Nodes, &SlabNodeLayout{Tag: LeafNodeType, Node: leaves[0]})
		return uint32(len(slab.Nodes) - 1)
	}
	// split where the first differing bit between the ends flips
	first, last := leaves[0].Key, leaves[len(leaves)-1].Key
	prefix := 0
	for prefix < 128 && first.bit(prefix) == last.bit(prefix) {
		prefix++
	}
	split := 1
	for prefix < 128 && split < len(leaves)-1 && leaves[split].Key.bit(prefix) == 0 {
		split++
	}
	inner := &InnerNode{PrefixLen: uint32(prefix), Key: first}
	slab.Nodes = append(slab.Nodes, &SlabNodeLayout{Tag: InnerNodeType, Node: inner})
	index := uint32(len(slab.Nodes) - 1)
	inner.Children[0] = slab.build(leaves[:split])
	inner.Children[1] = slab.build(leaves[split:])
	return index
}

func sortLeaves(leaves []*LeafNode) {
	sort.Slice(leaves, func(i, j int) bool {
		return leaves[i].Key.Less(leaves[j].Key)
	})
}
