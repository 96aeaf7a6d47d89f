package serum

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

var (
	QueueHeaderLayoutSize = 37
	QueueOverhead         = QueueHeaderLayoutSize + 7
)

type QueueHeaderLayout struct {
	Data1       [5]byte
	AccountFlag uint64
	Head        uint64
	Count       uint64
	SeqNum      uint64
}

const (
	RequestFlagNewOrder    = uint8(1) << 0
	RequestFlagCancelOrder = uint8(1) << 1
	RequestFlagBid         = uint8(1) << 2
	RequestFlagPostOnly    = uint8(1) << 3
	RequestFlagIoc         = uint8(1) << 4
)

var (
	RequestNodeLayoutSize = 80
)

type RequestNodeLayout struct {
	RequestFlag               uint8
	OpenOrdersSlot            uint8
	FeeTier                   uint8
	Data1                     [5]byte
	MaxBaseSizeOrCancelId     uint64
	NativeQuoteQuantityLocked uint64
	Order                     Order
	OpenOrders                solana.PublicKey
	ClientOrderId             uint64
}

// RequestQueueLayout only carries the header: the matching engine takes
// orders synchronously and uses the queue for its sequence number.
type RequestQueueLayout struct {
	Header QueueHeaderLayout
}

func UnpackRequestQueue(buf []byte) (*RequestQueueLayout, error) {
	if len(buf) < QueueOverhead {
		return nil, fmt.Errorf("request queue data size is too small: %d", len(buf))
	}
	request := &RequestQueueLayout{}
	if err := binary.Read(bytes.NewReader(buf[:QueueHeaderLayoutSize]), binary.LittleEndian, &request.Header); err != nil {
		return nil, err
	}
	if request.Header.AccountFlag&AccountFlagRequestQueue == 0 {
		return nil, fmt.Errorf("account is not a request queue")
	}
	return request, nil
}

func (r *RequestQueueLayout) Pack(buf []byte) {
	header := bytes.NewBuffer(make([]byte, 0, QueueHeaderLayoutSize))
	binary.Write(header, binary.LittleEndian, &r.Header)
	copy(buf, header.Bytes())
}

// NextSeqNum hands out an order sequence number.
func (r *RequestQueueLayout) NextSeqNum() uint64 {
	seqNum := r.Header.SeqNum
	r.Header.SeqNum++
	return seqNum
}

const (
	EventFlagFill         = uint8(1) << 0
	EventFlagOut          = uint8(1) << 1
	EventFlagBid          = uint8(1) << 2
	EventFlagMaker        = uint8(1) << 3
	EventFlagReleaseFunds = uint8(1) << 4
)

var (
	EventNodeLayoutSize = 88
)

type EventNodeLayout struct {
	EventFlag              uint8
	OpenOrdersSlot         uint8
	FeeTier                uint8
	Data1                  [5]byte
	NativeQuantityReleased uint64
	NativeQuantityPaid     uint64
	NativeFeeOrRebate      uint64
	Order                  Order
	OpenOrders             solana.PublicKey
	ClientOrderId          uint64
}

func (e *EventNodeLayout) IsFill() bool {
	return e.EventFlag&EventFlagFill != 0
}

func (e *EventNodeLayout) IsBid() bool {
	return e.EventFlag&EventFlagBid != 0
}

type EventQueueLayout struct {
	Header   QueueHeaderLayout
	Nodes    []*EventNodeLayout
	capacity int
}

type KeyedEventQueue struct {
	Key    solana.PublicKey
	Height uint64
	EventQueueLayout
}

// EventQueueSize is the account size of a queue holding up to events events.
func EventQueueSize(events int) int {
	return QueueOverhead + events*EventNodeLayoutSize
}

func UnpackEventQueue(buf []byte) (*EventQueueLayout, error) {
	if len(buf) < QueueOverhead {
		return nil, fmt.Errorf("event queue data size is too small: %d", len(buf))
	}
	event := &EventQueueLayout{capacity: (len(buf) - QueueOverhead) / EventNodeLayoutSize}
	if err := binary.Read(bytes.NewReader(buf[:QueueHeaderLayoutSize]), binary.LittleEndian, &event.Header); err != nil {
		return nil, err
	}
	if event.Header.AccountFlag&AccountFlagEventQueue == 0 {
		return nil, fmt.Errorf("account is not an event queue")
	}
	if event.capacity == 0 || int(event.Header.Count) > event.capacity {
		return nil, fmt.Errorf("event queue count %d over capacity %d", event.Header.Count, event.capacity)
	}
	event.Nodes = make([]*EventNodeLayout, 0, event.Header.Count)
	for i := 0; i < int(event.Header.Count); i++ {
		index := (int(event.Header.Head) + i) % event.capacity
		start := QueueHeaderLayoutSize + EventNodeLayoutSize*index
		eventNode := &EventNodeLayout{}
		eventNodeReader := bytes.NewReader(buf[start : start+EventNodeLayoutSize])
		if err := binary.Read(eventNodeReader, binary.LittleEndian, eventNode); err != nil {
			return nil, err
		}
		event.Nodes = append(event.Nodes, eventNode)
	}
	return event, nil
}

func (q *EventQueueLayout) Push(event *EventNodeLayout) error {
	if len(q.Nodes) >= q.capacity {
		return fmt.Errorf("event queue is full")
	}
	q.Nodes = append(q.Nodes, event)
	q.Header.Count = uint64(len(q.Nodes))
	q.Header.SeqNum++
	return nil
}

// Pop drops the n oldest events.
func (q *EventQueueLayout) Pop(n int) {
	if n > len(q.Nodes) {
		n = len(q.Nodes)
	}
	q.Nodes = q.Nodes[n:]
	q.Header.Head = (q.Header.Head + uint64(n)) % uint64(q.capacity)
	q.Header.Count = uint64(len(q.Nodes))
}

func (q *EventQueueLayout) Pack(buf []byte) {
	header := bytes.NewBuffer(make([]byte, 0, QueueHeaderLayoutSize))
	binary.Write(header, binary.LittleEndian, &q.Header)
	copy(buf, header.Bytes())
	for i, eventNode := range q.Nodes {
		index := (int(q.Header.Head) + i) % q.capacity
		start := QueueHeaderLayoutSize + EventNodeLayoutSize*index
		node := bytes.NewBuffer(make([]byte, 0, EventNodeLayoutSize))
		binary.Write(node, binary.LittleEndian, eventNode)
		copy(buf[start:start+EventNodeLayoutSize], node.Bytes())
	}
}
