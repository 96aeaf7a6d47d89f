package store

import (
	"context"
	"log"
	"sync"
)

// Store writes journal records in the background. Reads go straight to
// the Dao.
type Store struct {
	ctx        context.Context
	cancel     context.CancelFunc
	log        *log.Logger
	swapChan   chan *SwapRecord
	marketChan chan *MarketRecord
	dao        *Dao
	wg         sync.WaitGroup
	mu         sync.RWMutex
	stopped    bool
}

// NewStore detaches from ctx cancellation. The writer runs until Stop.
func NewStore(ctx context.Context, dao *Dao, logger *log.Logger) *Store {
	s := &Store{
		log:        logger,
		swapChan:   make(chan *SwapRecord, 32),
		marketChan: make(chan *MarketRecord, 32),
		dao:        dao,
	}
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	return s
}

func (s *Store) Start() {
	s.wg.Add(1)
	go s.store()
}

// Stop ends the writer after it has saved everything already queued.
func (s *Store) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}

func (s *Store) store() {
	defer s.wg.Done()
	for {
		select {
		case record := <-s.swapChan:
			s.saveSwap(record)
		case record := <-s.marketChan:
			s.saveMarket(record)
		case <-s.ctx.Done():
			s.drain()
			return
		}
	}
}

func (s *Store) drain() {
	for {
		select {
		case record := <-s.swapChan:
			s.saveSwap(record)
		case record := <-s.marketChan:
			s.saveMarket(record)
		default:
			return
		}
	}
}

func (s *Store) saveSwap(record *SwapRecord) {
	if err := s.dao.SaveSwap(record); err != nil {
		s.log.Printf("save swap on %s: %s", record.Binding, err)
	}
}

func (s *Store) saveMarket(record *MarketRecord) {
	if err := s.dao.SaveMarket(record); err != nil {
		s.log.Printf("save market %s: %s", record.Binding, err)
	}
}

// StoreSwap queues a record. It is dropped, with a log line, once the
// store has stopped.
func (s *Store) StoreSwap(record *SwapRecord) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		s.log.Printf("store stopped, drop swap on %s", record.Binding)
		return
	}
	s.swapChan <- record
}

func (s *Store) StoreMarket(record *MarketRecord) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		s.log.Printf("store stopped, drop market %s", record.Binding)
		return
	}
	s.marketChan <- record
}

func (s *Store) GetSwap(id uint64) ([]*SwapRecord, error) {
	return s.dao.SelectSwap(id)
}

func (s *Store) GetSwaps(binding string, limit int) ([]*SwapRecord, error) {
	return s.dao.SelectSwaps(binding, limit)
}

func (s *Store) GetMarkets(saver string) ([]*MarketRecord, error) {
	return s.dao.SelectMarkets(saver)
}
