package storage

import (
	"context"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dappvibe/defi-lp-manager/internal/model"
)

// MemoryStore is an in-memory Store, used in tests and when no database
// is configured. State does not survive restarts.
type MemoryStore struct {
	mu       sync.RWMutex
	messages map[string]model.TrackedMessage
	alerts   map[string]model.PriceAlert
	wallets  map[common.Address]model.MonitoredWallet
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages: make(map[string]model.TrackedMessage),
		alerts:   make(map[string]model.PriceAlert),
		wallets:  make(map[common.Address]model.MonitoredWallet),
	}
}

func (s *MemoryStore) PutMessage(_ context.Context, msg model.TrackedMessage) error {
	s.mu.Lock()
	s.messages[msg.ID] = msg
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetMessage(_ context.Context, id string) (model.TrackedMessage, bool, error) {
	s.mu.RLock()
	msg, ok := s.messages[id]
	s.mu.RUnlock()
	return msg, ok, nil
}

func (s *MemoryStore) DeleteMessage(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.messages, id)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) MessagesByPrefix(_ context.Context, prefix string) ([]model.TrackedMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.TrackedMessage, 0)
	for id, msg := range s.messages {
		if strings.HasPrefix(id, prefix) {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (s *MemoryStore) PutAlert(_ context.Context, alert model.PriceAlert) error {
	s.mu.Lock()
	s.alerts[alert.ID] = alert
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) DeleteAlert(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.alerts, id)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) AlertsByPool(_ context.Context, pool common.Address) ([]model.PriceAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.PriceAlert, 0)
	for _, alert := range s.alerts {
		if alert.Pool == pool {
			out = append(out, alert)
		}
	}
	return out, nil
}

func (s *MemoryStore) Alerts(_ context.Context) ([]model.PriceAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.PriceAlert, 0, len(s.alerts))
	for _, alert := range s.alerts {
		out = append(out, alert)
	}
	return out, nil
}

func (s *MemoryStore) PutWallet(_ context.Context, wallet model.MonitoredWallet) error {
	s.mu.Lock()
	s.wallets[wallet.Address] = wallet
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetWallet(_ context.Context, address common.Address) (model.MonitoredWallet, bool, error) {
	s.mu.RLock()
	wallet, ok := s.wallets[address]
	s.mu.RUnlock()
	return wallet, ok, nil
}

func (s *MemoryStore) DeleteWallet(_ context.Context, address common.Address) error {
	s.mu.Lock()
	delete(s.wallets, address)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Wallets(_ context.Context) ([]model.MonitoredWallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.MonitoredWallet, 0, len(s.wallets))
	for _, wallet := range s.wallets {
		out = append(out, wallet)
	}
	return out, nil
}

func (s *MemoryStore) Close() {}
