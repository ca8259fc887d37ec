package order

import (
	"sync"
)

// Book is the local mirror of exchange-side orders, keyed by client id.
// A single goroutine (the reconciler, driven by the engine loop) writes;
// observers may read concurrently.
type Book struct {
	mu     sync.RWMutex
	byCID  map[string]LiveOrder
	cidByX map[string]string // exchange id -> client id
}

// NewBook returns an empty mirror.
func NewBook() *Book {
	return &Book{
		byCID:  make(map[string]LiveOrder),
		cidByX: make(map[string]string),
	}
}

// Set inserts or replaces the entry for o.ClientID.
func (b *Book) Set(o LiveOrder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if prev, ok := b.byCID[o.ClientID]; ok && prev.ID != "" && prev.ID != o.ID {
		delete(b.cidByX, prev.ID)
	}
	b.byCID[o.ClientID] = o
	if o.ID != "" {
		b.cidByX[o.ID] = o.ClientID
	}
}

// Get looks up by client id.
func (b *Book) Get(clientID string) (LiveOrder, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	o, ok := b.byCID[clientID]
	return o, ok
}

// GetByExchangeID looks up by the id the exchange assigned.
func (b *Book) GetByExchangeID(id string) (LiveOrder, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	cid, ok := b.cidByX[id]
	if !ok {
		return LiveOrder{}, false
	}
	o, ok := b.byCID[cid]
	return o, ok
}

// Remove drops the entry for clientID.
func (b *Book) Remove(clientID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if o, ok := b.byCID[clientID]; ok {
		if o.ID != "" {
			delete(b.cidByX, o.ID)
		}
		delete(b.byCID, clientID)
	}
}

// Active returns the orders that may still rest on the exchange.
func (b *Book) Active() []LiveOrder {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]LiveOrder, 0, len(b.byCID))
	for _, o := range b.byCID {
		if o.Status.Active() {
			out = append(out, o)
		}
	}
	return out
}

// ActiveBySide returns the active orders on one side.
func (b *Book) ActiveBySide(side Side) []LiveOrder {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []LiveOrder
	for _, o := range b.byCID {
		if o.Side == side && o.Status.Active() {
			out = append(out, o)
		}
	}
	return out
}

// Len counts all entries, active or final.
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byCID)
}
