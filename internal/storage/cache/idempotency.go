package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/avstrong/roomshare/internal/roomshare"
)

// Idempotency remembers which booking answered a given idempotency key for
// ttl after the key was first used.
type Idempotency struct {
	store *gocache.Cache
	ttl   time.Duration
}

func NewIdempotency(ttl time.Duration) *Idempotency {
	return &Idempotency{
		store: gocache.New(ttl, 2*ttl), //nolint:gomnd
		ttl:   ttl,
	}
}

func (i *Idempotency) Get(key string) (roomshare.BookingID, bool) {
	v, found := i.store.Get(key)
	if !found {
		return 0, false
	}

	id, ok := v.(roomshare.BookingID)

	return id, ok
}

func (i *Idempotency) Put(key string, id roomshare.BookingID) {
	i.store.Set(key, id, i.ttl)
}
