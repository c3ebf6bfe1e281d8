package telegram

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// pendingURL is a link waiting for the user to pick a format. Callback
// data is capped at 64 bytes, so buttons carry a token instead of the URL.
type pendingURL struct {
	url     string
	userID  int64
	created time.Time
}

// pendingStore is a bounded, expiring token -> URL map.
type pendingStore struct {
	mu    sync.Mutex
	items map[string]pendingURL
	max   int
	ttl   time.Duration
	now   func() time.Time
}

func newPendingStore(max int, ttl time.Duration) *pendingStore {
	return &pendingStore{
		items: make(map[string]pendingURL),
		max:   max,
		ttl:   ttl,
		now:   time.Now,
	}
}

func newToken() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

// put stores url for userID and returns its token.
func (p *pendingStore) put(url string, userID int64) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	p.expireLocked(now)
	if len(p.items) >= p.max {
		p.evictOldestLocked()
	}
	token := newToken()
	p.items[token] = pendingURL{url: url, userID: userID, created: now}
	return token
}

// take removes and returns the URL behind token. It fails for unknown or
// expired tokens and for tokens owned by another user.
func (p *pendingStore) take(token string, userID int64) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	item, ok := p.items[token]
	if !ok || item.userID != userID {
		return "", false
	}
	delete(p.items, token)
	if p.now().Sub(item.created) > p.ttl {
		return "", false
	}
	return item.url, true
}

// owns reports whether token is live and belongs to userID, without
// consuming it.
func (p *pendingStore) owns(token string, userID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	item, ok := p.items[token]
	return ok && item.userID == userID && p.now().Sub(item.created) <= p.ttl
}

func (p *pendingStore) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

func (p *pendingStore) expireLocked(now time.Time) {
	for k, v := range p.items {
		if now.Sub(v.created) > p.ttl {
			delete(p.items, k)
		}
	}
}

func (p *pendingStore) evictOldestLocked() {
	var (
		oldestKey string
		oldest    time.Time
	)
	for k, v := range p.items {
		if oldestKey == "" || v.created.Before(oldest) {
			oldestKey, oldest = k, v.created
		}
	}
	delete(p.items, oldestKey)
}
