package utils

import (
	"sync"
	"time"
)

// Debouncer remembers when an alert last fired per key. It lives in memory
// only, so a restart clears the history.
type Debouncer struct {
	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
}

func NewDebouncer(now func() time.Time) *Debouncer {
	if now == nil {
		now = time.Now
	}
	return &Debouncer{last: make(map[string]time.Time), now: now}
}

// Allow reports whether key may fire now and, if so, records the firing.
// A non-positive window always allows.
func (d *Debouncer) Allow(key string, window time.Duration) bool {
	if window <= 0 {
		return true
	}
	now := d.now()
	d.mu.Lock()
	defer d.mu.Unlock()
	if ts, ok := d.last[key]; ok && now.Sub(ts) <= window {
		return false
	}
	d.last[key] = now
	return true
}

// Forget drops the history of a key so the next Allow fires.
func (d *Debouncer) Forget(key string) {
	d.mu.Lock()
	delete(d.last, key)
	d.mu.Unlock()
}

// DebounceKey joins a device id and alert kind
func DebounceKey(deviceID, kind string) string {
	return deviceID + "|" + kind
}

// KeyedMutex serializes work per key (per device).
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock acquires the lock for key and returns its release func.
func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
