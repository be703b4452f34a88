package session

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
)

const (
	MaxLoginFailures   = 5
	LoginFailureWindow = time.Minute
)

// LoginLimiter counts failed logins per client and blocks a client after
// MaxLoginFailures within LoginFailureWindow of its last failure.
type LoginLimiter struct {
	failures *ttlcache.Cache[string, int]
}

func NewLoginLimiter() *LoginLimiter {
	return &LoginLimiter{
		failures: ttlcache.New(
			ttlcache.WithTTL[string, int](LoginFailureWindow),
			ttlcache.WithDisableTouchOnHit[string, int](),
		),
	}
}

// Start evicts expired entries until Stop is called.
func (l *LoginLimiter) Start() {
	go l.failures.Start()
}

func (l *LoginLimiter) Stop() {
	l.failures.Stop()
}

func (l *LoginLimiter) Blocked(client string) bool {
	item := l.failures.Get(client)
	return item != nil && item.Value() >= MaxLoginFailures
}

func (l *LoginLimiter) Fail(client string) {
	count := 0
	if item := l.failures.Get(client); item != nil {
		count = item.Value()
	}
	l.failures.Set(client, count+1, ttlcache.DefaultTTL)
}

func (l *LoginLimiter) Reset(client string) {
	l.failures.Delete(client)
}
