package vidserver

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL    = 10 * time.Minute
	limiterMaxClients = 4096
)

// clientLimiter keeps one token bucket per client IP.
type clientLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	clients map[string]*clientBucket
	now     func() time.Time
}

type clientBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(perMin float64, burst int) *clientLimiter {
	if burst < 1 {
		burst = 1
	}
	return &clientLimiter{
		limit:   rate.Limit(perMin / 60),
		burst:   burst,
		clients: make(map[string]*clientBucket),
		now:     time.Now,
	}
}

func (l *clientLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.clients[ip]
	if !ok {
		if len(l.clients) >= limiterMaxClients {
			l.pruneLocked(now)
		}
		b = &clientBucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = b
	}
	b.lastSeen = now
	return b.lim.AllowN(now, 1)
}

// pruneLocked drops buckets idle for limiterIdleTTL.
func (l *clientLimiter) pruneLocked(now time.Time) {
	for ip, b := range l.clients {
		if now.Sub(b.lastSeen) > limiterIdleTTL {
			delete(l.clients, ip)
		}
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
