package registry

import (
	"net/url"
	"sync"

	"github.com/cenk/backoff"
	circuit "github.com/rubyist/circuitbreaker"

	"github.com/spiffcs/deprecator/internal/constants"
)

// breakers holds one circuit breaker per registry host.
type breakers struct {
	mu    sync.RWMutex
	byKey map[string]*circuit.Breaker
}

func newBreakers() *breakers {
	return &breakers{byKey: make(map[string]*circuit.Breaker)}
}

func (b *breakers) get(host string) *circuit.Breaker {
	b.mu.RLock()
	breaker, ok := b.byKey[host]
	b.mu.RUnlock()
	if ok {
		return breaker
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if breaker, ok := b.byKey[host]; ok {
		return breaker
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = constants.BreakerInitialBackoff
	expBackoff.MaxInterval = constants.BreakerMaxBackoff
	expBackoff.Multiplier = 2.0
	expBackoff.MaxElapsedTime = 0
	expBackoff.Reset()

	breaker = circuit.NewBreakerWithOptions(&circuit.Options{
		BackOff:    expBackoff,
		ShouldTrip: circuit.ThresholdTripFunc(constants.BreakerThreshold),
	})
	b.byKey[host] = breaker
	return breaker
}

func (b *breakers) states() map[string]string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	states := make(map[string]string, len(b.byKey))
	for host, breaker := range b.byKey {
		if breaker.Tripped() {
			states[host] = "open"
		} else {
			states[host] = "closed"
		}
	}
	return states
}

// hostOf groups URLs by host for breaker selection.
func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return rawURL
	}
	return parsed.Host
}
