package store

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/yishak-cs/stylematch/internal/models"
)

// BreakerSettings configures the catalog circuit breaker.
type BreakerSettings struct {
	Name             string
	FailureThreshold uint32
	OpenTimeout      time.Duration
	OnStateChange    func(name string, from, to string)
}

// BreakerCatalog fails fast while the wrapped catalog keeps failing.
type BreakerCatalog struct {
	next CatalogStore
	cb   *gobreaker.CircuitBreaker[[]models.CatalogItem]
}

// NewBreakerCatalog wraps next with a circuit breaker.
func NewBreakerCatalog(next CatalogStore, s BreakerSettings) *BreakerCatalog {
	if s.Name == "" {
		s.Name = "catalog"
	}
	if s.FailureThreshold == 0 {
		s.FailureThreshold = 5
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			// A caller giving up says nothing about the backend.
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
	if s.OnStateChange != nil {
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			s.OnStateChange(name, from.String(), to.String())
		}
	}

	return &BreakerCatalog{
		next: next,
		cb:   gobreaker.NewCircuitBreaker[[]models.CatalogItem](settings),
	}
}

// FetchActiveCatalog reads through the breaker. An open breaker is reported
// as ErrUnavailable.
func (b *BreakerCatalog) FetchActiveCatalog(ctx context.Context) ([]models.CatalogItem, error) {
	items, err := b.cb.Execute(func() ([]models.CatalogItem, error) {
		return b.next.FetchActiveCatalog(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, Unavailable("fetch catalog", err)
	}
	return items, err
}

// State returns the breaker state name.
func (b *BreakerCatalog) State() string {
	return b.cb.State().String()
}
