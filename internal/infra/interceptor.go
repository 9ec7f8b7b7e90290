package infra

import (
	"sort"
	"sync"

	"github.com/eliteGoblin/focusd/focusguard/internal/domain"
)

// InterceptorChain implements domain.RequestInterceptor. Filters are
// consulted synchronously for every request the browser shim offers.
type InterceptorChain struct {
	mu      sync.RWMutex
	nextID  domain.FilterHandle
	filters map[domain.FilterHandle]domain.RequestFilter
}

// NewInterceptorChain creates an empty chain that allows everything.
func NewInterceptorChain() *InterceptorChain {
	return &InterceptorChain{
		filters: make(map[domain.FilterHandle]domain.RequestFilter),
	}
}

// Register installs a filter.
func (c *InterceptorChain) Register(filter domain.RequestFilter) domain.FilterHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.filters[c.nextID] = filter
	return c.nextID
}

// Unregister removes a filter; unknown handles are a no-op.
func (c *InterceptorChain) Unregister(handle domain.FilterHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.filters, handle)
}

// Decide returns cancel if any filter cancels, allow otherwise.
func (c *InterceptorChain) Decide(req domain.RequestDetails) domain.Decision {
	c.mu.RLock()
	handles := make([]domain.FilterHandle, 0, len(c.filters))
	for h := range c.filters {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })
	filters := make([]domain.RequestFilter, 0, len(handles))
	for _, h := range handles {
		filters = append(filters, c.filters[h])
	}
	c.mu.RUnlock()

	for _, f := range filters {
		if f(req) == domain.DecisionCancel {
			return domain.DecisionCancel
		}
	}
	return domain.DecisionAllow
}

// Count returns the number of installed filters.
func (c *InterceptorChain) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.filters)
}

// Ensure InterceptorChain implements domain.RequestInterceptor.
var _ domain.RequestInterceptor = (*InterceptorChain)(nil)
