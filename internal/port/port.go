package port

import (
	"fmt"
	"net"
	"sync"

	"github.com/litterbox-sh/litterbox/internal/errors"
)

// Default host port range for forwarded services, half-open.
const (
	DefaultRangeStart = 3000
	DefaultRangeEnd   = 8000
)

// Range is a half-open interval [Start, End) of host TCP ports.
type Range struct {
	Start int
	End   int
}

// DefaultRange returns the standard litterbox port range.
func DefaultRange() Range {
	return Range{Start: DefaultRangeStart, End: DefaultRangeEnd}
}

func (r Range) valid() bool {
	return r.Start > 0 && r.End > r.Start && r.End <= 65536
}

// Allocator reserves host TCP ports for the lifetime of a sandbox. The
// reserved set is process-local; availability on the host is verified by
// a bind probe. Probes run outside the lock so a slow bind never blocks
// other allocations.
type Allocator struct {
	mu       sync.Mutex
	reserved map[int]bool
}

// NewAllocator creates an empty allocator.
func NewAllocator() *Allocator {
	return &Allocator{reserved: make(map[int]bool)}
}

// Reserve returns n distinct ports from r that are neither reserved in
// this process nor bound on the host. Returns ErrPortsExhausted when the
// range cannot satisfy the request. On success the ports are reserved
// until Release is called.
func (a *Allocator) Reserve(n int, r Range) ([]int, error) {
	if n == 0 {
		return nil, nil
	}
	if !r.valid() {
		return nil, errors.PortsExhausted(fmt.Errorf("invalid port range: %d-%d", r.Start, r.End))
	}

	var granted []int
	for candidate := r.Start; candidate < r.End && len(granted) < n; candidate++ {
		a.mu.Lock()
		taken := a.reserved[candidate]
		a.mu.Unlock()
		if taken {
			continue
		}

		if !probe(candidate) {
			continue
		}

		a.mu.Lock()
		// Re-check: another goroutine may have claimed it during the probe.
		if a.reserved[candidate] {
			a.mu.Unlock()
			continue
		}
		a.reserved[candidate] = true
		a.mu.Unlock()

		granted = append(granted, candidate)
	}

	if len(granted) < n {
		a.release(granted)
		return nil, errors.PortsExhausted(
			fmt.Errorf("wanted %d ports, found %d free in range %d-%d", n, len(granted), r.Start, r.End))
	}

	return granted, nil
}

// Release returns ports to the pool. Unknown ports are ignored.
func (a *Allocator) Release(ports []int) {
	a.release(ports)
}

func (a *Allocator) release(ports []int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, p := range ports {
		delete(a.reserved, p)
	}
}

// Reserved reports whether a port is currently held by this allocator.
func (a *Allocator) Reserved(p int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reserved[p]
}

// probe attempts to bind the port on all interfaces and releases it
// immediately. A failed bind means another process holds the port.
func probe(p int) bool {
	l, err := net.Listen("tcp", fmt.Sprintf(":%d", p))
	if err != nil {
		return false
	}
	_ = l.Close()
	return true
}
