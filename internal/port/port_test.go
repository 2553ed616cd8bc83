package port

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"

	lberrors "github.com/litterbox-sh/litterbox/internal/errors"
)

// testRange returns a small range of ports that are very likely free in
// test environments.
func testRange() Range {
	return Range{Start: 42100, End: 42140}
}

func TestReserve_DistinctPorts(t *testing.T) {
	a := NewAllocator()

	ports, err := a.Reserve(3, testRange())
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	defer a.Release(ports)

	if len(ports) != 3 {
		t.Fatalf("got %d ports, want 3", len(ports))
	}

	seen := make(map[int]bool)
	for _, p := range ports {
		if seen[p] {
			t.Errorf("duplicate port %d", p)
		}
		seen[p] = true

		r := testRange()
		if p < r.Start || p >= r.End {
			t.Errorf("port %d outside range [%d, %d)", p, r.Start, r.End)
		}
		if !a.Reserved(p) {
			t.Errorf("port %d should be marked reserved", p)
		}
	}
}

func TestReserve_Zero(t *testing.T) {
	a := NewAllocator()
	ports, err := a.Reserve(0, testRange())
	if err != nil {
		t.Fatalf("Reserve(0) failed: %v", err)
	}
	if len(ports) != 0 {
		t.Errorf("Reserve(0) = %v, want empty", ports)
	}
}

func TestReserve_SkipsReserved(t *testing.T) {
	a := NewAllocator()

	first, err := a.Reserve(1, testRange())
	if err != nil {
		t.Fatalf("first Reserve failed: %v", err)
	}
	defer a.Release(first)

	second, err := a.Reserve(1, testRange())
	if err != nil {
		t.Fatalf("second Reserve failed: %v", err)
	}
	defer a.Release(second)

	if first[0] == second[0] {
		t.Errorf("both reservations got port %d", first[0])
	}
}

func TestReserve_SkipsBoundPort(t *testing.T) {
	r := testRange()
	l, err := net.Listen("tcp", fmt.Sprintf(":%d", r.Start))
	if err != nil {
		t.Skipf("cannot bind %d: %v", r.Start, err)
	}
	defer l.Close()

	a := NewAllocator()
	ports, err := a.Reserve(1, r)
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	defer a.Release(ports)

	if ports[0] == r.Start {
		t.Errorf("allocator granted a bound port %d", ports[0])
	}
}

func TestReserve_Exhausted(t *testing.T) {
	a := NewAllocator()
	r := testRange()

	all, err := a.Reserve(r.End-r.Start, r)
	if err != nil {
		// Some ports in the range are busy on this host; not a failure
		// of the exhaustion path itself.
		t.Skipf("range not fully free: %v", err)
	}
	defer a.Release(all)

	_, err = a.Reserve(1, r)
	if err == nil {
		t.Fatal("expected exhaustion error")
	}
	if lberrors.GetExitCode(err) != lberrors.ExitPortsExhausted {
		t.Errorf("exit code = %d, want ExitPortsExhausted", lberrors.GetExitCode(err))
	}
}

func TestReserve_InvalidRange(t *testing.T) {
	a := NewAllocator()
	if _, err := a.Reserve(1, Range{Start: 9000, End: 8000}); err == nil {
		t.Error("inverted range should be rejected")
	}
	if _, err := a.Reserve(1, Range{Start: 0, End: 100}); err == nil {
		t.Error("zero start should be rejected")
	}
}

func TestRelease_UnknownPortIgnored(t *testing.T) {
	a := NewAllocator()
	a.Release([]int{54321})

	if a.Reserved(54321) {
		t.Error("released port should not be reserved")
	}
}

func TestReserve_Concurrent(t *testing.T) {
	a := NewAllocator()
	r := testRange()

	const workers = 8
	var wg sync.WaitGroup
	results := make([][]int, workers)
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = a.Reserve(2, r)
		}(i)
	}
	wg.Wait()

	seen := make(map[int]int)
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			if !errors.Is(errs[i], lberrors.ErrPortsExhausted) && lberrors.GetExitCode(errs[i]) != lberrors.ExitPortsExhausted {
				t.Errorf("worker %d unexpected error: %v", i, errs[i])
			}
			continue
		}
		for _, p := range results[i] {
			seen[p]++
			if seen[p] > 1 {
				t.Errorf("port %d granted to multiple workers", p)
			}
		}
		a.Release(results[i])
	}
}
