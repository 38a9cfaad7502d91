package sockets

import (
	"sync"
	"testing"
)

type stubConn struct {
	name   string
	closed string
}

func (c *stubConn) Send([]byte) error    { return nil }
func (c *stubConn) Close(reason string) { c.closed = reason }

func TestAddSupersedes(t *testing.T) {
	r := NewRegistry()
	a := &stubConn{name: "a"}
	b := &stubConn{name: "b"}
	if prev := r.Add("abc123", "tok", a); prev != nil {
		t.Fatalf("unexpected previous %v", prev)
	}
	if prev := r.Add("ABC123", "tok", b); prev != a {
		t.Fatalf("expected a to be superseded, got %v", prev)
	}
	if r.IsCurrent("ABC123", "tok", a) || !r.IsCurrent("abc123", "tok", b) {
		t.Fatalf("b should be current")
	}
	if r.Remove("ABC123", "tok", a) {
		t.Fatalf("stale connection must not remove the current one")
	}
	if got, ok := r.Get("ABC123", "tok"); !ok || got != b {
		t.Fatalf("Get = %v %v", got, ok)
	}
	if !r.Remove("ABC123", "tok", b) || r.Len() != 0 {
		t.Fatalf("Remove current failed, len=%d", r.Len())
	}
}

func TestSeatsAreIndependent(t *testing.T) {
	r := NewRegistry()
	a, b := &stubConn{}, &stubConn{}
	r.Add("L1", "white", a)
	r.Add("L1", "black", b)
	r.Add("L2", "white", b)
	if r.Len() != 3 {
		t.Fatalf("Len=%d", r.Len())
	}
	r.CloseAll("shutdown")
	if a.closed != "shutdown" || b.closed != "shutdown" || r.Len() != 0 {
		t.Fatalf("CloseAll did not close everything")
	}
}

func TestConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := &stubConn{}
			tok := string(rune('a' + i%8))
			r.Add("L", tok, c)
			r.IsCurrent("L", tok, c)
			r.Remove("L", tok, c)
		}(i)
	}
	wg.Wait()
}
