package ringbuf

import (
	"bytes"
	"testing"
	"time"
)

func TestAppendConsumeRoundTrip(t *testing.T) {
	rb := New(16)
	data := []byte("hello, ring")
	if !rb.Append(data) {
		t.Fatal("Append reported failure within capacity")
	}
	got := rb.Consume(len(data))
	if !bytes.Equal(got, data) {
		t.Fatalf("Consume = %q, want %q", got, data)
	}
}

func TestAppendFailsWhenFull(t *testing.T) {
	rb := New(4)
	if !rb.Append([]byte{1, 2, 3, 4}) {
		t.Fatal("expected append to succeed exactly at capacity")
	}
	if rb.Append([]byte{5}) {
		t.Fatal("expected append to fail past capacity")
	}
}

func TestSizePlusAvailableEqualsCapacity(t *testing.T) {
	rb := New(32)
	rb.Append([]byte("0123456789"))
	rb.Consume(4)
	if rb.Size()+rb.Available() != int64(rb.Capacity()) {
		t.Fatalf("size %d + available %d != capacity %d", rb.Size(), rb.Available(), rb.Capacity())
	}
}

func TestWrapAround(t *testing.T) {
	rb := New(8)
	rb.Append([]byte("abcdefgh"))
	rb.Consume(6)
	rb.Append([]byte("IJ"))
	got := rb.Consume(4)
	if !bytes.Equal(got, []byte("ghIJ")) {
		t.Fatalf("Consume after wrap = %q, want %q", got, "ghIJ")
	}
}

func TestConsumeInsufficientReturnsNil(t *testing.T) {
	rb := New(8)
	rb.Append([]byte("ab"))
	if got := rb.Consume(3); got != nil {
		t.Fatalf("Consume with too few bytes = %v, want nil", got)
	}
}

func TestPeekAndAdvance(t *testing.T) {
	rb := New(8)
	rb.Append([]byte{0x17, 0x64})
	if got := rb.Peek(); got != 0x17 {
		t.Fatalf("Peek = %#x, want 0x17", got)
	}
	rb.Advance(1)
	if got := rb.Peek(); got != 0x64 {
		t.Fatalf("Peek after advance = %#x, want 0x64", got)
	}
}

func TestBlockingConsumeWaitTimesOut(t *testing.T) {
	b := NewBlocking(8)
	start := time.Now()
	got := b.ConsumeWait(4, 20*time.Millisecond)
	if got != nil {
		t.Fatalf("expected timeout nil, got %v", got)
	}
	if time.Since(start) < 15*time.Millisecond {
		t.Fatal("ConsumeWait returned before its timeout elapsed")
	}
}

func TestBlockingProducerConsumer(t *testing.T) {
	b := NewBlocking(4)
	done := make(chan []byte, 1)
	go func() {
		done <- b.ConsumeWait(4, time.Second)
	}()
	time.Sleep(5 * time.Millisecond)
	if !b.AppendWait([]byte("abcd")) {
		t.Fatal("AppendWait failed")
	}
	got := <-done
	if !bytes.Equal(got, []byte("abcd")) {
		t.Fatalf("ConsumeWait = %q, want %q", got, "abcd")
	}
}
