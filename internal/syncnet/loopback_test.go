package syncnet

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func TestLoopbackDelivery(t *testing.T) {
	fabric := NewLoopback()
	a := fabric.Open("a:1")
	b := fabric.Open("b:1")
	defer a.Close()
	defer b.Close()

	if err := a.Send("b:1", []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 16)
	n, from, err := b.Recv(buf, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if from != "a:1" {
		t.Errorf("from = %q, want a:1", from)
	}
	if !bytes.Equal(buf[:n], []byte{1, 2, 3}) {
		t.Errorf("data = %v", buf[:n])
	}
}

func TestLoopbackRecvTimeout(t *testing.T) {
	fabric := NewLoopback()
	a := fabric.Open("")
	defer a.Close()

	buf := make([]byte, 16)
	_, _, err := a.Recv(buf, 5*time.Millisecond)
	if !errors.Is(err, ErrRecvTimeout) {
		t.Fatalf("err = %v, want ErrRecvTimeout", err)
	}
}

func TestLoopbackSendToMissingEndpoint(t *testing.T) {
	fabric := NewLoopback()
	a := fabric.Open("a:1")
	defer a.Close()

	if err := a.Send("nowhere:1", []byte{1}); err == nil {
		t.Fatal("send to missing endpoint succeeded")
	}
}

func TestLoopbackSendRacingClose(t *testing.T) {
	// A sender hitting an endpoint mid-Close must drop the datagram, never
	// panic the sending goroutine.
	for i := 0; i < 50; i++ {
		fabric := NewLoopback()
		a := fabric.Open("a:1")
		b := fabric.Open("b:1")

		done := make(chan struct{})
		go func() {
			defer close(done)
			for j := 0; j < 100; j++ {
				a.Send("b:1", []byte{byte(j)})
			}
		}()

		b.Close()
		<-done
		a.Close()
	}
}

func TestLoopbackClose(t *testing.T) {
	fabric := NewLoopback()
	a := fabric.Open("a:1")
	b := fabric.Open("b:1")
	defer b.Close()

	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := a.Send("b:1", []byte{1}); err == nil {
		t.Fatal("send on closed endpoint succeeded")
	}
	if err := b.Send("a:1", []byte{1}); err == nil {
		t.Fatal("send to detached endpoint succeeded")
	}
}
