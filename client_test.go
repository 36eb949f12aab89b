package miniredis

import (
	"net"
	"testing"
	"time"
)

func newClientOverPipe() (*Client, *Connection) {
	a, b := net.Pipe()
	return &Client{conn: NewConnection(a)}, NewConnection(b)
}

func TestClientGetDecodesNullAsMiss(t *testing.T) {
	client, server := newClientOverPipe()
	defer client.Close()
	defer server.Close()

	go func() {
		server.ReadFrame()
		server.WriteFrame(NullFrame())
	}()

	_, ok, err := client.Get("missing")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for a Null reply")
	}
}

func TestClientGetDecodesBulk(t *testing.T) {
	client, server := newClientOverPipe()
	defer client.Close()
	defer server.Close()

	go func() {
		server.ReadFrame()
		server.WriteFrame(BulkFrame([]byte("value")))
	}()

	got, ok, err := client.Get("k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok || string(got) != "value" {
		t.Fatalf("got %q, %v", got, ok)
	}
}

func TestClientReadResponseSurfacesErrorFrame(t *testing.T) {
	client, server := newClientOverPipe()
	defer client.Close()
	defer server.Close()

	go func() {
		server.ReadFrame()
		server.WriteFrame(ErrorFrame("boom"))
	}()

	_, _, err := client.Get("k")
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestClientPingRoundTrip(t *testing.T) {
	client, server := newClientOverPipe()
	defer client.Close()
	defer server.Close()

	go func() {
		f, _ := server.ReadFrame()
		if string(f.Array[1].Bulk) != "echo" {
			t.Errorf("expected ping argument %q, got %v", "echo", f)
		}
		server.WriteFrame(BulkFrame([]byte("echo")))
	}()

	got, err := client.Ping([]byte("echo"))
	if err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if string(got) != "echo" {
		t.Fatalf("got %q", got)
	}
}

func TestClientSubscribeWaitsForAcks(t *testing.T) {
	client, server := newClientOverPipe()
	defer client.Close()
	defer server.Close()

	go func() {
		server.ReadFrame()
		server.WriteFrame(ArrayFrame(BulkFrame([]byte("subscribe")), BulkFrame([]byte("a")), Integer(1)))
		server.WriteFrame(ArrayFrame(BulkFrame([]byte("subscribe")), BulkFrame([]byte("b")), Integer(2)))
	}()

	sub, err := client.Subscribe("a", "b")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if len(sub.Channels()) != 2 {
		t.Fatalf("got %v", sub.Channels())
	}
}

func TestSubscriberNextMessageDecodesPublishedFrame(t *testing.T) {
	client, server := newClientOverPipe()
	defer client.Close()
	defer server.Close()

	go func() {
		server.ReadFrame()
		server.WriteFrame(ArrayFrame(BulkFrame([]byte("subscribe")), BulkFrame([]byte("ch")), Integer(1)))
	}()
	sub, err := client.Subscribe("ch")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	go func() {
		server.WriteFrame(ArrayFrame(BulkFrame([]byte("message")), BulkFrame([]byte("ch")), BulkFrame([]byte("hi"))))
	}()

	msg, err := sub.NextMessage()
	if err != nil {
		t.Fatalf("NextMessage: %v", err)
	}
	if msg.Channel != "ch" || string(msg.Payload) != "hi" {
		t.Fatalf("got %+v", msg)
	}
}

func TestSubscriberSendShutdown(t *testing.T) {
	client, server := newClientOverPipe()
	defer client.Close()
	defer server.Close()

	go func() {
		server.ReadFrame()
		server.WriteFrame(ArrayFrame(BulkFrame([]byte("subscribe")), BulkFrame([]byte("ch")), Integer(1)))
	}()
	sub, err := client.Subscribe("ch")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	done := make(chan Frame, 1)
	go func() {
		f, _ := server.ReadFrame()
		done <- f
	}()

	if err := sub.SendShutdown(); err != nil {
		t.Fatalf("SendShutdown: %v", err)
	}

	select {
	case f := <-done:
		if f.Kind != KindSimple || f.Str != "shutdown" {
			t.Fatalf("got %v", f)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for shutdown frame")
	}
}
