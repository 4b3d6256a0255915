package ipc

import (
	"encoding/binary"
	"net"
	"testing"

	"github.com/nodecastle/edgeagent/internal/protocol"
)

func TestWriteFrameThenReadFrameRoundTrips(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()
	defer serverSide.Close()

	client := New(clientSide)
	server := New(serverSide)

	done := make(chan error, 1)
	go func() {
		done <- client.WriteFrame(protocol.Session(protocol.OpTerminalData, 3, 0, []byte("hello")))
	}()

	got, err := server.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if got.Type != protocol.OpTerminalData || got.Channel != 3 || string(got.Payload) != "hello" {
		t.Fatalf("unexpected frame: %+v", got)
	}
}

func TestReadFrameRejectsZeroLength(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()
	defer serverSide.Close()

	go func() {
		var zero [4]byte
		clientSide.Write(zero[:])
	}()

	server := New(serverSide)
	if _, err := server.ReadFrame(); err == nil {
		t.Fatal("expected error for zero-length frame")
	}
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()
	defer serverSide.Close()

	go func() {
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(maxFrameSize)+1)
		clientSide.Write(lenBuf[:])
	}()

	server := New(serverSide)
	if _, err := server.ReadFrame(); err == nil {
		t.Fatal("expected error for oversized frame")
	}
}
