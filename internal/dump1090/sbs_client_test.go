package dump1090

import (
	"context"
	"net"
	"testing"
	"time"

	"skyroute/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSBSClient_StreamMessages(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = conn.Write([]byte("MSG,1,1,1,0D0A1B,1,2024/03/01,12:30:45.123,2024/03/01,12:30:45.140,AMX123,,,,,,,,,,,\n"))
		_, _ = conn.Write([]byte("garbage line\n"))
		// Split a message across two writes
		_, _ = conn.Write([]byte("MSG,3,1,1,0D0A1B,1,2024/03/01,12:30:46.000,2024/03/01,"))
		time.Sleep(50 * time.Millisecond)
		_, _ = conn.Write([]byte("12:30:46.010,,35000,,,19.4326,-99.1332,,,0,0,0,0\n"))
		time.Sleep(500 * time.Millisecond)
	}()

	client := NewSBSClient(ln.Addr().String())
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	messageChan := make(chan *models.SBSMessage, 10)
	done := make(chan struct{})
	go func() {
		_ = client.StreamMessages(ctx, messageChan)
		close(done)
	}()

	var got []*models.SBSMessage
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case msg := <-messageChan:
			got = append(got, msg)
		case <-timeout:
			t.Fatal("timed out waiting for messages")
		}
	}

	assert.Equal(t, "AMX123", got[0].Callsign)
	assert.True(t, got[1].HasPosition)
	assert.Equal(t, 35000.0, got[1].AltitudeFt)

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("client did not stop after context cancellation")
	}
}

func TestSBSClient_CancelWhileDisconnected(t *testing.T) {
	// Nothing listens on this port, so the client stays in its retry loop
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	client := NewSBSClient(addr)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err = client.StreamMessages(ctx, make(chan *models.SBSMessage))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
