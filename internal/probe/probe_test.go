package probe

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTCP_Open(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	result := TCP(context.Background(), "127.0.0.1", addr.Port, 200*time.Millisecond)
	assert.Equal(t, Open, result)
}

func TestTCP_Closed(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	result := TCP(context.Background(), "127.0.0.1", port, 200*time.Millisecond)
	assert.Equal(t, Closed, result)
}

func TestTCP_InvalidArgs(t *testing.T) {
	assert.Equal(t, Error, TCP(context.Background(), "", 22, time.Second))
	assert.Equal(t, Error, TCP(context.Background(), "127.0.0.1", 0, time.Second))
	assert.Equal(t, Error, TCP(context.Background(), "127.0.0.1", 70000, time.Second))
}
