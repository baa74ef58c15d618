package database

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// servePing answers PING with PONG and rejects every other command, which
// is enough for a client handshake.
func servePing(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				r := bufio.NewReader(conn)
				for {
					args, err := readCommand(r)
					if err != nil {
						return
					}
					if strings.EqualFold(args[0], "PING") {
						fmt.Fprint(conn, "+PONG\r\n")
					} else {
						fmt.Fprintf(conn, "-ERR unknown command '%s'\r\n", args[0])
					}
				}
			}()
		}
	}()
	return ln.Addr().String()
}

func readCommand(r *bufio.Reader) ([]string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "*")))
	if err != nil || n < 1 {
		return nil, fmt.Errorf("bad array header %q", line)
	}
	args := make([]string, 0, n)
	for range n {
		if _, err := r.ReadString('\n'); err != nil {
			return nil, err
		}
		arg, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		args = append(args, strings.TrimSuffix(arg, "\r\n"))
	}
	return args, nil
}

func TestNewRedisClients(t *testing.T) {
	addr := servePing(t)

	clients, err := NewRedisClients(context.Background(), "redis://"+addr+"/0", 12)
	require.NoError(t, err)
	defer clients.Close()

	assert.Equal(t, addr, clients.Queue.Options().Addr)
	assert.GreaterOrEqual(t, clients.Queue.Options().PoolSize, 16)
	assert.NotSame(t, clients.Queue, clients.PubSub)
	assert.NoError(t, clients.PubSub.Ping(context.Background()).Err())
}

func TestNewRedisClientsBadURL(t *testing.T) {
	_, err := NewRedisClients(context.Background(), "not a url", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse REDIS_URL")
}

func TestNewRedisClientsUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	_, err = NewRedisClients(context.Background(), "redis://"+addr, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping redis queue")
}
