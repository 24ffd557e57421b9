package smtp

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessage(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := string(buildMessage("noreply@x.com", "a@x.com", "Hello", "line1\nline2", now))

	assert.True(t, strings.HasPrefix(msg, "From: noreply@x.com\r\nTo: a@x.com\r\nSubject: Hello\r\n"))
	assert.Contains(t, msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	assert.True(t, strings.HasSuffix(msg, "\r\n\r\nline1\r\nline2"))
}

// fakeServer speaks just enough SMTP to accept one message.
func fakeServer(t *testing.T) (string, <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	got := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		write := func(s string) { _, _ = conn.Write([]byte(s + "\r\n")) }
		write("220 fake ESMTP")
		var data strings.Builder
		inData := false
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			if inData {
				if line == ".\r\n" {
					inData = false
					got <- data.String()
					write("250 OK")
					continue
				}
				data.WriteString(line)
				continue
			}
			switch cmd := strings.ToUpper(strings.TrimSpace(line)); {
			case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
				write("250 fake")
			case strings.HasPrefix(cmd, "DATA"):
				inData = true
				write("354 go ahead")
			case strings.HasPrefix(cmd, "QUIT"):
				write("221 bye")
				return
			default:
				write("250 OK")
			}
		}
	}()
	return ln.Addr().String(), got
}

func TestSendActivationEmail(t *testing.T) {
	addr, got := fakeServer(t)
	host, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)

	m := &Mailer{host: host, port: port, from: "noreply@x.com"}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.SendActivationEmail(ctx, "a@x.com", "http://localhost:3000/v1/activate/abc/tok"))

	select {
	case msg := <-got:
		assert.Contains(t, msg, "To: a@x.com")
		assert.Contains(t, msg, "http://localhost:3000/v1/activate/abc/tok")
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
	}
}

func TestSendEmail_DialFailure(t *testing.T) {
	m := &Mailer{host: "127.0.0.1", port: "1", from: "noreply@x.com"}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Error(t, m.SendEmail(ctx, "a@x.com", "s", "b"))
}
