package probe

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
	"golang.org/x/net/proxy"
)

// counterConn counts read bytes and written bytes
type counterConn struct {
	net.Conn
	n *int64
}

func (cc *counterConn) Read(b []byte) (n int, err error) {
	n, err = cc.Conn.Read(b)

	if n > 0 {
		atomic.AddInt64(cc.n, int64(n))
	}

	return
}

func (cc *counterConn) Write(b []byte) (n int, err error) {
	n, err = cc.Conn.Write(b)

	if n > 0 {
		atomic.AddInt64(cc.n, int64(n))
	}

	return
}

func countDial(throughput *int64, dial fasthttp.DialFunc) fasthttp.DialFunc {
	return func(address string) (net.Conn, error) {
		conn, err := dial(address)
		if err != nil {
			return nil, err
		}

		return &counterConn{Conn: conn, n: throughput}, nil
	}
}

func fasthttpDialer(throughput *int64, timeout time.Duration) fasthttp.DialFunc {
	dialer := &fasthttp.TCPDialer{}
	return countDial(throughput, func(address string) (net.Conn, error) {
		return dialer.DialDualStackTimeout(address, timeout)
	})
}

func dialTimeout(address string, timeout time.Duration) (net.Conn, error) {
	if timeout <= 0 {
		return fasthttp.DialDualStack(address)
	}
	return fasthttp.DialDualStackTimeout(address, timeout)
}

// fasthttpHttpProxyDialer tunnels through an HTTP proxy with CONNECT. The
// dial and the CONNECT exchange share one timeout, so a proxy that never
// answers fails the request instead of blocking it.
func fasthttpHttpProxyDialer(throughput *int64, proxyAddr string, timeout time.Duration) fasthttp.DialFunc {
	proxyAddr = strings.TrimPrefix(proxyAddr, "http://")

	var auth string
	if i := strings.LastIndex(proxyAddr, "@"); i >= 0 {
		auth = base64.StdEncoding.EncodeToString([]byte(proxyAddr[:i]))
		proxyAddr = proxyAddr[i+1:]
	}

	return countDial(throughput, func(address string) (net.Conn, error) {
		conn, err := dialTimeout(proxyAddr, timeout)
		if err != nil {
			return nil, err
		}

		if err = connect(conn, address, auth, timeout); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("http proxy %s: %w", proxyAddr, err)
		}

		return conn, nil
	})
}

func connect(conn net.Conn, address, auth string, timeout time.Duration) error {
	if timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			return err
		}
	}

	req := "CONNECT " + address + " HTTP/1.1\r\nHost: " + address + "\r\n"
	if auth != "" {
		req += "Proxy-Authorization: Basic " + auth + "\r\n"
	}
	req += "\r\n"

	if _, err := conn.Write([]byte(req)); err != nil {
		return err
	}

	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)
	resp.SkipBody = true

	if err := resp.Read(bufio.NewReader(conn)); err != nil {
		return err
	}
	if code := resp.StatusCode(); code != fasthttp.StatusOK {
		return fmt.Errorf("CONNECT %s returned status code %d", address, code)
	}

	return conn.SetDeadline(time.Time{})
}

// fasthttpSocksProxyDialer dials through a socks5 proxy. timeout bounds
// both the dial to the proxy and the socks handshake.
func fasthttpSocksProxyDialer(throughput *int64, proxyAddr string, timeout time.Duration) fasthttp.DialFunc {
	dialer, err := socksDialer(proxyAddr, timeout)

	return countDial(throughput, func(address string) (net.Conn, error) {
		if err != nil {
			return nil, err
		}

		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		return dialer.DialContext(ctx, "tcp", address)
	})
}

func socksDialer(proxyAddr string, timeout time.Duration) (proxy.ContextDialer, error) {
	u, err := url.Parse(proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("invalid socks proxy %q: %w", proxyAddr, err)
	}

	d, err := proxy.FromURL(u, &net.Dialer{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("invalid socks proxy %q: %w", proxyAddr, err)
	}

	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("socks proxy %q cannot dial with a deadline", proxyAddr)
	}

	return cd, nil
}

func httpDialContext(throughput *int64, timeout time.Duration) func(context.Context, string, string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: timeout}
	return func(ctx context.Context, network, address string) (net.Conn, error) {
		conn, err := dialer.DialContext(ctx, network, address)
		if err != nil {
			return nil, err
		}

		return &counterConn{Conn: conn, n: throughput}, nil
	}
}
