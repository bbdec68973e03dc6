package probe

import (
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/valyala/fasthttp"
	"golang.org/x/net/http2"
)

// client sends the request owned by virtual user i.
type client interface {
	do(i int) (code int, latency time.Duration, err error)
}

type clientDoer interface {
	Do(req *fasthttp.Request, resp *fasthttp.Response) error
}

type clientConfig struct {
	desc              Descriptor
	vus               int
	timeout           time.Duration
	tlsConfig         *tls.Config
	throughput        *int64
	httpProxy         string
	socksProxy        string
	http2             bool
	disableKeepAlives bool
	pipeline          bool
}

type fasthttpClient struct {
	doer  clientDoer
	reqs  []*fasthttp.Request
	resps []*fasthttp.Response
}

func newFasthttpClient(cc clientConfig) (client, error) {
	isTLS, addr, err := getIsTLSAndAddr(cc.desc.URL)
	if err != nil {
		return nil, err
	}

	c := &fasthttpClient{
		reqs:  make([]*fasthttp.Request, cc.vus),
		resps: make([]*fasthttp.Response, cc.vus),
	}

	for i := 0; i < cc.vus; i++ {
		req := fasthttp.AcquireRequest()
		req.Header.SetMethod(cc.desc.Method)
		req.SetRequestURI(cc.desc.URL)
		writeToFasthttp(req, cc.desc.Headers)
		if cc.disableKeepAlives {
			req.Header.SetConnectionClose()
		}
		c.reqs[i] = req
		c.resps[i] = fasthttp.AcquireResponse()
	}

	if cc.pipeline {
		c.doer = &fasthttp.PipelineClient{
			Addr:                   addr,
			Dial:                   getDialer(cc),
			IsTLS:                  isTLS,
			TLSConfig:              cc.tlsConfig,
			MaxConns:               cc.vus,
			ReadTimeout:            cc.timeout,
			WriteTimeout:           cc.timeout,
			DisablePathNormalizing: true,
			Logger:                 discardLogger{},
		}
	} else {
		c.doer = &fasthttp.HostClient{
			Addr:                          addr,
			Dial:                          getDialer(cc),
			IsTLS:                         isTLS,
			TLSConfig:                     cc.tlsConfig,
			MaxConns:                      cc.vus,
			ReadTimeout:                   cc.timeout,
			WriteTimeout:                  cc.timeout,
			DisableHeaderNamesNormalizing: true,
			DisablePathNormalizing:        true,
		}
	}

	return c, nil
}

func getDialer(cc clientConfig) fasthttp.DialFunc {
	if cc.socksProxy != "" {
		return fasthttpSocksProxyDialer(cc.throughput, cc.socksProxy, cc.timeout)
	}
	if cc.httpProxy != "" {
		return fasthttpHttpProxyDialer(cc.throughput, cc.httpProxy, cc.timeout)
	}

	return fasthttpDialer(cc.throughput, cc.timeout)
}

func (c *fasthttpClient) do(i int) (code int, latency time.Duration, err error) {
	var (
		req  = c.reqs[i]
		resp = c.resps[i]
	)

	start := time.Now()
	if err = c.doer.Do(req, resp); err != nil {
		return
	}

	code = resp.StatusCode()
	latency = time.Since(start)

	return
}

type httpClient struct {
	client *http.Client
	reqs   []*http.Request
}

func newHttpClient(cc clientConfig) (client, error) {
	if _, _, err := getIsTLSAndAddr(cc.desc.URL); err != nil {
		return nil, err
	}

	c := &httpClient{
		reqs: make([]*http.Request, cc.vus),
	}

	var err error
	for i := 0; i < cc.vus; i++ {
		if c.reqs[i], err = http.NewRequest(cc.desc.Method, cc.desc.URL, nil); err != nil {
			return nil, fmt.Errorf("failed to new request: %w", err)
		}
		writeToHttp(c.reqs[i], cc.desc.Headers)
	}

	transport := &http.Transport{
		TLSClientConfig:     cc.tlsConfig,
		MaxIdleConnsPerHost: cc.vus,
		DisableKeepAlives:   cc.disableKeepAlives,
		DialContext:         httpDialContext(cc.throughput, cc.timeout),
	}

	proxy := cc.socksProxy
	if proxy == "" {
		proxy = cc.httpProxy
	}
	if proxy != "" {
		var u *url.URL
		if u, err = url.Parse(proxy); err != nil {
			return nil, fmt.Errorf("invalid proxy %q: %w", proxy, err)
		}
		transport.Proxy = http.ProxyURL(u)
	}

	if cc.http2 {
		if err = http2.ConfigureTransport(transport); err != nil {
			return nil, fmt.Errorf("failed to setup http2: %w", err)
		}
	} else {
		transport.TLSNextProto = make(
			map[string]func(authority string, c *tls.Conn) http.RoundTripper,
		)
	}

	c.client = &http.Client{
		Transport: transport,
		Timeout:   cc.timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return c, nil
}

func (c *httpClient) do(i int) (code int, latency time.Duration, err error) {
	var resp *http.Response
	start := time.Now()

	if resp, err = c.client.Do(c.reqs[i]); err != nil {
		return
	}

	_, err = io.Copy(io.Discard, resp.Body)
	if closeErr := resp.Body.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return
	}

	code = resp.StatusCode
	latency = time.Since(start)

	return
}

type discardLogger struct{}

func (discardLogger) Printf(_ string, _ ...interface{}) {}
