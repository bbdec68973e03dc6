package probe

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/valyala/fasthttp"
)

func testDescriptor(url string) Descriptor {
	return Descriptor{
		Method: http.MethodGet,
		URL:    url,
		Headers: []Header{
			{Key: "Authorization", Value: "Bearer token"},
			{Key: "Content-Type", Value: MIMEApplicationJSON},
		},
	}
}

func Test_Fastclient_New(t *testing.T) {
	t.Parallel()

	var throughput int64

	t.Run("error schema", func(t *testing.T) {
		_, err := newFasthttpClient(clientConfig{desc: testDescriptor("ftp://host"), vus: 1})
		assert.NotNil(t, err)
	})

	t.Run("http proxy", func(t *testing.T) {
		_, err := newFasthttpClient(clientConfig{
			desc:       testDescriptor("http://127.0.0.1"),
			vus:        1,
			throughput: &throughput,
			httpProxy:  "http://proxy",
		})
		assert.Nil(t, err)
	})

	t.Run("socks proxy", func(t *testing.T) {
		_, err := newFasthttpClient(clientConfig{
			desc:       testDescriptor("http://127.0.0.1"),
			vus:        1,
			throughput: &throughput,
			socksProxy: "socks5://proxy",
		})
		assert.Nil(t, err)
	})

	t.Run("pipeline and close connection", func(t *testing.T) {
		c, err := newFasthttpClient(clientConfig{
			desc:              testDescriptor("https://127.0.0.1:8443"),
			vus:               2,
			throughput:        &throughput,
			disableKeepAlives: true,
			pipeline:          true,
		})
		assert.Nil(t, err)
		fc := c.(*fasthttpClient)
		assert.IsType(t, &fasthttp.PipelineClient{}, fc.doer)
		assert.Len(t, fc.reqs, 2)
		assert.True(t, fc.reqs[1].Header.ConnectionClose())
	})
}

func Test_Fastclient_Do(t *testing.T) {
	t.Parallel()

	addr := serveFasthttp(t, func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Request.Header.Peek("Authorization")) != "Bearer token" {
			ctx.SetStatusCode(fasthttp.StatusUnauthorized)
			return
		}
		ctx.SetStatusCode(fasthttp.StatusTooManyRequests)
	})

	var throughput int64
	c, err := newFasthttpClient(clientConfig{
		desc:       testDescriptor("http://" + addr + "/api/users/23"),
		vus:        1,
		timeout:    time.Second * 3,
		throughput: &throughput,
	})
	assert.Nil(t, err)

	code, latency, err := c.do(0)
	assert.Nil(t, err)
	assert.Equal(t, fasthttp.StatusTooManyRequests, code)
	assert.True(t, latency > 0)
	assert.True(t, atomic.LoadInt64(&throughput) > 0)
}

func Test_Fastclient_Do_fake(t *testing.T) {
	t.Parallel()

	f := &fasthttpClient{
		reqs:  []*fasthttp.Request{fasthttp.AcquireRequest()},
		resps: []*fasthttp.Response{fasthttp.AcquireResponse()},
	}
	f.reqs[0].SetRequestURI("http://example.com")

	t.Run("error", func(t *testing.T) {
		f.doer = errorFakeDoer(errors.New("fake error"))
		_, _, err := f.do(0)
		assert.NotNil(t, err)
	})

	t.Run("success", func(t *testing.T) {
		f.doer = getFakeDoer(503)
		code, latency, err := f.do(0)
		assert.Nil(t, err)
		assert.True(t, latency > 0)
		assert.Equal(t, 503, code)
	})
}

func Test_Httpclient_New(t *testing.T) {
	t.Parallel()

	var throughput int64

	t.Run("error schema", func(t *testing.T) {
		_, err := newHttpClient(clientConfig{desc: testDescriptor("ftp://host"), vus: 1})
		assert.NotNil(t, err)
	})

	t.Run("invalid proxy", func(t *testing.T) {
		_, err := newHttpClient(clientConfig{
			desc:       testDescriptor("http://127.0.0.1"),
			vus:        1,
			throughput: &throughput,
			httpProxy:  "://proxy",
		})
		assert.NotNil(t, err)
	})

	t.Run("http2", func(t *testing.T) {
		c, err := newHttpClient(clientConfig{
			desc:       testDescriptor("https://127.0.0.1"),
			vus:        3,
			throughput: &throughput,
			http2:      true,
		})
		assert.Nil(t, err)
		assert.Len(t, c.(*httpClient).reqs, 3)
	})
}

func Test_Httpclient_Do(t *testing.T) {
	t.Parallel()

	reqs := make(chan *http.Request, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqs <- r.Clone(r.Context())
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"success"}`))
	}))
	defer srv.Close()

	var throughput int64
	c, err := newHttpClient(clientConfig{
		desc:       testDescriptor(srv.URL + "/api/users/23"),
		vus:        1,
		timeout:    time.Second * 3,
		throughput: &throughput,
	})
	assert.Nil(t, err)

	code, latency, err := c.do(0)
	assert.Nil(t, err)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, latency > 0)
	assert.True(t, atomic.LoadInt64(&throughput) > 0)

	got := <-reqs
	assert.Equal(t, http.MethodGet, got.Method)
	assert.Equal(t, "/api/users/23", got.URL.Path)
	assert.Equal(t, "Bearer token", got.Header.Get("Authorization"))
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))

	// the request is reused by the next iteration
	code, _, err = c.do(0)
	assert.Nil(t, err)
	assert.Equal(t, http.StatusOK, code)
}

func Test_Httpclient_Do_no_redirect(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	}))
	defer srv.Close()

	var throughput int64
	c, err := newHttpClient(clientConfig{
		desc:       testDescriptor(srv.URL),
		vus:        1,
		timeout:    time.Second * 3,
		throughput: &throughput,
	})
	assert.Nil(t, err)

	code, _, err := c.do(0)
	assert.Nil(t, err)
	assert.Equal(t, http.StatusFound, code)
}

func Test_Httpclient_Do_refused(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	var throughput int64
	c, err := newHttpClient(clientConfig{
		desc:       testDescriptor(url),
		vus:        1,
		timeout:    time.Second,
		throughput: &throughput,
	})
	assert.Nil(t, err)

	code, _, err := c.do(0)
	assert.NotNil(t, err)
	assert.Equal(t, 0, code)
}

type fakeDoer struct {
	err  error
	code int
}

func errorFakeDoer(err error) *fakeDoer {
	return &fakeDoer{err: err}
}

func getFakeDoer(code int) *fakeDoer {
	return &fakeDoer{code: code}
}

func (d *fakeDoer) Do(_ *fasthttp.Request, resp *fasthttp.Response) error {
	if d.err != nil {
		return d.err
	}

	time.Sleep(time.Millisecond * 20)

	resp.Header.SetStatusCode(d.code)

	return nil
}

func Test_discard_pipeline_logger(t *testing.T) {
	discardLogger{}.Printf("")
}
