package probe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func Test_Config_setDefaults(t *testing.T) {
	t.Parallel()

	t.Run("empty", func(t *testing.T) {
		c := Config{}
		c.setDefaults()
		assert.Equal(t, DefaultBaseURL, c.BaseURL)
		assert.Equal(t, DefaultPath, c.Path)
		assert.Equal(t, DefaultToken, c.Token)
		assert.Equal(t, 20, c.VUs)
		assert.Equal(t, time.Second*30, c.Duration)
		assert.Equal(t, DefaultTimeout, c.Timeout)
		assert.Equal(t, []int{200, 429}, c.Accept)
	})

	t.Run("keep custom values", func(t *testing.T) {
		c := Config{VUs: 1, Duration: time.Second, Accept: []int{204}, Token: "t"}
		c.setDefaults()
		assert.Equal(t, 1, c.VUs)
		assert.Equal(t, time.Second, c.Duration)
		assert.Equal(t, []int{204}, c.Accept)
		assert.Equal(t, "t", c.Token)
	})

	t.Run("default accept is not shared", func(t *testing.T) {
		c := Config{}
		c.setDefaults()
		c.Accept[0] = 500
		assert.Equal(t, 200, DefaultAccept[0])
	})
}

func Test_Config_validate(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		c    Config
		ok   bool
	}{
		{"zero", Config{}, true},
		{"pass rate too high", Config{MinPassRate: 1.5}, false},
		{"negative pass rate", Config{MinPassRate: -0.1}, false},
		{"negative iterations", Config{Iterations: -1}, false},
		{"pipeline", Config{Pipeline: true}, true},
		{"pipeline with http1", Config{Pipeline: true, HTTP1: true}, false},
		{"pipeline with http2", Config{Pipeline: true, HTTP2: true}, false},
		{"http1 and http2", Config{HTTP1: true, HTTP2: true}, true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			err := tc.c.validate()
			if tc.ok {
				assert.Nil(t, err)
			} else {
				assert.NotNil(t, err)
			}
		})
	}
}

func Test_getIsTLSAndAddr(t *testing.T) {
	t.Parallel()

	t.Run("unsupported protocol", func(t *testing.T) {
		_, _, err := getIsTLSAndAddr("ftp://uri")
		assert.NotNil(t, err)
	})

	t.Run("missing host", func(t *testing.T) {
		_, _, err := getIsTLSAndAddr("http://")
		assert.NotNil(t, err)
	})

	t.Run("https", func(t *testing.T) {
		isTLS, addr, err := getIsTLSAndAddr("https://1.1.1.1:8443/path")
		assert.Nil(t, err)
		assert.True(t, isTLS)
		assert.Equal(t, "1.1.1.1:8443", addr)
	})

	t.Run("default protocol port", func(t *testing.T) {
		isTLS, addr, err := getIsTLSAndAddr("http://example.com/api")
		assert.Nil(t, err)
		assert.False(t, isTLS)
		assert.Equal(t, "example.com:80", addr)
	})
}

func Test_addMissingPort(t *testing.T) {
	t.Parallel()

	t.Run("return directly", func(t *testing.T) {
		addr := "127.0.0.1:8080"
		assert.Equal(t, addr, addMissingPort(addr, false))
	})

	t.Run("append 443", func(t *testing.T) {
		addr := "127.0.0.1"
		assert.Equal(t, addr+":443", addMissingPort(addr, true))
	})

	t.Run("ipv6", func(t *testing.T) {
		assert.Equal(t, "[::1]:80", addMissingPort("[::1]", false))
	})
}

func Test_readClientCert(t *testing.T) {
	t.Parallel()

	t.Run("none", func(t *testing.T) {
		certs, err := readClientCert("", "")
		assert.Nil(t, err)
		assert.Len(t, certs, 0)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := readClientCert("not-exist.pem", "not-exist.key")
		assert.NotNil(t, err)
	})
}

func Test_Config_tlsConfig(t *testing.T) {
	t.Parallel()

	c := &Config{Insecure: true}
	conf, err := c.tlsConfig()
	assert.Nil(t, err)
	assert.True(t, conf.InsecureSkipVerify)
}
