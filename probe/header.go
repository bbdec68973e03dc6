package probe

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/valyala/fasthttp"
)

// Header is a single request header in the order it is sent.
type Header struct {
	Key   string
	Value string
}

type headers []string

func (h headers) parse() ([]Header, error) {
	list := make([]Header, 0, len(h))
	for _, header := range h {
		i := strings.IndexByte(header, ':')
		if i <= 0 {
			return nil, fmt.Errorf("failed to parse request header %s", header)
		}
		k, v := strings.TrimSpace(header[:i]), strings.TrimSpace(header[i+1:])
		if k == "" {
			return nil, fmt.Errorf("failed to parse request header %s", header)
		}
		list = append(list, Header{Key: k, Value: v})
	}
	return list, nil
}

func writeToFasthttp(req *fasthttp.Request, hs []Header) {
	for _, h := range hs {
		req.Header.Add(h.Key, h.Value)
	}
}

func writeToHttp(req *http.Request, hs []Header) {
	for _, h := range hs {
		req.Header.Add(h.Key, h.Value)
	}
}
