package probe

import (
	"net/http"
	"strconv"
	"strings"
)

// Descriptor is the request every virtual user sends on every iteration.
type Descriptor struct {
	Method  string
	URL     string
	Headers []Header
}

// Descriptor derives the request from c. It has no per-iteration inputs.
func (c Config) Descriptor() (d Descriptor, err error) {
	c.setDefaults()

	d.Method = http.MethodGet
	d.URL = joinURL(c.BaseURL, c.Path)
	if _, _, err = getIsTLSAndAddr(d.URL); err != nil {
		return
	}

	d.Headers = []Header{
		{Key: "Authorization", Value: "Bearer " + c.Token},
		{Key: "Content-Type", Value: MIMEApplicationJSON},
	}

	var extra []Header
	if extra, err = headers(c.Headers).parse(); err != nil {
		return
	}
	d.Headers = append(d.Headers, extra...)

	return
}

// Check is the named predicate evaluated against every response.
type Check struct {
	Name   string
	Accept []int
}

// CheckResult is the outcome of one evaluation.
type CheckResult struct {
	Name   string
	Passed bool
}

func newCheck(accept []int) Check {
	codes := make([]string, len(accept))
	for i, code := range accept {
		codes[i] = strconv.Itoa(code)
	}
	return Check{
		Name:   "is status " + strings.Join(codes, " / "),
		Accept: accept,
	}
}

// Eval passes iff the request completed and its status is accepted.
func (c Check) Eval(code int, err error) CheckResult {
	res := CheckResult{Name: c.Name}
	if err != nil {
		return res
	}
	for _, accepted := range c.Accept {
		if code == accepted {
			res.Passed = true
			break
		}
	}
	return res
}
