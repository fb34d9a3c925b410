// Package proxy implements the Invocation Proxy: parsing the
// "/function/<service>[.<namespace>][/rest]" path grammar and streaming
// the request through to the resolved function, forwarding headers and
// adding X-Forwarded-* only when absent.
package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/faas-containerd/faasd-go/pkg/types"
)

// ErrInvalidFunctionName is returned when the path has no function
// identifier segment at all.
var ErrInvalidFunctionName = errors.New("invalid function name")

// clientTimeout bounds the upstream round trip.
const clientTimeout = 10 * time.Second

// ParsedPath is the decoded form of a "/function/..." request path.
type ParsedPath struct {
	Query types.Query
	Path  string
}

// ParsePath splits the portion of the URL path following "/function/"
// into a (service[.namespace], rest) pair: split on the first "/" to
// separate the identifier from the rest of the path, then split the
// identifier on its *last* "." to separate service from namespace.
func ParsePath(trailing string) (ParsedPath, error) {
	trailing = strings.TrimPrefix(trailing, "/")
	if trailing == "" {
		return ParsedPath{}, ErrInvalidFunctionName
	}

	identifier := trailing
	rest := ""
	if idx := strings.Index(trailing, "/"); idx >= 0 {
		identifier = trailing[:idx]
		rest = trailing[idx:]
	}
	if identifier == "" {
		return ParsedPath{}, ErrInvalidFunctionName
	}

	service := identifier
	namespace := ""
	if idx := strings.LastIndex(identifier, "."); idx >= 0 {
		service = identifier[:idx]
		namespace = identifier[idx+1:]
	}

	return ParsedPath{
		Query: types.Query{Service: service, Namespace: namespace},
		Path:  rest,
	}, nil
}

// Proxy performs a single streamed round trip to upstream, copying
// method, headers and body from r and streaming the upstream response
// directly to w. It is a hand-rolled RoundTripper-based forward rather
// than httputil.ReverseProxy, so that forwarding headers can be set
// precisely (only when absent) before the request ever leaves this
// process.
type Proxy struct {
	transport http.RoundTripper
}

// New builds a Proxy using http.DefaultTransport.
func New() *Proxy {
	return &Proxy{transport: http.DefaultTransport}
}

// Forward sends r to upstream+path and streams the response back to w.
func (p *Proxy) Forward(ctx context.Context, w http.ResponseWriter, r *http.Request, upstream *url.URL, path string) error {
	target := *upstream
	target.Path = path
	target.RawQuery = r.URL.RawQuery

	ctx, cancel := context.WithTimeout(ctx, clientTimeout)
	defer cancel()

	outReq, err := http.NewRequestWithContext(ctx, r.Method, target.String(), r.Body)
	if err != nil {
		return err
	}
	outReq.Header = r.Header.Clone()
	addForwardingHeaders(outReq, r)

	resp, err := p.transport.RoundTrip(outReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, err = io.Copy(w, resp.Body)
	return err
}

// addForwardingHeaders sets X-Forwarded-Host and X-Forwarded-For only
// when the inbound request does not already carry them.
func addForwardingHeaders(outReq, inReq *http.Request) {
	if outReq.Header.Get("X-Forwarded-Host") == "" && inReq.Host != "" {
		outReq.Header.Set("X-Forwarded-Host", inReq.Host)
	}
	if outReq.Header.Get("X-Forwarded-For") == "" {
		if host, _, err := net.SplitHostPort(inReq.RemoteAddr); err == nil {
			outReq.Header.Set("X-Forwarded-For", host)
		} else if inReq.RemoteAddr != "" {
			outReq.Header.Set("X-Forwarded-For", inReq.RemoteAddr)
		}
	}
}
