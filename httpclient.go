package darkrecon

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/jtacoma/uritemplates"
	"golang.org/x/net/http2"
)

// newHTTPClient returns an HTTP client suitable for sharing between
// adapters: stateless, safe for concurrent use, connection pooling on.
func newHTTPClient() *http.Client {
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConnsPerHost:   4,
		ResponseHeaderTimeout: 10 * time.Second,
		IdleConnTimeout:       30 * time.Second,
	}
	// HTTP2 isn't enabled by default on a custom transport
	if err := http2.ConfigureTransport(tr); err != nil {
		Log.WithError(err).Warn("failed to enable http2 on shared transport")
	}
	return &http.Client{Transport: tr}
}

// defaultHTTPClient is shared by all HTTP adapters. Adapters must not
// mutate it.
var defaultHTTPClient = newHTTPClient()

// endpoint is a provider API endpoint defined as a URI template with a
// {target} variable.
type endpoint struct {
	template *uritemplates.UriTemplate
}

func newEndpoint(tmpl string) (endpoint, error) {
	t, err := uritemplates.Parse(tmpl)
	if err != nil {
		return endpoint{}, err
	}
	return endpoint{template: t}, nil
}

func (e endpoint) url(vars map[string]interface{}) (string, error) {
	return e.template.Expand(vars)
}

// getJSON issues a GET request and decodes the JSON body into plain data.
// Non-2xx statuses become an HTTPStatusError carrying any Retry-After
// hint; a body that fails to decode on a 2xx is a decodeError, which the
// retry policy treats as permanent.
func getJSON(ctx context.Context, client *http.Client, url string, header http.Header) (interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &HTTPStatusError{
			Status:     resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var payload interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &decodeError{cause: err}
	}
	return payload, nil
}

// getJSONObject is getJSON for endpoints that return a JSON object.
// Payloads of any other shape are wrapped under the given key so that
// adapters always hand a map to the normalizer.
func getJSONObject(ctx context.Context, client *http.Client, url string, header http.Header, wrapKey string) (map[string]interface{}, error) {
	payload, err := getJSON(ctx, client, url, header)
	if err != nil {
		return nil, err
	}
	if m, ok := payload.(map[string]interface{}); ok {
		return m, nil
	}
	return map[string]interface{}{wrapKey: payload}, nil
}

// parseRetryAfter understands the delta-seconds and HTTP-date forms.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
