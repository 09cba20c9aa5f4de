// Package httpclient implements the control-plane HTTP port on net/http.
package httpclient

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"ppn/application/ppn"
)

const defaultTimeout = 30 * time.Second

type Fetcher struct {
	client *http.Client
}

func NewFetcher() *Fetcher {
	return &Fetcher{client: &http.Client{Timeout: defaultTimeout}}
}

// NewFetcherWithClient lets callers supply a client with a custom transport,
// e.g. one dialing through a protected socket.
func NewFetcherWithClient(client *http.Client) *Fetcher {
	return &Fetcher{client: client}
}

func (f *Fetcher) PostJSON(url string, body []byte) (ppn.HttpResponse, error) {
	resp, err := f.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return ppn.HttpResponse{}, fmt.Errorf("post %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return ppn.HttpResponse{}, fmt.Errorf("read response from %s: %w", url, err)
	}
	return ppn.HttpResponse{
		Code:     resp.StatusCode,
		Message:  resp.Status,
		JSONBody: payload,
	}, nil
}
