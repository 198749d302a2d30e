// Package fetch provides the raw, uncached data providers of a network bundle:
// token lists, on-chain token metadata, pool state, gas prices, quotes,
// subgraph pool discovery and the gas model.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/router-providers/internal/provider"
)

// DefaultSubgraphURI serves the pre-computed V3 pool list
const DefaultSubgraphURI = "https://ipfs.io/ipfs/QmfArMYESGVJpPALh4eQXnjF8HProSF1ky3v8RmuYLJZT4"

// newRetryClient creates a new HTTP client with retry capabilities
func newRetryClient() *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 3
	c.RetryWaitMin = 500 * time.Millisecond
	c.RetryWaitMax = 3 * time.Second
	c.Logger = nil
	return c
}

// StandardClient returns an *http.Client that retries failed requests
func StandardClient() *http.Client {
	return newRetryClient().StandardClient()
}

// getJSON fetches url and decodes the JSON body into out
func getJSON(ctx context.Context, client *http.Client, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	logrus.Debugf("Fetching %s", url)
	resp, err := client.Do(req)
	if err != nil {
		return provider.Transient(fmt.Errorf("error fetching %s: %w", url, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("%s: status %d, body: %s", url, resp.StatusCode, string(body))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return provider.Transient(err)
		}
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %w", provider.ErrNotFound, err)
		}
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("error decoding response from %s: %w", url, err)
	}
	return nil
}
