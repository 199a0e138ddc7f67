package chipalgo

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/GrappleRobotics/grapple-bundle/svd"
	"github.com/cenkalti/backoff/v4"
)

/* Larger responses are refused rather than truncated */
var maxDocumentSize = 32 << 20

// HTTPLoader downloads documents from BaseURL/<name>. Server errors and
// transport failures are retried with exponential backoff, client errors
// are not.
type HTTPLoader struct {
	BaseURL string
	Client  *http.Client

	MaxRetries      uint64
	InitialInterval time.Duration

	LogFunc func(level int, format string, param ...interface{})
}

func (l *HTTPLoader) client() *http.Client {
	if l.Client != nil {
		return l.Client
	}
	return http.DefaultClient
}

func (l *HTTPLoader) Fetch(name string) ([]byte, error) {
	target, err := url.JoinPath(l.BaseURL, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrorFetchFailed, err)
	}

	var data []byte
	operation := func() error {
		resp, err := l.client().Get(target)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrorFetchFailed, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(fmt.Errorf("%w: GET %s: %s", ErrorMapNotFound, target, resp.Status))
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return backoff.Permanent(fmt.Errorf("%w: GET %s: %s", ErrorFetchFailed, target, resp.Status))
		case resp.StatusCode != http.StatusOK:
			return fmt.Errorf("%w: GET %s: %s", ErrorFetchFailed, target, resp.Status)
		}

		data, err = io.ReadAll(io.LimitReader(resp.Body, int64(maxDocumentSize)+1))
		if err != nil {
			return fmt.Errorf("%w: GET %s: %v", ErrorFetchFailed, target, err)
		}
		if len(data) > maxDocumentSize {
			data = nil
			return backoff.Permanent(fmt.Errorf("%w: GET %s: document too large", ErrorFetchFailed, target))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	if l.InitialInterval > 0 {
		bo.InitialInterval = l.InitialInterval
	}

	err = backoff.RetryNotify(operation, backoff.WithMaxRetries(bo, l.MaxRetries), func(e error, d time.Duration) {
		if l.LogFunc != nil {
			l.LogFunc(2, "Retrying in %v: %v", d, e)
		}
	})
	if err != nil {
		return nil, err
	}

	return data, nil
}

func (l *HTTPLoader) Load(name string) (*svd.Device, error) {
	raw, err := l.Fetch(name)
	if err != nil {
		return nil, err
	}
	return ParseDocument(name, raw)
}
