package linkscan

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/go-pkgz/repeater/v2"
)

// HTTPClient is an interface for http client, satisfied by http.Client.
// The client must not follow redirects on its own, the scanner inspects
// redirect responses itself.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// resolveRedirects follows the redirect chain of a URL hop by hop, up to
// MaxRedirects. It returns the last known URL, never an intermediate error
// value: a timeout or depth exhaustion terminates resolution at the current
// URL, any other network failure is reported so the caller can penalize the
// unresolved shortener.
func (s *Scanner) resolveRedirects(ctx context.Context, rawURL string) (string, error) {
	current := rawURL
	for depth := 0; depth < s.params.MaxRedirects; depth++ {
		location, done, err := s.followHop(ctx, current)
		if err != nil {
			if isTimeout(err) {
				return current, nil // timeout stops resolution, not an error
			}
			return current, err
		}
		if done {
			return current, nil
		}
		current = location
	}
	return current, nil
}

// followHop issues a single GET and inspects the response. It returns the
// next location, or done=true when the response is not a redirect.
func (s *Scanner) followHop(ctx context.Context, current string) (location string, done bool, err error) {
	hopCtx, cancel := context.WithTimeout(ctx, s.params.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(hopCtx, http.MethodGet, current, http.NoBody)
	if err != nil {
		return "", false, err
	}
	req.Header.Set("User-Agent", s.params.UserAgent)

	var resp *http.Response
	err = repeater.NewFixed(2, 50*time.Millisecond).Do(hopCtx, func() error {
		r, e := s.params.HTTPClient.Do(req)
		if e != nil {
			return e
		}
		resp = r
		return nil
	})
	if err != nil {
		return "", false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 300 || resp.StatusCode >= 400 {
		return "", true, nil
	}
	loc := resp.Header.Get("Location")
	if loc == "" {
		return "", true, nil
	}

	next, err := resolveLocation(current, loc)
	if err != nil {
		return "", true, nil // unparsable redirect target, stop at current
	}
	return next, false, nil
}

// resolveLocation resolves a possibly relative Location header against the
// current URL.
func resolveLocation(current, location string) (string, error) {
	locURL, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	if locURL.IsAbs() {
		return location, nil
	}
	base, err := url.Parse(current)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(locURL).String(), nil
}

// isTimeout reports if an error is a timeout rather than a hard failure.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
