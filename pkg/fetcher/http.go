package fetcher

import (
	"fmt"
	"io"
	"net/http"

	"github.com/Voskan/datawatch/pkg/errs"
)

// getURL performs a GET against target, returning the response with its body
// already drained into content. When allowFailure is false, a 4xx or 5xx
// status is reported as an error (the Go analogue of
// requests.Response.raise_for_status()); when true, the error is wrapped as
// a TransientFetchError and the (possibly nil) response/content are
// returned alongside it so the caller can still hand them to OnFetched.
func (l *Loop) getURL(target string, allowFailure bool) (*http.Response, []byte, error) {
	req, err := http.NewRequest(http.MethodGet, target, nil)
	if err != nil {
		return nil, nil, err
	}
	if l.cfg.userAgent != "" {
		req.Header.Set("User-Agent", l.cfg.userAgent)
	}
	resp, err := l.cfg.httpClient.Do(req)
	if err != nil {
		if allowFailure {
			return nil, nil, &errs.TransientFetchError{URL: target, Err: err}
		}
		return nil, nil, err
	}
	defer resp.Body.Close()
	content, err := io.ReadAll(resp.Body)
	if err != nil {
		if allowFailure {
			return resp, nil, &errs.TransientFetchError{URL: target, Err: err}
		}
		return resp, nil, err
	}
	if resp.StatusCode >= 400 {
		statusErr := fmt.Errorf("fetcher: %s returned status %s", target, resp.Status)
		if allowFailure {
			return resp, content, &errs.TransientFetchError{URL: target, Err: statusErr}
		}
		return resp, content, statusErr
	}
	return resp, content, nil
}
