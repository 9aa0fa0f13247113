package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/simstudio/copilot-gateway/pkg/api"
)

// Connect opens an upstream streaming connection with retry. newReq is
// called once per attempt because request bodies cannot be replayed.
// A non-2xx status or network failure on the final attempt yields an
// upstream_connect APIError; on success the response body is open and
// owned by the caller.
func Connect(ctx context.Context, client *http.Client, maxAttempts int, newReq func() (*http.Request, error)) (*http.Response, error) {
	return RetryWithBackoff(ctx, maxAttempts, func() (*http.Response, error) {
		req, err := newReq()
		if err != nil {
			return nil, api.NewUpstreamConnectError("building upstream request: " + err.Error())
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, api.NewUpstreamConnectError("opening upstream stream: " + err.Error())
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return nil, api.NewUpstreamConnectError(
				fmt.Sprintf("upstream returned %s: %s", resp.Status, string(body)))
		}

		if resp.Body == nil {
			return nil, api.NewUpstreamConnectError("upstream response has no body")
		}

		return resp, nil
	})
}
