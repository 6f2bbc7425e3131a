package install

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"time"

	"ffpipe/internal/faults"
)

const releaseBase = "https://github.com/eugeneware/ffmpeg-static/releases/download/b6.0/"

var releaseAssets = map[string]string{
	"windows/amd64": "ffmpeg-win32-x64.gz",
	"linux/amd64":   "ffmpeg-linux-x64.gz",
	"linux/arm64":   "ffmpeg-linux-arm64.gz",
	"darwin/amd64":  "ffmpeg-darwin-x64.gz",
	"darwin/arm64":  "ffmpeg-darwin-arm64.gz",
}

// DefaultURL returns the static build for the running platform.
func DefaultURL() (string, error) {
	return URLFor(runtime.GOOS, runtime.GOARCH)
}

// URLFor returns the static build for goos/goarch.
func URLFor(goos, goarch string) (string, error) {
	asset, ok := releaseAssets[goos+"/"+goarch]
	if !ok {
		return "", faults.Wrap(faults.ErrConfiguration, "install", "resolve url",
			fmt.Sprintf("no prebuilt ffmpeg for %s/%s; set ffmpeg.download_url", goos, goarch), nil)
	}
	return releaseBase + asset, nil
}

// Fetcher retrieves a release asset. length is -1 when unknown.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (body io.ReadCloser, length int64, err error)
}

// HTTPFetcher downloads over HTTP(S).
type HTTPFetcher struct {
	Client *http.Client
}

// NewHTTPFetcher returns a fetcher whose client gives up on stalled
// connections but not on long downloads.
func NewHTTPFetcher() *HTTPFetcher {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = 30 * time.Second
	return &HTTPFetcher{Client: &http.Client{Transport: transport}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (io.ReadCloser, int64, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, 0, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return resp.Body, resp.ContentLength, nil
}
