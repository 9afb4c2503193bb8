package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
)

// DirStore serves logos from a local directory tree laid out exactly like the
// remote bucket: <root>/<identity>/<name>.
type DirStore struct {
	root string
}

var _ Store = (*DirStore)(nil)

func NewDirStore(root string) (*DirStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	return &DirStore{root: abs}, nil
}

func (s *DirStore) List(_ context.Context, prefix string) ([]Object, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, filepath.Clean("/"+prefix)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	objects := make([]Object, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			objects = append(objects, Object{Name: e.Name()})
		}
	}
	return objects, nil
}

// PublicURL returns a file:// URL relative to the store root, readable by a
// fetcher from NewLocalFetcher over the same root.
func (s *DirStore) PublicURL(path string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(filepath.Clean("/" + path))}
	return u.String()
}

func (s *DirStore) Root() string { return s.root }

// HTTPFetcher downloads public URLs.
type HTTPFetcher struct {
	client   *http.Client
	maxBytes int64
}

var _ Fetcher = (*HTTPFetcher)(nil)

func NewHTTPFetcher(client *http.Client, maxBytes int64) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()}
	}
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	return &HTTPFetcher{client: client, maxBytes: maxBytes}
}

// NewLocalFetcher also serves file:// URLs, resolved inside root only.
func NewLocalFetcher(root string, maxBytes int64) *HTTPFetcher {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.RegisterProtocol("file", http.NewFileTransport(http.Dir(root)))
	return NewHTTPFetcher(&http.Client{Transport: t}, maxBytes)
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("fetch %s: body exceeds %d bytes", url, f.maxBytes)
	}
	return data, nil
}
