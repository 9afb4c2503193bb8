package assets

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	storage "github.com/supabase-community/storage-go"
)

// listLimit caps one listing call; identities hold a handful of logos.
const listLimit = 1000

// SupabaseStore lists and links objects in a Supabase Storage bucket.
type SupabaseStore struct {
	client *storage.Client
	bucket string
}

var _ Store = (*SupabaseStore)(nil)

// NewSupabaseStore takes the project URL (https://<ref>.supabase.co) and a
// service key.
func NewSupabaseStore(projectURL, apiKey, bucket string) *SupabaseStore {
	if bucket == "" {
		bucket = "logos"
	}
	endpoint := strings.TrimRight(projectURL, "/") + "/storage/v1"
	return &SupabaseStore{
		client: storage.NewClient(endpoint, apiKey, map[string]string{"apikey": apiKey}),
		bucket: bucket,
	}
}

type listResult struct {
	files []storage.FileObject
	err   error
}

// List returns the objects directly under prefix. The storage client has no
// context support, so ctx only bounds how long List waits.
func (s *SupabaseStore) List(ctx context.Context, prefix string) ([]Object, error) {
	done := make(chan listResult, 1)
	go func() {
		files, err := s.client.ListFiles(s.bucket, prefix, storage.FileSearchOptions{Limit: listLimit})
		done <- listResult{files: files, err: err}
	}()

	var res listResult
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("storage list: %w", ctx.Err())
	case res = <-done:
	}
	if res.err != nil {
		return nil, fmt.Errorf("storage list: %w", res.err)
	}
	objects := make([]Object, 0, len(res.files))
	for _, f := range res.files {
		objects = append(objects, Object{Name: f.Name})
	}
	return objects, nil
}

func (s *SupabaseStore) PublicURL(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.client.GetPublicUrl(s.bucket, strings.Join(segments, "/")).SignedURL
}
