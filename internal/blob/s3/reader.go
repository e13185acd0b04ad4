package s3blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/alanyoungcy/marginterm/internal/domain"
)

// Reader implements domain.BlobReader over the archive bucket. Paths are
// relative to the client prefix.
type Reader struct {
	c *Client
}

// NewReader creates a Reader for the client's bucket and prefix.
func NewReader(c *Client) *Reader {
	return &Reader{c: c}
}

// Get opens the archive at path. The caller closes the body. A missing
// object is domain.ErrNotFound.
func (r *Reader) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	out, err := r.c.S3().GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.c.Bucket()),
		Key:    aws.String(r.c.Key(path)),
	})
	if err != nil {
		if isNotFound(err) {
			err = domain.ErrNotFound
		}
		return nil, fmt.Errorf("s3blob: get %s: %w", path, err)
	}
	return out.Body, nil
}

// List returns every archive under prefix sorted by path, which for archive
// paths is cutoff order. Folder placeholder keys are skipped.
func (r *Reader) List(ctx context.Context, prefix string) ([]domain.BlobInfo, error) {
	var infos []domain.BlobInfo

	pages := s3.NewListObjectsV2Paginator(r.c.S3(), &s3.ListObjectsV2Input{
		Bucket: aws.String(r.c.Bucket()),
		Prefix: aws.String(r.c.Key(prefix)),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3blob: list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/") {
				continue
			}
			infos = append(infos, domain.BlobInfo{
				Path:         strings.TrimPrefix(key, r.c.prefix),
				Size:         aws.ToInt64(obj.Size),
				ContentType:  archiveContentType,
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Path < infos[j].Path })
	return infos, nil
}

// Stats summarises a listing of archive objects.
type Stats struct {
	Objects int
	Bytes   int64
	Newest  time.Time
	Latest  string
}

// Summarize folds a listing into Stats. Latest is the last path in cutoff
// order.
func Summarize(infos []domain.BlobInfo) Stats {
	var st Stats
	for _, info := range infos {
		st.Objects++
		st.Bytes += info.Size
		if info.LastModified.After(st.Newest) {
			st.Newest = info.LastModified
		}
		if info.Path > st.Latest {
			st.Latest = info.Path
		}
	}
	return st
}

// isNotFound reports whether err means the object does not exist. GetObject
// answers NoSuchKey; some S3-compatible stores answer a bare 404.
func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	var respErr *smithyhttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound
}

var _ domain.BlobReader = (*Reader)(nil)
