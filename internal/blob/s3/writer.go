package s3blob

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/alanyoungcy/marginterm/internal/domain"
)

// minPartSize is the S3 multipart minimum (5 MiB).
const minPartSize int64 = 5 * 1024 * 1024

// Writer implements domain.BlobWriter through the transfer manager, so a
// large archive is split into parts and a small one is a single PutObject.
type Writer struct {
	c        *Client
	uploader *manager.Uploader
}

// NewWriter creates a Writer. partSize below the S3 minimum is clamped.
func NewWriter(c *Client, partSize int64) *Writer {
	partSize = max(partSize, minPartSize)
	return &Writer{
		c: c,
		uploader: manager.NewUploader(c.S3(), func(u *manager.Uploader) {
			u.PartSize = partSize
		}),
	}
}

// Put uploads data to path under the client prefix. Paths ending in .gz are
// stored with a gzip content encoding.
func (w *Writer) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	in := &s3.PutObjectInput{
		Bucket:      aws.String(w.c.Bucket()),
		Key:         aws.String(w.c.Key(path)),
		Body:        data,
		ContentType: aws.String(contentType),
	}
	if encoding := contentEncoding(path); encoding != "" {
		in.ContentEncoding = aws.String(encoding)
	}
	if _, err := w.uploader.Upload(ctx, in); err != nil {
		return fmt.Errorf("s3blob: upload %s: %w", path, err)
	}
	return nil
}

func contentEncoding(path string) string {
	if strings.HasSuffix(path, ".gz") {
		return "gzip"
	}
	return ""
}

var _ domain.BlobWriter = (*Writer)(nil)
