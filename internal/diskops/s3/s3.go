// Package s3 is a supplementary reference mount.DiskOps backend writing
// through to a real S3 (or S3-compatible) bucket, demonstrating the
// contract against an out-of-process store rather than an in-memory one.
// Directories have no native S3 representation, so this backend follows
// the same convention objectfs-derived code uses: a zero-byte key whose
// name ends in "/" marks a directory.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/picofs/picofs/internal/mount"
	"github.com/picofs/picofs/pkg/errors"
	"github.com/picofs/picofs/pkg/utils"
)

// Config configures a Backend.
type Config struct {
	Bucket         string
	Region         string
	Endpoint       string // non-empty for S3-compatible stores (e.g. MinIO)
	ForcePathStyle bool
	KeyPrefix      string // prepended to every disk-relative path
}

// Backend is a mount.DiskOps implementation backed by S3. Every call takes
// context.Background() internally since DiskOps methods carry no context
// parameter (spec.md §6); a future revision of the contract could thread
// one through if host backends need cancellation.
type Backend struct {
	client *s3.Client
	bucket string
	prefix string
}

// New loads AWS credentials/region the same way the standard SDK default
// chain does (environment, shared config, EC2/ECS role) and constructs a
// Backend for cfg.Bucket.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 backend: bucket name required")
	}
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3 backend: load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	})

	prefix := strings.TrimPrefix(strings.TrimSuffix(cfg.KeyPrefix, "/"), "/")
	if prefix != "" {
		prefix += "/"
	}
	return &Backend{client: client, bucket: cfg.Bucket, prefix: prefix}, nil
}

// key turns a mount-relative virtual path into an S3 object key, rejecting
// any path that would traverse outside the configured bucket prefix.
// SecureJoin does the traversal-safe join that bare string concatenation
// can't: a path like "../../other-tenant/secret" would otherwise land
// under a sibling prefix in the same bucket instead of being refused.
func (b *Backend) key(path string) (string, error) {
	trimmed := strings.TrimPrefix(path, "/")
	if trimmed == "" {
		return b.prefix, nil
	}
	base := "/" + b.prefix
	joined, err := utils.SecureJoin(base, trimmed)
	if err != nil {
		return "", errors.InvalidPath(path)
	}
	return strings.TrimPrefix(joined, "/"), nil
}

func (b *Backend) dirKey(path string) (string, error) {
	k, err := b.key(path)
	if err != nil || k == "" {
		return k, err
	}
	return strings.TrimSuffix(k, "/") + "/", nil
}

func translateError(err error, path string) error {
	var nf *types.NoSuchKey
	if ok := asNoSuchKey(err, &nf); ok {
		return errors.NotFound(path)
	}
	return errors.Unknown(err).WithPath(path)
}

func asNoSuchKey(err error, target **types.NoSuchKey) bool {
	for err != nil {
		if nsk, ok := err.(*types.NoSuchKey); ok {
			*target = nsk
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func (b *Backend) CreateFile(path string) error {
	return b.WriteFile(path, 0, []byte{})
}

func (b *Backend) CreateDir(path string) error {
	ctx := context.Background()
	dk, err := b.dirKey(path)
	if err != nil {
		return err
	}
	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(dk),
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		return translateError(err, path)
	}
	return nil
}

func (b *Backend) ReadFile(path string, offset int64, length int) ([]byte, error) {
	ctx := context.Background()
	k, err := b.key(path)
	if err != nil {
		return nil, err
	}
	var rangeHeader *string
	if offset > 0 || length > 0 {
		if length > 0 {
			rangeHeader = aws.String(fmt.Sprintf("bytes=%d-%d", offset, offset+int64(length)-1))
		} else {
			rangeHeader = aws.String(fmt.Sprintf("bytes=%d-", offset))
		}
	}
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(k),
		Range:  rangeHeader,
	})
	if err != nil {
		return nil, translateError(err, path)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.Unknown(err).WithPath(path)
	}
	return data, nil
}

func (b *Backend) WriteFile(path string, offset int64, data []byte) error {
	ctx := context.Background()
	k, err := b.key(path)
	if err != nil {
		return err
	}
	var body []byte
	if offset > 0 {
		existing, readErr := b.ReadFile(path, 0, 0)
		if readErr != nil && !errors.Is(readErr, errors.ErrCodeNotFound) {
			return readErr
		}
		body = existing
	}
	end := int(offset) + len(data)
	if len(body) < end {
		grown := make([]byte, end)
		copy(grown, body)
		body = grown
	}
	copy(body[offset:end], data)

	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(k),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return translateError(err, path)
	}
	return nil
}

func (b *Backend) Delete(path string) error {
	ctx := context.Background()
	k, err := b.key(path)
	if err != nil {
		return err
	}
	_, err = b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(k),
	})
	if err != nil {
		return translateError(err, path)
	}
	return nil
}

func (b *Backend) List(path string) ([]mount.DiskEntry, error) {
	ctx := context.Background()
	prefix, err := b.dirKey(path)
	if err != nil {
		return nil, err
	}
	out, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:    aws.String(b.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	if err != nil {
		return nil, translateError(err, path)
	}

	var entries []mount.DiskEntry
	for _, p := range out.CommonPrefixes {
		name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(p.Prefix), prefix), "/")
		if name == "" {
			continue
		}
		entries = append(entries, mount.DiskEntry{Name: name, IsDir: true})
	}
	for _, obj := range out.Contents {
		key := aws.ToString(obj.Key)
		if key == prefix {
			continue
		}
		name := strings.TrimPrefix(key, prefix)
		if name == "" || strings.Contains(name, "/") {
			continue
		}
		entries = append(entries, mount.DiskEntry{Name: name, IsDir: false})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (b *Backend) Stat(path string) (mount.DiskMeta, error) {
	ctx := context.Background()
	k, err := b.key(path)
	if err != nil {
		return mount.DiskMeta{}, err
	}
	out, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(k),
	})
	if err != nil {
		// A directory marker may not exist as its own object; a present
		// directory marker or a non-empty listing under the prefix both
		// count as the path existing as a directory.
		dk, dkErr := b.dirKey(path)
		if dkErr == nil {
			if _, headErr := b.client.HeadObject(ctx, &s3.HeadObjectInput{
				Bucket: aws.String(b.bucket),
				Key:    aws.String(dk),
			}); headErr == nil {
				return mount.DiskMeta{IsDir: true}, nil
			}
		}
		if entries, listErr := b.List(path); listErr == nil && len(entries) > 0 {
			return mount.DiskMeta{IsDir: true}, nil
		}
		return mount.DiskMeta{}, translateError(err, path)
	}
	isDir := strings.HasSuffix(k, "/")
	return mount.DiskMeta{
		Size:       aws.ToInt64(out.ContentLength),
		IsDir:      isDir,
		ModifiedAt: aws.ToTime(out.LastModified),
	}, nil
}

func (b *Backend) Exists(path string) (bool, error) {
	_, err := b.Stat(path)
	if err != nil {
		if errors.Is(err, errors.ErrCodeNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (b *Backend) xattrKey(path, attr string) (string, error) {
	k, err := b.key(path)
	if err != nil {
		return "", err
	}
	return k + ".xattrs/" + attr, nil
}

// SetXattr stores value under a sidecar key, since S3 user-metadata is
// immutable after upload (rewriting it requires a copy of the whole
// object). This keeps xattr writes cheap and independent of object size.
func (b *Backend) SetXattr(path, key string, value []byte) error {
	ctx := context.Background()
	xk, err := b.xattrKey(path, key)
	if err != nil {
		return err
	}
	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(xk),
		Body:   bytes.NewReader(value),
	})
	if err != nil {
		return translateError(err, path)
	}
	return nil
}

func (b *Backend) GetXattr(path, key string) ([]byte, error) {
	ctx := context.Background()
	xk, err := b.xattrKey(path, key)
	if err != nil {
		return nil, err
	}
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(xk),
	})
	if err != nil {
		return nil, translateError(err, path)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.Unknown(err).WithPath(path)
	}
	return data, nil
}

func (b *Backend) RemoveXattr(path, key string) error {
	ctx := context.Background()
	xk, err := b.xattrKey(path, key)
	if err != nil {
		return err
	}
	_, err = b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(xk),
	})
	if err != nil {
		return translateError(err, path)
	}
	return nil
}

func (b *Backend) ListXattrs(path string) ([]string, error) {
	ctx := context.Background()
	k, err := b.key(path)
	if err != nil {
		return nil, err
	}
	prefix := k + ".xattrs/"
	out, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return nil, translateError(err, path)
	}
	names := make([]string, 0, len(out.Contents))
	for _, obj := range out.Contents {
		names = append(names, strings.TrimPrefix(aws.ToString(obj.Key), prefix))
	}
	sort.Strings(names)
	return names, nil
}

func (b *Backend) Compress([]string, string, string) error {
	return mount.ErrNotSupported("", "archive compress")
}
func (b *Backend) Extract(string, string) error {
	return mount.ErrNotSupported("", "archive extract")
}
func (b *Backend) ListArchive(string) ([]mount.DiskArchiveEntry, error) {
	return nil, mount.ErrNotSupported("", "archive listing")
}

func (b *Backend) MoveToTrash(path string) (string, error) {
	return "", mount.ErrNotSupported(path, "trash")
}
func (b *Backend) RestoreFromTrash(string, string) error {
	return mount.ErrNotSupported("", "trash")
}
func (b *Backend) ListTrash() ([]mount.DiskTrashEntry, error) {
	return nil, mount.ErrNotSupported("", "trash")
}
func (b *Backend) PurgeTrash(string) error { return mount.ErrNotSupported("", "trash") }
func (b *Backend) PurgeAllTrash() error    { return mount.ErrNotSupported("", "trash") }

var _ mount.DiskOps = (*Backend)(nil)
