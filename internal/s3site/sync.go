package s3site

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	pathpkg "path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/lstoll/site-deploy/internal/siteconfig"
)

// deleteBatchSize is the DeleteObjects limit.
const deleteBatchSize = 1000

// TargetResult summarises the sync of one destination.
type TargetResult struct {
	Postfix   string
	Uploaded  int
	Unchanged int
	Deleted   int
}

type remoteObject struct {
	etag string
	size int64
}

// syncDir mirrors dir to bucket under dest. Objects under the destination
// that do not exist locally are deleted, except those under a prefix in
// keep and, when dest preserves archives, those in a marked build archive.
func (p *Publisher) syncDir(ctx context.Context, bucket, dir string, dest siteconfig.Destination, keep []string) (TargetResult, error) {
	res := TargetResult{Postfix: dest.Postfix}
	prefix := dest.KeyPrefix()

	p.logger().Info("Syncing directory to S3", "dir", dir, "bucket", bucket, "prefix", prefix)

	existing, err := p.listRemote(ctx, bucket, prefix)
	if err != nil {
		return res, err
	}
	var archived map[string]bool
	if dest.PreserveArchives {
		archived = archivedDirs(existing, prefix)
	}
	if dest.Archive {
		delete(existing, dest.MarkerKey())
	}

	files, err := p.listLocal(dir)
	if err != nil {
		return res, fmt.Errorf("failed to sync directory: %w", err)
	}
	for _, lf := range files {
		key := prefix + lf.rel
		remote, seen := existing[key]
		delete(existing, key)

		uploaded, err := p.syncFile(ctx, bucket, key, lf.path, remote, seen)
		if err != nil {
			return res, err
		}
		if uploaded {
			res.Uploaded++
		} else {
			res.Unchanged++
		}
	}

	if dest.Archive {
		if err := p.putMarker(ctx, bucket, dest); err != nil {
			return res, err
		}
	}

	var toDelete []s3types.ObjectIdentifier
	for _, key := range sortedKeys(existing) {
		if keepKey(key, prefix, archived, keep) {
			continue
		}
		p.logger().Info("Deleting", "key", key)
		toDelete = append(toDelete, s3types.ObjectIdentifier{Key: aws.String(key)})
	}

	for i := 0; i < len(toDelete); i += deleteBatchSize {
		end := min(i+deleteBatchSize, len(toDelete))
		out, err := p.Client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &s3types.Delete{
				Objects: toDelete[i:end],
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			return res, fmt.Errorf("failed to delete objects: %w", err)
		}
		if len(out.Errors) > 0 {
			e := out.Errors[0]
			return res, fmt.Errorf("failed to delete %s: %s", aws.ToString(e.Key), aws.ToString(e.Message))
		}
		res.Deleted += end - i
	}

	return res, nil
}

// syncFile uploads path to key unless the remote copy has the same size and
// MD5. It reports whether an upload happened.
func (p *Publisher) syncFile(ctx context.Context, bucket, key, path string, remote remoteObject, seen bool) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	sum, size, err := md5File(f)
	if err != nil {
		return false, fmt.Errorf("hashing %s: %w", path, err)
	}
	if seen && remote.size == size && remote.etag == sum {
		p.logger().Debug("Unchanged", "key", key)
		return false, nil
	}

	p.logger().Info("Uploading", "key", key)
	_, err = p.uploader().Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(ContentType(path)),
	})
	if err != nil {
		return false, fmt.Errorf("uploading %s: %w", key, err)
	}
	return true, nil
}

func (p *Publisher) putMarker(ctx context.Context, bucket string, dest siteconfig.Destination) error {
	_, err := p.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(dest.MarkerKey()),
		Body:        strings.NewReader(dest.Postfix + "\n"),
		ContentType: aws.String("text/plain; charset=utf-8"),
	})
	if err != nil {
		return fmt.Errorf("writing archive marker %s: %w", dest.MarkerKey(), err)
	}
	return nil
}

type localFile struct {
	// rel is slash separated and relative to the walked directory.
	rel  string
	path string
}

// listLocal returns the files below dir in lexical order. Symlinks are
// followed. A link to a directory that is already being walked, or to an
// ancestor of the link, is skipped, as are dangling links and special
// files.
func (p *Publisher) listLocal(dir string) ([]localFile, error) {
	var files []localFile
	active := make(map[string]bool)

	var walk func(root, relRoot string) error
	walk = func(root, relRoot string) error {
		realRoot, err := filepath.EvalSymlinks(root)
		if err != nil {
			return err
		}
		active[realRoot] = true
		defer delete(active, realRoot)

		return filepath.WalkDir(realRoot, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			relPath, err := filepath.Rel(realRoot, path)
			if err != nil {
				return err
			}
			rel := pathpkg.Join(relRoot, filepath.ToSlash(relPath))

			switch {
			case d.Type()&fs.ModeSymlink != 0:
				info, err := os.Stat(path)
				if err != nil {
					p.logger().Debug("Skipping dangling symlink", "path", path)
					return nil
				}
				if !info.IsDir() {
					if info.Mode().IsRegular() {
						files = append(files, localFile{rel: rel, path: path})
					}
					return nil
				}
				target, err := filepath.EvalSymlinks(path)
				if err != nil {
					return err
				}
				parent, err := filepath.EvalSymlinks(filepath.Dir(path))
				if err != nil {
					return err
				}
				if active[target] || isWithin(parent, target) {
					p.logger().Debug("Skipping symlink loop", "path", path, "target", target)
					return nil
				}
				return walk(target, rel)
			case d.IsDir():
				return nil
			case !d.Type().IsRegular():
				p.logger().Debug("Skipping special file", "path", path)
				return nil
			}
			files = append(files, localFile{rel: rel, path: path})
			return nil
		})
	}

	if err := walk(dir, ""); err != nil {
		return nil, err
	}
	return files, nil
}

// isWithin reports whether path is dir or below it.
func isWithin(path, dir string) bool {
	return path == dir || strings.HasPrefix(path, dir+string(filepath.Separator))
}

func (p *Publisher) listRemote(ctx context.Context, bucket, prefix string) (map[string]remoteObject, error) {
	existing := make(map[string]remoteObject)
	in := &s3.ListObjectsV2Input{Bucket: aws.String(bucket)}
	if prefix != "" {
		in.Prefix = aws.String(prefix)
	}
	paginator := s3.NewListObjectsV2Paginator(p.Client, in)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			existing[aws.ToString(obj.Key)] = remoteObject{
				etag: strings.Trim(aws.ToString(obj.ETag), `"`),
				size: aws.ToInt64(obj.Size),
			}
		}
	}
	return existing, nil
}

// keepKey reports whether a remote-only key survives mirror deletion. A key
// is kept when it is under one of the keep prefixes or inside a child
// directory of prefix that is listed in archived.
func keepKey(key, prefix string, archived map[string]bool, keep []string) bool {
	for _, k := range keep {
		if strings.HasPrefix(key, k) {
			return true
		}
	}
	seg, _, nested := strings.Cut(strings.TrimPrefix(key, prefix), "/")
	return nested && archived[seg]
}

// archivedDirs returns the child directories of prefix that hold an
// archive marker.
func archivedDirs(remote map[string]remoteObject, prefix string) map[string]bool {
	dirs := make(map[string]bool)
	for key := range remote {
		seg, rest, nested := strings.Cut(strings.TrimPrefix(key, prefix), "/")
		if nested && seg != "" && rest == siteconfig.ArchiveMarker {
			dirs[seg] = true
		}
	}
	return dirs
}

// md5File returns the hex MD5 and size of f and rewinds it.
func md5File(f io.ReadSeeker) (string, int64, error) {
	h := md5.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

func sortedKeys(m map[string]remoteObject) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
