package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"surveyetl/internal/config"
	"surveyetl/internal/survey"
)

// GCS lists objects under a bucket prefix and downloads them into TargetDir.
//
// Objects are matched against Pattern using their full object name, with
// shell-style wildcards that also match across "/" (see globRegexp). Without
// a pattern, the folder placeholder object (a name ending in "/") is skipped.
// Downloads go to a uniquely named partial file that is renamed into place,
// so a crashed download never looks complete.
type GCS struct {
	Bucket       string
	Prefix       string
	Pattern      string
	TargetDir    string
	SkipIfExists bool

	client bucketClient
	logger Logger
}

// objectInfo is the part of an object's attributes a listing needs.
type objectInfo struct {
	Name    string
	Updated time.Time
	Created time.Time
}

// bucketClient is the subset of Cloud Storage used by GCS.
type bucketClient interface {
	Objects(ctx context.Context, bucket, prefix string) ([]objectInfo, error)
	Download(ctx context.Context, bucket, object string, w io.Writer) error
	Close() error
}

// NewGCS connects to Cloud Storage. Credentials come from cfg.Credentials
// (a service account JSON file) or the ambient application default
// credentials.
func NewGCS(ctx context.Context, cfg config.GCS, logger Logger) (*GCS, error) {
	var opts []option.ClientOption
	if cfg.Credentials != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.Credentials))
	}
	if cfg.Project != "" {
		opts = append(opts, option.WithQuotaProject(cfg.Project))
	}
	c, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("source: gcs client: %w", err)
	}
	return newGCS(cfg, &gcsClient{c: c}, logger), nil
}

func newGCS(cfg config.GCS, client bucketClient, logger Logger) *GCS {
	if logger == nil {
		logger = nopLogger{}
	}
	target := cfg.TargetDir
	if target == "" {
		target = os.TempDir()
	}
	return &GCS{
		Bucket:       cfg.Bucket,
		Prefix:       cfg.Prefix,
		Pattern:      cfg.Pattern,
		TargetDir:    target,
		SkipIfExists: cfg.SkipIfExists,
		client:       client,
		logger:       logger,
	}
}

// Close releases the storage client.
func (g *GCS) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

// List implements Lister. It downloads every matching object before
// returning.
func (g *GCS) List(ctx context.Context) ([]survey.SourceFile, error) {
	objs, err := g.client.Objects(ctx, g.Bucket, g.Prefix)
	if err != nil {
		return nil, fmt.Errorf("source: list gs://%s/%s: %w", g.Bucket, g.Prefix, err)
	}

	objs, err = g.filter(objs)
	if err != nil {
		return nil, err
	}
	if len(objs) == 0 {
		g.logger.Printf("source: no objects found at gs://%s/%s", g.Bucket, g.Prefix)
		return nil, nil
	}

	if err := os.MkdirAll(g.TargetDir, 0o755); err != nil {
		return nil, fmt.Errorf("source: target dir: %w", err)
	}

	out := make([]survey.SourceFile, 0, len(objs))
	for _, o := range objs {
		local, err := g.fetch(ctx, o.Name)
		if err != nil {
			return nil, err
		}
		mod := o.Updated
		if mod.IsZero() {
			mod = o.Created
		}
		out = append(out, survey.SourceFile{
			LocalPath: local,
			Name:      "gs://" + g.Bucket + "/" + o.Name,
			Modified:  mod.UTC(),
		})
	}
	return out, nil
}

func (g *GCS) filter(objs []objectInfo) ([]objectInfo, error) {
	out := make([]objectInfo, 0, len(objs))
	if g.Pattern == "" {
		for _, o := range objs {
			if !strings.HasSuffix(o.Name, "/") {
				out = append(out, o)
			}
		}
		return out, nil
	}

	re, err := globRegexp(g.Pattern)
	if err != nil {
		return nil, fmt.Errorf("source: bad pattern %q: %w", g.Pattern, err)
	}
	for _, o := range objs {
		if re.MatchString(o.Name) {
			out = append(out, o)
		}
	}
	return out, nil
}

// fetch downloads one object and returns its local path.
func (g *GCS) fetch(ctx context.Context, object string) (string, error) {
	local := filepath.Join(g.TargetDir, strings.ReplaceAll(object, "/", ""))

	if g.SkipIfExists {
		if _, err := os.Stat(local); err == nil {
			g.logger.Printf("source: gs://%s/%s already downloaded, skipping", g.Bucket, object)
			return local, nil
		}
	}

	g.logger.Printf("source: downloading gs://%s/%s to %s", g.Bucket, object, local)
	partial := local + "." + uuid.NewString() + ".partial"
	f, err := os.Create(partial)
	if err != nil {
		return "", fmt.Errorf("source: create %s: %w", partial, err)
	}

	dlErr := g.client.Download(ctx, g.Bucket, object, f)
	closeErr := f.Close()
	if err := errors.Join(dlErr, closeErr); err != nil {
		_ = os.Remove(partial)
		return "", fmt.Errorf("source: download gs://%s/%s: %w", g.Bucket, object, err)
	}
	if err := os.Rename(partial, local); err != nil {
		_ = os.Remove(partial)
		return "", fmt.Errorf("source: rename %s: %w", partial, err)
	}
	return local, nil
}

type gcsClient struct {
	c *storage.Client
}

func (g *gcsClient) Objects(ctx context.Context, bucket, prefix string) ([]objectInfo, error) {
	it := g.c.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	var out []objectInfo
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, objectInfo{Name: attrs.Name, Updated: attrs.Updated, Created: attrs.Created})
	}
}

func (g *gcsClient) Download(ctx context.Context, bucket, object string, w io.Writer) error {
	r, err := g.c.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return err
	}
	defer r.Close()
	_, err = io.Copy(w, r)
	return err
}

func (g *gcsClient) Close() error { return g.c.Close() }
