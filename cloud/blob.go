/*
Copyright © 2019 the nctiff authors.
This file is part of nctiff.

nctiff is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

nctiff is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with nctiff.  If not, see <http://www.gnu.org/licenses/>.
*/

package cloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// retry runs op with exponential backoff until it succeeds, returns a
// permanent error, or ctx is done.
func retry(ctx context.Context, log logrus.FieldLogger, what string, op func() error) error {
	return backoff.RetryNotify(
		func() error {
			err := op()
			var perm *backoff.PermanentError
			if err != nil && !errors.As(err, &perm) && gcerrors.Code(err) == gcerrors.NotFound {
				return backoff.Permanent(err)
			}
			return err
		},
		backoff.WithContext(backoff.NewExponentialBackOff(), ctx),
		func(err error, d time.Duration) {
			log.WithError(err).Warnf("cloud: %s: retrying in %v", what, d)
		},
	)
}

// Fetch downloads the blob at src into dir and returns the path of the
// local copy, which has the same base name as the blob.
func Fetch(ctx context.Context, log logrus.FieldLogger, src, dir string) (string, error) {
	loc, err := Parse(src)
	if err != nil {
		return "", err
	}
	bucket, err := OpenBucket(ctx, loc.Bucket)
	if err != nil {
		return "", fmt.Errorf("cloud: opening bucket for %s: %v", src, err)
	}
	defer bucket.Close()

	dst := filepath.Join(dir, path.Base(loc.Key))
	err = retry(ctx, log, "downloading "+src, func() error {
		r, err := bucket.NewReader(ctx, loc.Key, nil)
		if err != nil {
			return err
		}
		defer r.Close()
		w, err := os.Create(dst)
		if err != nil {
			return backoff.Permanent(err)
		}
		if _, err := io.Copy(w, r); err != nil {
			w.Close()
			return err
		}
		return w.Close()
	})
	if err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("cloud: downloading %s: %v", src, err)
	}
	return dst, nil
}

// Publish uploads the local file at src to the blob path dst.
func Publish(ctx context.Context, log logrus.FieldLogger, src, dst string) error {
	loc, err := Parse(dst)
	if err != nil {
		return err
	}
	bucket, err := OpenBucket(ctx, loc.Bucket)
	if err != nil {
		return fmt.Errorf("cloud: opening bucket for %s: %v", dst, err)
	}
	defer bucket.Close()

	err = retry(ctx, log, "uploading "+dst, func() error {
		r, err := os.Open(src)
		if err != nil {
			return backoff.Permanent(err)
		}
		defer r.Close()
		w, err := bucket.NewWriter(ctx, loc.Key, &blob.WriterOptions{})
		if err != nil {
			return err
		}
		if _, err := io.Copy(w, r); err != nil {
			w.Close()
			return err
		}
		return w.Close()
	})
	if err != nil {
		return fmt.Errorf("cloud: uploading %s to %s: %v", src, dst, err)
	}
	return nil
}

// List returns the blob paths directly under the directory dir whose
// names end in ext, sorted.
func List(ctx context.Context, log logrus.FieldLogger, dir, ext string) ([]string, error) {
	loc, err := Parse(dir)
	if err != nil {
		return nil, err
	}
	bucket, err := OpenBucket(ctx, loc.Bucket)
	if err != nil {
		return nil, fmt.Errorf("cloud: opening bucket for %s: %v", dir, err)
	}
	defer bucket.Close()

	prefix := loc.Join("").Key
	var paths []string
	err = retry(ctx, log, "listing "+dir, func() error {
		paths = paths[:0]
		iter := bucket.List(&blob.ListOptions{Prefix: prefix, Delimiter: "/"})
		for {
			obj, err := iter.Next(ctx)
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			if obj.IsDir || !strings.HasSuffix(obj.Key, ext) {
				continue
			}
			paths = append(paths, Location{Bucket: loc.Bucket, Key: obj.Key}.String())
		}
	})
	if err != nil {
		return nil, fmt.Errorf("cloud: listing %s: %v", dir, err)
	}
	sort.Strings(paths)
	return paths, nil
}
