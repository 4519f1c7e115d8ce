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

// Package cloud stages conversion inputs and outputs through blob
// storage.
package cloud

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/blob/gcsblob"
	"gocloud.dev/blob/s3blob"
	"gocloud.dev/gcp"
)

// IsBlob returns whether the given path refers to blob storage,
// i.e., whether it starts with `gs://`, `s3://`, or `file://`.
func IsBlob(path string) bool {
	return strings.HasPrefix(path, "gs://") || strings.HasPrefix(path, "s3://") || strings.HasPrefix(path, "file://")
}

// Location is a parsed blob storage path.
type Location struct {
	// Bucket is in the format 'provider://name'.
	Bucket string

	// Key is the object key or key prefix within the bucket.
	Key string
}

// Parse splits a blob path into its bucket and key.
// For the "file" provider the bucket is the filesystem root and the key
// is the absolute path without its leading slash, so
// file:///data/site/a.nc refers to /data/site/a.nc.
func Parse(path string) (Location, error) {
	u, err := url.Parse(path)
	if err != nil {
		return Location{}, fmt.Errorf("cloud: parsing blob path: %v", err)
	}
	switch u.Scheme {
	case "file":
		p := u.Path
		if u.Host != "" {
			p = "/" + u.Host + p
		}
		return Location{Bucket: "file:///", Key: strings.TrimPrefix(p, "/")}, nil
	case "gs", "s3":
		if u.Host == "" {
			return Location{}, fmt.Errorf("cloud: blob path %q has no bucket name", path)
		}
		return Location{Bucket: u.Scheme + "://" + u.Host, Key: strings.TrimPrefix(u.Path, "/")}, nil
	default:
		return Location{}, fmt.Errorf("cloud: invalid provider %q", u.Scheme)
	}
}

// String returns the blob path of l.
func (l Location) String() string {
	if strings.HasSuffix(l.Bucket, "/") {
		return l.Bucket + l.Key
	}
	return l.Bucket + "/" + l.Key
}

// Join returns the location of name within the key prefix of l.
func (l Location) Join(name string) Location {
	key := strings.TrimSuffix(l.Key, "/")
	if key != "" {
		key += "/"
	}
	return Location{Bucket: l.Bucket, Key: key + name}
}

// OpenBucket returns the blob storage bucket specified by bucketName,
// where bucketName must be in the format 'provider://name' where provider
// is the name of the storage provider and name is the name of the bucket.
// The accepted storage providers are "file" for the local filesystem,
// "gs" for Google Cloud Storage, and "s3" for AWS S3.
func OpenBucket(ctx context.Context, bucketName string) (*blob.Bucket, error) {
	u, err := url.Parse(bucketName)
	if err != nil {
		return nil, fmt.Errorf("cloud.OpenBucket: %v", err)
	}
	switch u.Scheme {
	case "file":
		dir := u.Path
		if dir == "" {
			dir = "/"
		}
		return fileblob.OpenBucket(dir, nil)
	case "gs":
		return gsBucket(ctx, u.Hostname())
	case "s3":
		return s3Bucket(ctx, u.Hostname())
	default:
		return nil, fmt.Errorf("cloud.OpenBucket: invalid provider %s", u.Scheme)
	}
}

func gsBucket(ctx context.Context, name string) (*blob.Bucket, error) {
	// See here for information on credentials:
	// https://cloud.google.com/docs/authentication/getting-started
	creds, err := gcp.DefaultCredentials(ctx)
	if err != nil {
		return nil, err
	}
	c, err := gcp.NewHTTPClient(gcp.DefaultTransport(), gcp.CredentialsTokenSource(creds))
	if err != nil {
		return nil, err
	}
	return gcsblob.OpenBucket(ctx, c, name, nil)
}

// s3Bucket opens an s3 storage bucket. It assumes the following
// environment variables are set: AWS_REGION, AWS_ACCESS_KEY_ID, and
// AWS_SECRET_ACCESS_KEY.
func s3Bucket(ctx context.Context, name string) (*blob.Bucket, error) {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-2"
	}
	c := &aws.Config{
		Region:      aws.String(region),
		Credentials: credentials.NewEnvCredentials(),
	}
	s, err := session.NewSession(c)
	if err != nil {
		return nil, fmt.Errorf("cloud: creating AWS session: %v", err)
	}
	return s3blob.OpenBucket(ctx, s, name, nil)
}
