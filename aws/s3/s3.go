// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

// Package s3 provides a wdhistory.RawSource over dump archives stored in an
// S3 bucket.
package s3

import (
	"io"
	"sort"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/cenkalti/backoff/v4"
	"github.com/pilosa/wdhistory"
	"github.com/pilosa/wdhistory/dump"
	"github.com/pkg/errors"
)

// SrcOption is a functional option type for s3.RawSource.
type SrcOption func(s *RawSource)

// OptSrcRegion is a SrcOption which sets the AWS region for a RawSource.
func OptSrcRegion(region string) SrcOption {
	return func(s *RawSource) {
		s.region = region
	}
}

// OptSrcPrefix tells the source to list only the objects in the bucket that
// match the specified prefix.
func OptSrcPrefix(prefix string) SrcOption {
	return func(s *RawSource) {
		s.prefix = prefix
	}
}

// OptSrcClient sets the S3 client, instead of one built from a new session.
func OptSrcClient(c s3iface.S3API) SrcOption {
	return func(s *RawSource) {
		s.s3 = c
	}
}

// OptSrcBackOff sets the policy for retrying failed S3 requests.
func OptSrcBackOff(f func() backoff.BackOff) SrcOption {
	return func(s *RawSource) {
		s.backoff = f
	}
}

// RawSource hands out the archives of a bucket, sorted by key. Objects
// whose keys don't look like dump archives are ignored.
type RawSource struct {
	bucket string
	prefix string
	region string

	s3      s3iface.S3API
	backoff func() backoff.BackOff
	keys    []string
	objIdx  *uint64
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 2 * time.Minute
	return b
}

// NewRawSource lists the archives in bucket.
func NewRawSource(bucket string, opts ...SrcOption) (*RawSource, error) {
	idx := uint64(0)
	rs := &RawSource{
		bucket:  bucket,
		region:  "us-east-1",
		backoff: defaultBackOff,
		objIdx:  &idx,
	}
	for _, opt := range opts {
		opt(rs)
	}
	if rs.s3 == nil {
		sess, err := session.NewSession(&aws.Config{
			Region: aws.String(rs.region)},
		)
		if err != nil {
			return nil, errors.Wrap(err, "getting new session")
		}
		rs.s3 = s3.New(sess)
	}

	err := rs.retry(func() error {
		rs.keys = rs.keys[:0]
		return rs.s3.ListObjectsV2Pages(&s3.ListObjectsV2Input{
			Bucket: aws.String(rs.bucket),
			Prefix: aws.String(rs.prefix),
		}, func(page *s3.ListObjectsV2Output, last bool) bool {
			for _, obj := range page.Contents {
				if key := aws.StringValue(obj.Key); dump.IsArchive(key) {
					rs.keys = append(rs.keys, key)
				}
			}
			return true
		})
	})
	if err != nil {
		return nil, errors.Wrapf(err, "listing objects in %s", rs.bucket)
	}
	sort.Strings(rs.keys)
	return rs, nil
}

// Keys returns the object keys the source will hand out.
func (rs *RawSource) Keys() []string { return rs.keys }

// retry runs op until it succeeds, fails permanently or the back off policy
// gives up.
func (rs *RawSource) retry(op func() error) error {
	return backoff.Retry(func() error {
		err := op()
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, rs.backoff())
}

func retryable(err error) bool {
	aerr, ok := errors.Cause(err).(awserr.Error)
	if !ok {
		return true
	}
	switch aerr.Code() {
	case s3.ErrCodeNoSuchKey, s3.ErrCodeNoSuchBucket, "AccessDenied", "InvalidAccessKeyId":
		return false
	}
	return true
}

type objReader struct {
	name string
	body io.ReadCloser
}

func (o *objReader) Read(buf []byte) (n int, err error) {
	return o.body.Read(buf)
}

func (o *objReader) Close() error {
	return o.body.Close()
}

// Name returns the object key.
func (o *objReader) Name() string {
	return o.name
}

// NextReader implements wdhistory.RawSource.
func (rs *RawSource) NextReader() (wdhistory.NamedReadCloser, error) {
	idx := atomic.AddUint64(rs.objIdx, 1) - 1
	if int(idx) >= len(rs.keys) {
		return nil, io.EOF
	}
	key := rs.keys[idx]

	var result *s3.GetObjectOutput
	err := rs.retry(func() (err error) {
		result, err = rs.s3.GetObject(&s3.GetObjectInput{
			Bucket: aws.String(rs.bucket),
			Key:    aws.String(key),
		})
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "fetching %v", key)
	}
	return &objReader{name: key, body: result.Body}, nil
}
