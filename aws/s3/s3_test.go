package s3

import (
	"bytes"
	"io"
	"io/ioutil"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/cenkalti/backoff/v4"
)

type fakeS3 struct {
	s3iface.S3API
	pages    [][]string
	objects  map[string]string
	failures map[string]int
	gets     map[string]int
}

func (f *fakeS3) ListObjectsV2Pages(in *s3.ListObjectsV2Input, fn func(*s3.ListObjectsV2Output, bool) bool) error {
	for i, keys := range f.pages {
		out := &s3.ListObjectsV2Output{}
		for _, k := range keys {
			out.Contents = append(out.Contents, &s3.Object{Key: aws.String(k)})
		}
		if !fn(out, i == len(f.pages)-1) {
			break
		}
	}
	return nil
}

func (f *fakeS3) GetObject(in *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
	key := aws.StringValue(in.Key)
	f.gets[key]++
	if f.failures[key] > 0 {
		f.failures[key]--
		return nil, awserr.New("InternalError", "try again", nil)
	}
	body, ok := f.objects[key]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "gone", nil)
	}
	return &s3.GetObjectOutput{Body: ioutil.NopCloser(bytes.NewBufferString(body))}, nil
}

func quickBackOff() backoff.BackOff {
	return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 3)
}

func TestRawSource(t *testing.T) {
	fake := &fakeS3{
		pages: [][]string{
			{"dumps/b.xml.bz2", "dumps/README"},
			{"dumps/a.xml.gz", "dumps/c.xml.xz"},
		},
		objects: map[string]string{
			"dumps/a.xml.gz":  "aaa",
			"dumps/b.xml.bz2": "bbb",
		},
		failures: map[string]int{"dumps/b.xml.bz2": 2},
		gets:     map[string]int{},
	}
	rs, err := NewRawSource("bucket", OptSrcPrefix("dumps/"), OptSrcClient(fake), OptSrcBackOff(quickBackOff))
	if err != nil {
		t.Fatalf("getting source: %v", err)
	}
	keys := rs.Keys()
	if len(keys) != 3 || keys[0] != "dumps/a.xml.gz" || keys[1] != "dumps/b.xml.bz2" || keys[2] != "dumps/c.xml.xz" {
		t.Fatalf("unexpected keys: %v", keys)
	}

	for _, want := range []string{"aaa", "bbb"} {
		r, err := rs.NextReader()
		if err != nil {
			t.Fatalf("getting reader: %v", err)
		}
		got, err := ioutil.ReadAll(r)
		if err != nil {
			t.Fatalf("reading %s: %v", r.Name(), err)
		}
		r.Close()
		if string(got) != want {
			t.Fatalf("%s: got %q, want %q", r.Name(), got, want)
		}
	}
	if fake.gets["dumps/b.xml.bz2"] != 3 {
		t.Fatalf("expected 2 retries, got %d gets", fake.gets["dumps/b.xml.bz2"])
	}

	// missing objects are not retried
	if _, err := rs.NextReader(); err == nil {
		t.Fatalf("expected error for missing object")
	}
	if fake.gets["dumps/c.xml.xz"] != 1 {
		t.Fatalf("expected a single get of a missing object, got %d", fake.gets["dumps/c.xml.xz"])
	}
	if _, err := rs.NextReader(); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestRawSourceGivesUp(t *testing.T) {
	fake := &fakeS3{
		pages:    [][]string{{"a.xml.bz2"}},
		objects:  map[string]string{"a.xml.bz2": "aaa"},
		failures: map[string]int{"a.xml.bz2": 10},
		gets:     map[string]int{},
	}
	rs, err := NewRawSource("bucket", OptSrcClient(fake), OptSrcBackOff(quickBackOff))
	if err != nil {
		t.Fatalf("getting source: %v", err)
	}
	if _, err := rs.NextReader(); err == nil {
		t.Fatalf("expected error after retries")
	}
	if fake.gets["a.xml.bz2"] != 4 {
		t.Fatalf("expected 4 attempts, got %d", fake.gets["a.xml.bz2"])
	}
}
