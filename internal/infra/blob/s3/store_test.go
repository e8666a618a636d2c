package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"beaconcore/internal/blob/core"
)

// fakeBucket answers the subset of the S3 REST API the store uses.
type fakeBucket struct {
	mu       sync.Mutex
	objects  map[string]fakeObject
	pageSize int
}

type fakeObject struct {
	body        []byte
	contentType string
}

func respond(status int, body string, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{StatusCode: status, Header: header, Body: io.NopCloser(strings.NewReader(body))}
}

func (f *fakeBucket) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, key, _ := strings.Cut(strings.TrimPrefix(req.URL.Path, "/"), "/")
	query := req.URL.Query()

	if req.Method == http.MethodGet && query.Get("list-type") == "2" {
		return f.list(query.Get("prefix"), query.Get("continuation-token")), nil
	}
	obj, ok := f.objects[key]
	switch req.Method {
	case http.MethodHead, http.MethodGet:
		if !ok {
			return respond(http.StatusNotFound, "", nil), nil
		}
		header := http.Header{
			"Content-Length": {strconv.Itoa(len(obj.body))},
			"Content-Type":   {obj.contentType},
			"Etag":           {`"` + core.Fingerprint(obj.body) + `"`},
			"Last-Modified":  {time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC).Format(http.TimeFormat)},
		}
		if req.Method == http.MethodHead {
			return respond(http.StatusOK, "", header), nil
		}
		return respond(http.StatusOK, string(obj.body), header), nil
	case http.MethodPut:
		body, _ := io.ReadAll(req.Body)
		if strings.Contains(req.Header.Get("Content-Encoding"), "aws-chunked") {
			body = dechunk(body)
		}
		f.objects[key] = fakeObject{body: body, contentType: req.Header.Get("Content-Type")}
		return respond(http.StatusOK, "", http.Header{"Etag": {`"` + core.Fingerprint(body) + `"`}}), nil
	case http.MethodDelete:
		delete(f.objects, key)
		return respond(http.StatusNoContent, "", nil), nil
	}
	return respond(http.StatusNotImplemented, "", nil), nil
}

func (f *fakeBucket) list(prefix, token string) *http.Response {
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) && k > token {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	truncated := f.pageSize > 0 && len(keys) > f.pageSize
	if truncated {
		keys = keys[:f.pageSize]
	}
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult>`)
	fmt.Fprintf(&b, "<IsTruncated>%t</IsTruncated>", truncated)
	if truncated {
		fmt.Fprintf(&b, "<NextContinuationToken>%s</NextContinuationToken>", keys[len(keys)-1])
	}
	for _, k := range keys {
		fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><LastModified>2024-01-01T00:00:00Z</LastModified></Contents>", k, len(f.objects[k].body))
	}
	b.WriteString("</ListBucketResult>")
	return respond(http.StatusOK, b.String(), http.Header{"Content-Type": {"application/xml"}})
}

// dechunk strips aws-chunked framing: <hex size>[;ext]\r\n<data>\r\n ... 0\r\n<trailers>.
func dechunk(b []byte) []byte {
	var out []byte
	for {
		line, rest, ok := bytes.Cut(b, []byte("\r\n"))
		if !ok {
			return out
		}
		sizeHex, _, _ := bytes.Cut(line, []byte(";"))
		size, err := strconv.ParseInt(string(sizeHex), 16, 64)
		if err != nil || size == 0 || int64(len(rest)) < size {
			return out
		}
		out = append(out, rest[:size]...)
		b = bytes.TrimPrefix(rest[size:], []byte("\r\n"))
	}
}

func newFakeStore(t *testing.T, bucket *fakeBucket) *Store {
	t.Helper()
	client := s3.New(s3.Options{
		Region:                     "us-east-1",
		Credentials:                credentials.NewStaticCredentialsProvider("AKIA", "SECRET", ""),
		BaseEndpoint:               aws.String("https://fake.s3.local"),
		UsePathStyle:               true,
		HTTPClient:                 &http.Client{Transport: bucket},
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
		ResponseChecksumValidation: aws.ResponseChecksumValidationWhenRequired,
	})
	return NewWithClient(client, "catalog")
}

func TestStoreRoundTrip(t *testing.T) {
	store := newFakeStore(t, &fakeBucket{objects: map[string]fakeObject{}})
	ctx := context.Background()
	doc := []byte(`{"id":"b1"}`)

	info, err := store.Put(ctx, "beacons/b1.json", bytes.NewReader(doc), core.PutOptions{ContentType: "application/json"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "beacons/b1.json" || info.Size != int64(len(doc)) || info.ETag != core.Fingerprint(doc) {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := store.Put(ctx, "beacons/b1.json", bytes.NewReader(doc), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	replacement := []byte(`{"id":"b1","name":"x"}`)
	if _, err := store.Put(ctx, "beacons/b1.json", bytes.NewReader(replacement), core.PutOptions{Overwrite: true}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	got, rc, err := store.Get(ctx, "beacons/b1.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if !bytes.Equal(body, replacement) || got.ContentType != "application/json" {
		t.Fatalf("unexpected document %q %+v", body, got)
	}

	if ok, err := store.Delete(ctx, "beacons/b1.json"); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, err := store.Delete(ctx, "beacons/b1.json"); err != nil || ok {
		t.Fatalf("second delete should report absence: %v %v", ok, err)
	}
	if _, _, err := store.Get(ctx, "beacons/b1.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.Head(ctx, "beacons/b1.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from head, got %v", err)
	}
}

func TestStoreListPaginates(t *testing.T) {
	bucket := &fakeBucket{objects: map[string]fakeObject{
		"beacons/a.json":   {body: []byte("a")},
		"beacons/b.json":   {body: []byte("bb")},
		"beacons/c.json":   {body: []byte("ccc")},
		"snapshots/x.json": {body: []byte("x")},
	}, pageSize: 2}
	store := newFakeStore(t, bucket)

	infos, err := store.List(context.Background(), "beacons/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 3 || infos[0].Key != "beacons/a.json" || infos[2].Size != 3 {
		t.Fatalf("unexpected listing %+v", infos)
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected bucket error")
	}
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIA")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "SECRET")
	s, err := New(context.Background(), Config{Bucket: "catalog", Endpoint: "https://fake.s3.local", PathStyle: true})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if s.Driver() != core.DriverS3 {
		t.Fatalf("expected s3 driver")
	}
}

func TestDechunk(t *testing.T) {
	framed := []byte("3;chunk-signature=abc\r\nabc\r\n2\r\nde\r\n0\r\nx-amz-checksum-crc32:AAAA\r\n\r\n")
	if got := string(dechunk(framed)); got != "abcde" {
		t.Fatalf("unexpected payload %q", got)
	}
}
