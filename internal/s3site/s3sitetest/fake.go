// Package s3sitetest provides an in-memory S3 client for tests.
package s3sitetest

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Object is a stored object.
type Object struct {
	Body        []byte
	ContentType string
}

// FakeS3 implements s3site.API in memory. Buckets owned by the caller are
// in Owned, names taken by other accounts in Foreign.
type FakeS3 struct {
	mu sync.Mutex

	Owned   map[string]bool
	Foreign map[string]bool
	Objects map[string]map[string]Object

	Websites      map[string]*types.WebsiteConfiguration
	Policies      map[string]string
	PublicBlocks  map[string]*types.PublicAccessBlockConfiguration
	CreateErr     error
	CreateRegions map[string]string

	calls []string
}

// New returns an empty fake with the given buckets already owned.
func New(owned ...string) *FakeS3 {
	f := &FakeS3{
		Owned:         make(map[string]bool),
		Foreign:       make(map[string]bool),
		Objects:       make(map[string]map[string]Object),
		Websites:      make(map[string]*types.WebsiteConfiguration),
		Policies:      make(map[string]string),
		PublicBlocks:  make(map[string]*types.PublicAccessBlockConfiguration),
		CreateRegions: make(map[string]string),
	}
	for _, b := range owned {
		f.Owned[b] = true
	}
	return f
}

// Put stores an object directly, bypassing call recording.
func (f *FakeS3) Put(bucket, key, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bucket(bucket)[key] = Object{Body: []byte(body)}
}

// Keys returns the sorted keys in bucket.
func (f *FakeS3) Keys(bucket string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.Objects[bucket] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Calls returns the operation names in call order.
func (f *FakeS3) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// MutatingCalls returns every recorded operation that changes state.
func (f *FakeS3) MutatingCalls() []string {
	var out []string
	for _, c := range f.Calls() {
		if !strings.HasPrefix(c, "List") {
			out = append(out, c)
		}
	}
	return out
}

// ResetCalls clears the call log.
func (f *FakeS3) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *FakeS3) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
}

func (f *FakeS3) bucket(name string) map[string]Object {
	b, ok := f.Objects[name]
	if !ok {
		b = make(map[string]Object)
		f.Objects[name] = b
	}
	return b
}

func (f *FakeS3) ListBuckets(_ context.Context, _ *s3.ListBucketsInput, _ ...func(*s3.Options)) (*s3.ListBucketsOutput, error) {
	f.record("ListBuckets")
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for b := range f.Owned {
		names = append(names, b)
	}
	sort.Strings(names)
	out := &s3.ListBucketsOutput{}
	for _, n := range names {
		out.Buckets = append(out.Buckets, types.Bucket{Name: aws.String(n)})
	}
	return out, nil
}

func (f *FakeS3) CreateBucket(_ context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.record("CreateBucket")
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.Bucket)
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	if f.Foreign[name] {
		return nil, &types.BucketAlreadyExists{Message: aws.String("The requested bucket name is not available.")}
	}
	if f.Owned[name] {
		return nil, &types.BucketAlreadyOwnedByYou{Message: aws.String("Your previous request to create the named bucket succeeded.")}
	}
	f.Owned[name] = true
	if in.CreateBucketConfiguration != nil {
		f.CreateRegions[name] = string(in.CreateBucketConfiguration.LocationConstraint)
	}
	f.bucket(name)
	return &s3.CreateBucketOutput{}, nil
}

func (f *FakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.record("ListObjectsV2")
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := aws.ToString(in.Prefix)
	var keys []string
	for k := range f.Objects[aws.ToString(in.Bucket)] {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, k := range keys {
		obj := f.Objects[aws.ToString(in.Bucket)][k]
		sum := md5.Sum(obj.Body)
		out.Contents = append(out.Contents, types.Object{
			Key:  aws.String(k),
			ETag: aws.String(`"` + hex.EncodeToString(sum[:]) + `"`),
			Size: aws.Int64(int64(len(obj.Body))),
		})
	}
	return out, nil
}

func (f *FakeS3) DeleteObjects(_ context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	f.record("DeleteObjects")
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.bucket(aws.ToString(in.Bucket))
	out := &s3.DeleteObjectsOutput{}
	for _, o := range in.Delete.Objects {
		delete(b, aws.ToString(o.Key))
		out.Deleted = append(out.Deleted, types.DeletedObject{Key: o.Key})
	}
	return out, nil
}

func (f *FakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.record("PutObject")
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bucket(aws.ToString(in.Bucket))[aws.ToString(in.Key)] = Object{
		Body:        body,
		ContentType: aws.ToString(in.ContentType),
	}
	sum := md5.Sum(body)
	return &s3.PutObjectOutput{ETag: aws.String(`"` + hex.EncodeToString(sum[:]) + `"`)}, nil
}

var errMultipart = errors.New("multipart uploads are not supported by the fake")

func (f *FakeS3) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, errMultipart
}

func (f *FakeS3) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, errMultipart
}

func (f *FakeS3) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, errMultipart
}

func (f *FakeS3) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return nil, errMultipart
}

func (f *FakeS3) PutBucketWebsite(_ context.Context, in *s3.PutBucketWebsiteInput, _ ...func(*s3.Options)) (*s3.PutBucketWebsiteOutput, error) {
	f.record("PutBucketWebsite")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Websites[aws.ToString(in.Bucket)] = in.WebsiteConfiguration
	return &s3.PutBucketWebsiteOutput{}, nil
}

func (f *FakeS3) PutBucketPolicy(_ context.Context, in *s3.PutBucketPolicyInput, _ ...func(*s3.Options)) (*s3.PutBucketPolicyOutput, error) {
	f.record("PutBucketPolicy")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Policies[aws.ToString(in.Bucket)] = aws.ToString(in.Policy)
	return &s3.PutBucketPolicyOutput{}, nil
}

func (f *FakeS3) PutPublicAccessBlock(_ context.Context, in *s3.PutPublicAccessBlockInput, _ ...func(*s3.Options)) (*s3.PutPublicAccessBlockOutput, error) {
	f.record("PutPublicAccessBlock")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PublicBlocks[aws.ToString(in.Bucket)] = in.PublicAccessBlockConfiguration
	return &s3.PutPublicAccessBlockOutput{}, nil
}
