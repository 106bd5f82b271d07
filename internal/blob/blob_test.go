package blob

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliveryKey(t *testing.T) {
	assert.Equal(t, "deliveries/t1/d1/logo.png", DeliveryKey("t1", "d1", "logo.png"))
	assert.Equal(t, "deliveries/t1/d1/passwd", DeliveryKey("t1", "d1", "../../etc/passwd"))
	assert.Equal(t, "deliveries/t1/d1/evil.png", DeliveryKey("t1", "d1", `C:\tmp\evil.png`))
	assert.Equal(t, "deliveries/t1/d1/file", DeliveryKey("t1", "d1", ""))
}

func TestFSPutServeDelete(t *testing.T) {
	fs := FS{Fs: afero.NewMemMapFs(), Root: "/data", BaseURL: "/files/"}
	ctx := context.Background()

	url, err := fs.Put(ctx, "deliveries/t1/d1/logo.png", strings.NewReader("png-bytes"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "/files/deliveries/t1/d1/logo.png", url)

	data, err := afero.ReadFile(fs.Fs, "/data/deliveries/t1/d1/logo.png")
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	srv := httptest.NewServer(http.StripPrefix("/files", fs.Handler()))
	defer srv.Close()
	res, err := http.Get(srv.URL + url)
	require.NoError(t, err)
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "png-bytes", string(body))

	require.NoError(t, fs.Delete(ctx, "deliveries/t1/d1/logo.png"))
	exists, err := afero.Exists(fs.Fs, "/data/deliveries/t1/d1/logo.png")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, fs.Delete(ctx, "deliveries/t1/d1/logo.png"), "deleting twice is fine")
}

func TestFSRejectsEscapingKeys(t *testing.T) {
	fs := FS{Fs: afero.NewMemMapFs(), Root: "/data"}
	for _, key := range []string{"", "../x", "a/../../b", "a//b"} {
		_, err := fs.Put(context.Background(), key, strings.NewReader("x"), "")
		assert.ErrorIs(t, err, ErrInvalidKey, key)
	}
}

type fakeObjects struct {
	put    *s3.PutObjectInput
	delete *s3.DeleteObjectInput
	err    error
}

func (f *fakeObjects) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.put = in
	return &s3.PutObjectOutput{}, f.err
}

func (f *fakeObjects) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.delete = in
	return &s3.DeleteObjectOutput{}, f.err
}

func TestS3PutUsesBucketAndPublicURL(t *testing.T) {
	fake := &fakeObjects{}
	store := &S3{client: fake, bucket: "art", publicURL: "https://cdn.example.com/"}

	url, err := store.Put(context.Background(), "deliveries/t1/d1/a.png", strings.NewReader("x"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/deliveries/t1/d1/a.png", url)
	assert.Equal(t, "art", aws.ToString(fake.put.Bucket))
	assert.Equal(t, "image/png", aws.ToString(fake.put.ContentType))

	require.NoError(t, store.Delete(context.Background(), "deliveries/t1/d1/a.png"))
	assert.Equal(t, "deliveries/t1/d1/a.png", aws.ToString(fake.delete.Key))

	fake.err = errors.New("boom")
	_, err = store.Put(context.Background(), "k", strings.NewReader("x"), "")
	assert.ErrorContains(t, err, "boom")
}
