package testutil

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

// MultipartBuilder assembles multipart/form-data bodies for upload handlers.
type MultipartBuilder struct {
	t      *testing.T
	buf    bytes.Buffer
	writer *multipart.Writer
}

func NewMultipart(t *testing.T) *MultipartBuilder {
	t.Helper()
	b := &MultipartBuilder{t: t}
	b.writer = multipart.NewWriter(&b.buf)
	return b
}

func (b *MultipartBuilder) Field(name, value string) *MultipartBuilder {
	b.t.Helper()
	require.NoError(b.t, b.writer.WriteField(name, value))
	return b
}

func (b *MultipartBuilder) File(field, filename string, content []byte) *MultipartBuilder {
	b.t.Helper()
	part, err := b.writer.CreateFormFile(field, filename)
	require.NoError(b.t, err)
	_, err = part.Write(content)
	require.NoError(b.t, err)
	return b
}

// Request closes the writer and returns a request carrying the body.
func (b *MultipartBuilder) Request(method, path string) *http.Request {
	b.t.Helper()
	require.NoError(b.t, b.writer.Close())
	req := httptest.NewRequest(method, path, &b.buf)
	req.Header.Set("Content-Type", b.writer.FormDataContentType())
	return req
}
