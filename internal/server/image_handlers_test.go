package server

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"tribune/internal/service"
	"tribune/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func multipartImage(t *testing.T, filename, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func TestUploadImage(t *testing.T) {
	env := newTestEnv(t, "")
	admin := testutil.CreateUser(t, env.db, true)
	reader := testutil.CreateUser(t, env.db, false)

	upload := func(token string, body *bytes.Buffer, ct string) *http.Response {
		req := httptest.NewRequest(http.MethodPost, "/api/admin/images", body)
		req.Header.Set("Content-Type", ct)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := env.app.Test(req, -1)
		require.NoError(t, err)
		return resp
	}

	body, ct := multipartImage(t, "cover.png", "image/png", testutil.TinyPNG(t, 640, 480))
	resp := upload(tokenFor(t, reader), body, ct)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	body, ct = multipartImage(t, "cover.png", "image/png", testutil.TinyPNG(t, 640, 480))
	resp = upload(tokenFor(t, admin), body, ct)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var uploaded service.UploadedImage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&uploaded))
	_ = resp.Body.Close()

	assert.Equal(t, "image/png", uploaded.MimeType)
	assert.Equal(t, 640, uploaded.Width)
	require.True(t, strings.HasPrefix(uploaded.URL, "https://tribune.test/uploads/"), uploaded.URL)

	// The stored cover is served from the upload directory.
	path := strings.TrimPrefix(uploaded.URL, "https://tribune.test")
	served, _ := env.do(t, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusOK, served.StatusCode)

	body, ct = multipartImage(t, "notes.txt", "text/plain", []byte("hello"))
	resp = upload(tokenFor(t, admin), body, ct)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
