// internal/uploader/cloudinary_test.go
package uploader

import (
	"context"
	"crypto/sha1"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/luyichou/webtech-autopost/internal/config"
)

func testConfig(endpoint string) config.UploaderConfig {
	return config.UploaderConfig{
		CloudName: "demo",
		APIKey:    "key123",
		APISecret: "secret456",
		Folder:    "autopost",
		Endpoint:  endpoint,
	}
}

func newTestUploader(t *testing.T, handler http.HandlerFunc) *Cloudinary {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c := NewCloudinary(testConfig(server.URL), zap.NewNop())
	c.now = func() time.Time { return time.Unix(1700000000, 0) }
	return c
}

func TestSignParams(t *testing.T) {
	params := map[string]string{
		"timestamp": "1700000000",
		"public_id": "photo",
		"folder":    "autopost",
	}
	// Keys sorted, joined, secret appended, SHA-1 hex.
	payload := "folder=autopost&public_id=photo&timestamp=1700000000secret456"
	want := fmt.Sprintf("%x", sha1.Sum([]byte(payload)))
	assert.Equal(t, want, signParams(params, "secret456"))
}

func TestUploadSuccess(t *testing.T) {
	var gotPath string
	var gotSignature, gotAPIKey, gotFolder string
	var gotFile []byte

	c := newTestUploader(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, r.ParseMultipartForm(10<<20))
		gotSignature = r.FormValue("signature")
		gotAPIKey = r.FormValue("api_key")
		gotFolder = r.FormValue("folder")

		file, _, err := r.FormFile("file")
		require.NoError(t, err)
		gotFile, _ = io.ReadAll(file)
		file.Close()

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"secure_url":"https://res.cloudinary.com/demo/image/upload/autopost/photo.jpg","public_id":"autopost/photo"}`)
	})

	url, err := c.Upload(context.Background(), []byte("jpeg-bytes"), "photo")
	require.NoError(t, err)
	assert.Equal(t, "https://res.cloudinary.com/demo/image/upload/autopost/photo.jpg", url)

	assert.Equal(t, "/v1_1/demo/image/upload", gotPath)
	assert.Equal(t, "key123", gotAPIKey)
	assert.Equal(t, "autopost", gotFolder)
	assert.Equal(t, []byte("jpeg-bytes"), gotFile)

	wantSig := signParams(map[string]string{
		"folder":    "autopost",
		"public_id": "photo",
		"timestamp": "1700000000",
	}, "secret456")
	assert.Equal(t, wantSig, gotSignature)
}

func TestUploadRejected(t *testing.T) {
	c := newTestUploader(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"Invalid Signature"}}`)
	})

	_, err := c.Upload(context.Background(), []byte("x"), "photo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid Signature")
}

func TestUploadRequiresCredentials(t *testing.T) {
	cfg := testConfig("https://api.cloudinary.com")
	cfg.APISecret = ""
	c := NewCloudinary(cfg, zap.NewNop())

	_, err := c.Upload(context.Background(), []byte("x"), "photo")
	assert.Error(t, err)
}
