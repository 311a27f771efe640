package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-lms-api/pkg/storage"
)

func newTestStore(t *testing.T, endpoint string) *Store {
	t.Helper()
	t.Setenv("STORAGE_EMULATOR_HOST", "")

	store, err := New(context.Background(), Config{
		Bucket:        "resources",
		Endpoint:      endpoint + "/storage/v1/",
		UploadTimeout: 5 * time.Second,
		DeleteTimeout: 5 * time.Second,
	}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func writeAPIError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = fmt.Fprintf(w, `{"error":{"code":%d,"message":%q}}`, code, message)
}

func TestClientOptionsUsesEmulatorWithoutAuth(t *testing.T) {
	t.Setenv("STORAGE_EMULATOR_HOST", "")

	opts := clientOptions(Config{EmulatorHost: "http://localhost:4443/"})
	require.Len(t, opts, 1)
	require.Equal(t, "http://localhost:4443", os.Getenv("STORAGE_EMULATOR_HOST"))
}

func TestClientOptionsAddsCredentialsFile(t *testing.T) {
	require.Len(t, clientOptions(Config{}), 1)
	require.Len(t, clientOptions(Config{CredentialsFile: "/etc/gcs.json"}), 2)
}

func TestSignOptionsUsesExplicitSignerWhenConfigured(t *testing.T) {
	store := &Store{signerEmail: "signer@project.iam.gserviceaccount.com", privateKey: []byte("pem")}
	opts := store.signOptions("PUT", "application/pdf", 5*time.Minute)

	require.Equal(t, "PUT", opts.Method)
	require.Equal(t, "application/pdf", opts.ContentType)
	require.Equal(t, "signer@project.iam.gserviceaccount.com", opts.GoogleAccessID)
	require.WithinDuration(t, time.Now().Add(5*time.Minute), opts.Expires, 5*time.Second)

	implicit := (&Store{}).signOptions("GET", "", time.Hour)
	require.Empty(t, implicit.GoogleAccessID)
	require.Nil(t, implicit.PrivateKey)
}

func TestWithDefault(t *testing.T) {
	require.Equal(t, 30*time.Second, withDefault(0, 30*time.Second))
	require.Equal(t, time.Second, withDefault(time.Second, 30*time.Second))
}

func TestClientOptionsUsesEndpointWithoutAuth(t *testing.T) {
	require.Len(t, clientOptions(Config{Endpoint: "http://localhost:9023/storage/v1/", CredentialsFile: "/etc/gcs.json"}), 2)
}

func TestUploadWritesObjectUnderPrefix(t *testing.T) {
	var path, body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"bucket":"resources","name":"lessons/4/x-notes.pdf","size":"12","contentType":"application/pdf"}`)
	}))
	defer srv.Close()

	obj, err := newTestStore(t, srv.URL).Upload(context.Background(), storage.UploadInput{
		Reader:   strings.NewReader("hello, world"),
		Name:     "notes.pdf",
		MimeType: "application/pdf",
		Prefix:   "lessons/4",
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(obj.Key, "lessons/4/"))
	require.EqualValues(t, 12, obj.Size)
	require.Contains(t, path, "/b/resources/o")
	require.Contains(t, body, "hello, world")
}

func TestUploadFailureIsUploadFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, http.StatusInternalServerError, "backend error")
	}))
	defer srv.Close()

	_, err := newTestStore(t, srv.URL).Upload(context.Background(), storage.UploadInput{
		Reader: strings.NewReader("data"),
		Name:   "notes.pdf",
		Prefix: "lessons/4",
	})
	require.ErrorIs(t, err, storage.ErrUploadFailed)
}

func TestDeleteMissingObjectIsNotFound(t *testing.T) {
	var method, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		writeAPIError(w, http.StatusNotFound, "No such object")
	}))
	defer srv.Close()

	err := newTestStore(t, srv.URL).Delete(context.Background(), storage.ObjectRef{Key: "lessons/4/gone.pdf"})
	require.ErrorIs(t, err, storage.ErrDeleteFailed)
	require.True(t, storage.IsNotFound(err))
	require.Equal(t, http.MethodDelete, method)
	require.Contains(t, path, "/b/resources/o/")
}

func TestDeleteTransportErrorIsDeleteFailed(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	err := newTestStore(t, endpoint).Delete(context.Background(), storage.ObjectRef{Key: "lessons/4/notes.pdf"})
	require.ErrorIs(t, err, storage.ErrDeleteFailed)
	require.False(t, storage.IsNotFound(err))
}

func TestStatReportsStoredSizeAndType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "missing.pdf") {
			writeAPIError(w, http.StatusNotFound, "No such object")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"bucket":"resources","name":"lessons/4/big.pdf","size":"2097152","contentType":"application/pdf"}`)
	}))
	defer srv.Close()

	store := newTestStore(t, srv.URL)
	info, err := store.Stat(context.Background(), "lessons/4/big.pdf")
	require.NoError(t, err)
	require.EqualValues(t, 2<<20, info.Size)
	require.Equal(t, "application/pdf", info.ContentType)

	_, err = store.Stat(context.Background(), "lessons/4/missing.pdf")
	require.True(t, storage.IsNotFound(err))
}
