package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_JSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/applications", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"title":"Sleep study"}`, string(body))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"app-1"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/api/", time.Second)
	var out struct {
		ID string `json:"id"`
	}
	require.NoError(t, c.JSON(context.Background(), http.MethodPost, "/applications", map[string]string{"title": "Sleep study"}, &out))
	assert.Equal(t, "app-1", out.ID)
}

func TestClient_ResponseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"Application not found"}`))
	}))
	defer srv.Close()

	err := NewClient(srv.URL, time.Second).JSON(context.Background(), http.MethodGet, "/applications/x", nil, nil)
	var respErr *ResponseError
	require.True(t, errors.As(err, &respErr))
	assert.Equal(t, http.StatusNotFound, respErr.StatusCode)
	assert.Contains(t, string(respErr.Body), "Application not found")
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	err := NewClient(srv.URL, 20*time.Millisecond).JSON(context.Background(), http.MethodGet, "/slow", nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestClient_Multipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "app-1", r.FormValue("applicationId"))
		f, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		content, _ := io.ReadAll(f)
		assert.Equal(t, "cv.pdf", header.Filename)
		assert.Equal(t, "curriculum vitae", string(content))
		w.Write([]byte(`{"fileId":"f-1"}`))
	}))
	defer srv.Close()

	var out struct {
		FileID string `json:"fileId"`
	}
	err := NewClient(srv.URL, time.Second).Multipart(context.Background(), "/upload", time.Second,
		map[string]string{"applicationId": "app-1"}, "cv.pdf", strings.NewReader("curriculum vitae"), &out)
	require.NoError(t, err)
	assert.Equal(t, "f-1", out.FileID)
}
