package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"employerId": 42}`))
		case "/bad":
			_, _ = w.Write([]byte(`not json`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewClient(time.Second)

	var out struct {
		EmployerID int64 `json:"employerId"`
	}
	require.NoError(t, client.GetJSON(context.Background(), srv.URL+"/ok", &out))
	assert.Equal(t, int64(42), out.EmployerID)

	err := client.GetJSON(context.Background(), srv.URL+"/missing", &out)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)

	err = client.GetJSON(context.Background(), srv.URL+"/bad", &out)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
}

func TestGetJSON_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	client := NewClient(20 * time.Millisecond)
	var out map[string]interface{}
	assert.Error(t, client.GetJSON(context.Background(), srv.URL, &out))
}
