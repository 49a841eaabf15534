package httputil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePathUUID(t *testing.T) {
	id := uuid.New()
	r := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"id": id.String()})

	got, err := ParsePathUUID(r, "id")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	r = mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"id": "nope"})
	_, err = ParsePathUUID(r, "id")
	assert.Error(t, err)

	_, err = ParsePathUUID(r, "missing")
	assert.Error(t, err)
}

func TestParsePage(t *testing.T) {
	limit, offset, err := ParsePage(httptest.NewRequest(http.MethodGet, "/?limit=10&offset=30", nil))
	require.NoError(t, err)
	assert.Equal(t, 10, limit)
	assert.Equal(t, 30, offset)

	limit, offset, err = ParsePage(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, 50, limit)
	assert.Equal(t, 0, offset)

	_, _, err = ParsePage(httptest.NewRequest(http.MethodGet, "/?limit=-1", nil))
	assert.Error(t, err)

	_, _, err = ParsePage(httptest.NewRequest(http.MethodGet, "/?offset=abc", nil))
	assert.Error(t, err)
}

func TestParseJSONRejectsUnknownFields(t *testing.T) {
	var dest struct {
		Name string `json:"name"`
	}
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a","extra":1}`))
	assert.Error(t, ParseJSON(r, &dest))

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a"}`))
	require.NoError(t, ParseJSON(r, &dest))
	assert.Equal(t, "a", dest.Name)
}

func TestCORSMiddleware(t *testing.T) {
	handler := CORSMiddleware([]string{"https://school.example"}, "X-Tenant-ID")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	r := httptest.NewRequest(http.MethodOptions, "/", nil)
	r.Header.Set("Origin", "https://school.example")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://school.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Content-Type, Authorization, X-Request-ID, X-Tenant-ID", w.Header().Get("Access-Control-Allow-Headers"))

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Origin", "https://elsewhere.example")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestContentTypeMiddleware(t *testing.T) {
	handler := ContentTypeMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		method      string
		contentType string
		want        int
	}{
		{http.MethodPost, "application/json", http.StatusNoContent},
		{http.MethodPost, "application/json; charset=utf-8", http.StatusNoContent},
		{http.MethodPost, "", http.StatusNoContent},
		{http.MethodPost, "text/plain", http.StatusBadRequest},
		{http.MethodPatch, "application/x-www-form-urlencoded", http.StatusBadRequest},
		{http.MethodGet, "text/plain", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.contentType, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, "/", strings.NewReader(`{}`))
			if tt.contentType != "" {
				r.Header.Set("Content-Type", tt.contentType)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestChain(t *testing.T) {
	var order []string
	tag := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	handler := Chain(tag("outer"), tag("inner"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}
