package sis

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetcher_Get_ReturnsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	fetcher, err := NewFetcher(server.URL, time.Second, 2, "TEST", zerolog.Nop())
	require.NoError(t, err)

	body, err := fetcher.Get(context.Background(), "/ping", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
}

func TestFetcher_Get_ClientErrorIsNotRetried(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	fetcher, err := NewFetcher(server.URL, time.Second, 2, "TEST", zerolog.Nop())
	require.NoError(t, err)

	_, err = fetcher.Get(context.Background(), "/missing", nil)
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestFetcher_GetJSON_UnescapesEntities(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"code":"CSCI","description":"Computer Science &amp; Engineering"}]`))
	}))
	defer server.Close()

	fetcher, err := NewFetcher(server.URL, time.Second, 2, "TEST", zerolog.Nop())
	require.NoError(t, err)

	var entries []SubjectEntry
	require.NoError(t, fetcher.GetJSON(context.Background(), "/subjects", url.Values{}, &entries))

	require.Len(t, entries, 1)
	assert.Equal(t, "Computer Science & Engineering", entries[0].Description)
}

func TestFetcher_GetHTML_UnescapesEntities(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<span>Intro to C&amp;S</span>`))
	}))
	defer server.Close()

	fetcher, err := NewFetcher(server.URL, time.Second, 2, "TEST", zerolog.Nop())
	require.NoError(t, err)

	html, err := fetcher.GetHTML(context.Background(), "/desc", nil)
	require.NoError(t, err)
	assert.Equal(t, "<span>Intro to C&S</span>", html)
}

func TestFetcher_Get_PropagatesCookies(t *testing.T) {
	// Sessions carry state across calls (reset_search -> class_search) via
	// the fetcher's cookie jar.
	var sawCookie bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/set" {
			http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "abc123"})
			return
		}
		if c, err := r.Cookie("JSESSIONID"); err == nil && c.Value == "abc123" {
			sawCookie = true
		}
	}))
	defer server.Close()

	fetcher, err := NewFetcher(server.URL, time.Second, 2, "TEST", zerolog.Nop())
	require.NoError(t, err)

	_, err = fetcher.Get(context.Background(), "/set", nil)
	require.NoError(t, err)
	_, err = fetcher.Get(context.Background(), "/check", nil)
	require.NoError(t, err)

	assert.True(t, sawCookie)
}

func TestNewFetcher_AppliesDefaultsForInvalidInputs(t *testing.T) {
	fetcher, err := NewFetcher("http://example.invalid", 0, 0, "TEST", zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, fetcher.client.Timeout)
	assert.Equal(t, 5, cap(fetcher.perHost))
}
