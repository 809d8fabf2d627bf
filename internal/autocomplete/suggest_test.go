package autocomplete

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSuggester(t *testing.T, h http.HandlerFunc) *Suggester {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	s := New(nil, nil)
	s.endpoint = srv.URL
	return s
}

func TestYouTubeSuggestions(t *testing.T) {
	var gotQuery string
	s := newTestSuggester(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		assert.Equal(t, "yt", r.URL.Query().Get("ds"))
		fmt.Fprint(w, `["lofi",["lofi hip hop","lofi girl","lofi beats"],[],{}]`)
	})

	got, err := s.YouTube(context.Background(), "lofi")
	require.NoError(t, err)
	assert.Equal(t, "lofi", gotQuery)
	assert.Equal(t, []string{"lofi hip hop", "lofi girl", "lofi beats"}, got)
}

func TestChoicesLimitAndLength(t *testing.T) {
	long := strings.Repeat("x", 120)
	s := newTestSuggester(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `["q",["a","b","%s","c","d"]]`, long)
	})

	got := s.Choices(context.Background(), "q", 3)
	require.Len(t, got, 2)
	assert.Equal(t, "YouTube: a", got[0].Name)
	assert.Equal(t, "b", got[1].Value)

	assert.Nil(t, s.Choices(context.Background(), "   ", 3))
}

func TestChoicesSurviveUpstreamFailure(t *testing.T) {
	s := newTestSuggester(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	assert.Empty(t, s.Choices(context.Background(), "q", 5))
}

func TestStatic(t *testing.T) {
	got := Static([]string{"chill", "anthem"})
	require.Len(t, got, 2)
	assert.Equal(t, "chill", got[0].Name)
	assert.Equal(t, "anthem", got[1].Value)
}
