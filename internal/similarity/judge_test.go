package similarity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStubJudge_ReturnsConfiguredVerdict(t *testing.T) {
	j := StubJudge{Verdict: true}
	identical, err := j.IsIdentical(context.Background(), "a", "b", "c", "d")
	require.NoError(t, err)
	assert.True(t, identical)
}

func TestStubJudge_PropagatesConfiguredError(t *testing.T) {
	wantErr := errors.New("boom")
	j := StubJudge{Err: wantErr}
	_, err := j.IsIdentical(context.Background(), "a", "b", "c", "d")
	assert.ErrorIs(t, err, wantErr)
}

func TestOpenAIJudge_ParsesStructuredVerdict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"{\"final_answer\":true}"}}]}`))
	}))
	defer server.Close()

	j := NewOpenAIJudge(server.URL, "test-key", "gpt-4o-2024-08-06")
	identical, err := j.IsIdentical(context.Background(), "Market A", "Rules A", "Market B", "Rules B")

	require.NoError(t, err)
	assert.True(t, identical)
}

func TestOpenAIJudge_FailsClosedOnHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	j := NewOpenAIJudge(server.URL, "test-key", "gpt-4o-2024-08-06")
	identical, err := j.IsIdentical(context.Background(), "A", "a", "B", "b")

	assert.Error(t, err)
	assert.False(t, identical)
}
