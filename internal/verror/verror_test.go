package verror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_WrapsAndUnwraps(t *testing.T) {
	cause := errors.New("boom")
	err := New(Transient, "ReadStream", cause)

	assert.Equal(t, "ReadStream: transient: boom", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestError_NilCauseOmitsColonValue(t *testing.T) {
	err := New(Unexpected, "Foo", nil)
	assert.Equal(t, "Foo: unexpected", err.Error())
}

func TestClassify_ReturnsUnexpectedForPlainError(t *testing.T) {
	assert.Equal(t, Unexpected, Classify(errors.New("plain")))
}

func TestClassify_UnwrapsWrappedVerror(t *testing.T) {
	err := fmt.Errorf("context: %w", New(PersistenceConflict, "InsertPairIgnore", nil))
	assert.Equal(t, PersistenceConflict, Classify(err))
}

func TestIs_MatchesOnlyConfiguredKind(t *testing.T) {
	err := New(SchemaDecode, "Unmarshal", nil)
	assert.True(t, Is(err, SchemaDecode))
	assert.False(t, Is(err, VenueRejection))
}

func TestRetryable_OnlyTransientQualifies(t *testing.T) {
	assert.True(t, Retryable(New(Transient, "op", nil)))
	for _, k := range []Kind{VenueRejection, SchemaDecode, JudgeFailure, PersistenceConflict, Unexpected} {
		assert.False(t, Retryable(New(k, "op", nil)), "kind %s must not be retryable", k)
	}
}
