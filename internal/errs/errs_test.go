package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewErrorIsSentinel(t *testing.T) {
	err := New(KindInvalidArgument, "bad header %q", "id")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.NotEmpty(t, err.Error())
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(KindStoreUnavailable, cause, "writing index")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, cause)
}

func TestAsExtractsKind(t *testing.T) {
	err := New(KindNoSuchTransaction, "tid %s", "abc")
	kind, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, KindNoSuchTransaction, kind)

	_, ok = As(errors.New("plain"))
	assert.False(t, ok)
}

func TestWrapWithNilCause(t *testing.T) {
	err := Wrap(KindStoreCorrupt, nil, "bad index")
	assert.ErrorIs(t, err, ErrStoreCorrupt)
}
