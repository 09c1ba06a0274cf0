package model

import (
	"errors"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestError_KindSurvivesWrapping(t *testing.T) {
	base := errors.New("unexpected EOF")
	err := eris.Wrap(NewError(KindSourceRead, "decode transaction", base), "pipeline: next")

	assert.True(t, IsKind(err, KindSourceRead))
	assert.False(t, IsKind(err, KindSinkWrite))
	assert.Equal(t, KindSourceRead, KindOf(err))
	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "source_read: decode transaction")
}

func TestError_NilCause(t *testing.T) {
	err := NewError(KindMalformedRecord, "transaction T-9 missing sender_name", nil)
	assert.Equal(t, "malformed_record: transaction T-9 missing sender_name", err.Error())
	assert.Nil(t, err.Unwrap())
}

func TestKindOf_PlainError(t *testing.T) {
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("boom")))
	assert.False(t, IsKind(nil, KindReferenceData))
}
