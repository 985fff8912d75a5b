package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewDefaultsHTTPCode(t *testing.T) {
	e := New(42, 0, "boom", nil)
	assert.Equal(t, 500, e.HttpCode)
	assert.Equal(t, "boom", e.Error())
}

func TestWithErrorKeepsCode(t *testing.T) {
	cause := stderrors.New("eof")
	e := ErrBadRequest.WithError(cause)

	assert.Equal(t, ErrBadRequest.Code, e.Code)
	assert.Nil(t, ErrBadRequest.Err, "shared sentinel must not be mutated")
	assert.True(t, Is(e, ErrBadRequest))
	assert.True(t, Is(e, cause))
	assert.Equal(t, "bad request: eof", e.Error())
}

func TestIsThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("dial: %w", ErrUnavailable.WithMessage("no upstream"))
	assert.True(t, Is(wrapped, ErrUnavailable))
	assert.False(t, Is(wrapped, ErrServer))
	assert.Equal(t, ErrUnavailable.Code, CodeOf(wrapped))
	assert.Equal(t, 0, CodeOf(stderrors.New("plain")))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, 400, HTTPStatus(fmt.Errorf("upgrade: %w", ErrBadRequest.WithError(stderrors.New("eof")))))
	assert.Equal(t, 503, HTTPStatus(ErrUnavailable))
	assert.Equal(t, 500, HTTPStatus(stderrors.New("plain")))
}
