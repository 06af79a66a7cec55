package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorType_String(t *testing.T) {
	tests := []struct {
		errorType ErrorType
		want      string
	}{
		{ErrorTypeNotFound, "NOT_FOUND"},
		{ErrorTypeParse, "PARSE_ERROR"},
		{ErrorTypeFieldNotFound, "FIELD_NOT_FOUND"},
		{ErrorTypeUnsupportedFieldKind, "UNSUPPORTED_FIELD_KIND"},
		{ErrorTypeValidation, "VALIDATION_ERROR"},
		{ErrorTypeInvalidRequest, "INVALID_REQUEST"},
		{ErrorTypeTooLarge, "TOO_LARGE"},
		{ErrorTypeInternal, "INTERNAL"},
		{ErrorType(99), "INTERNAL"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.errorType.String())
		})
	}
}

func TestErrorType_HTTPStatus(t *testing.T) {
	tests := []struct {
		errorType ErrorType
		want      int
	}{
		{ErrorTypeNotFound, http.StatusNotFound},
		{ErrorTypeParse, http.StatusUnprocessableEntity},
		{ErrorTypeFieldNotFound, http.StatusUnprocessableEntity},
		{ErrorTypeUnsupportedFieldKind, http.StatusUnprocessableEntity},
		{ErrorTypeInvalidRequest, http.StatusBadRequest},
		{ErrorTypeTooLarge, http.StatusRequestEntityTooLarge},
		{ErrorTypeValidation, http.StatusInternalServerError},
		{ErrorTypeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.errorType.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.errorType.HTTPStatus())
		})
	}
}

func TestPDFError_Error(t *testing.T) {
	err := New(ErrorTypeFieldNotFound, "form field not present").WithField("FirstName")
	assert.Equal(t, `[FIELD_NOT_FOUND] form field not present (field "FirstName")`, err.Error())

	err = New(ErrorTypeNotFound, "no document uploaded").WithContext("GET /pdf")
	assert.Equal(t, "[NOT_FOUND] no document uploaded: GET /pdf", err.Error())

	wrapped := Wrap(ErrorTypeParse, io.ErrUnexpectedEOF, "cannot read document")
	assert.Equal(t, "[PARSE_ERROR] cannot read document: unexpected EOF", wrapped.Error())
	assert.False(t, wrapped.Timestamp.IsZero())
}

func TestWrapAndUnwrap(t *testing.T) {
	cause := io.ErrUnexpectedEOF
	err := fmt.Errorf("flatten: %w", Wrap(ErrorTypeParse, cause, "cannot read document"))

	assert.True(t, stderrors.Is(err, cause))
	assert.True(t, Is(err, ErrorTypeParse))
	assert.False(t, Is(err, ErrorTypeNotFound))
	assert.Equal(t, ErrorTypeParse, TypeOf(err))

	var pe *PDFError
	require.True(t, stderrors.As(err, &pe))
	assert.Equal(t, "cannot read document", pe.Message)
}

func TestTypeOf_PlainError(t *testing.T) {
	assert.Equal(t, ErrorTypeInternal, TypeOf(stderrors.New("boom")))
	assert.Equal(t, ErrorTypeInternal, TypeOf(nil))
}

func TestNewf(t *testing.T) {
	err := Newf(ErrorTypeTooLarge, "upload exceeds %d bytes", 10)
	assert.Equal(t, "upload exceeds 10 bytes", err.Message)
	assert.Equal(t, ErrorTypeTooLarge, err.Type)
}

func TestDetail(t *testing.T) {
	err := New(ErrorTypeFieldNotFound, "form field not present").WithField("Email")
	assert.Equal(t, `form field not present (field "Email")`, err.Detail())
	assert.Equal(t, err.Detail(), Detail(fmt.Errorf("prefill: %w", err)))
	assert.Equal(t, "boom", Detail(stderrors.New("boom")))
}

func TestRecover(t *testing.T) {
	read := func(fail bool) (err error) {
		defer Recover(&err, ErrorTypeParse, "failed to read")
		if fail {
			var s []int
			_ = s[3]
		}
		return nil
	}

	require.NoError(t, read(false))

	err := read(true)
	require.Error(t, err)
	assert.True(t, Is(err, ErrorTypeParse))
	assert.Contains(t, Detail(err), "failed to read: runtime error")
}
