package herrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRuntimeKinds_AreComparableWithErrorsIs(t *testing.T) {
	wrapped := fmt.Errorf("eval: %w", ErrTimeout)
	assert.ErrorIs(t, wrapped, ErrTimeout)
	assert.NotErrorIs(t, wrapped, ErrRecursion)
}

func TestVersionError_Message(t *testing.T) {
	err := &VersionError{Got: "0.0.1", Want: "0.1.0"}
	assert.Contains(t, err.Error(), "0.0.1")
	assert.Contains(t, err.Error(), "0.1.0")
}

func TestSyntaxError_MessageWithAndWithoutSymbol(t *testing.T) {
	e := NewSyntaxError(Position{Line: 3, Column: 5}, "", "unexpected end of input")
	assert.Equal(t, "3:5: unexpected end of input", e.Error())

	e2 := NewSyntaxError(Position{Line: 1, Column: 1}, "}", "unexpected token")
	assert.Equal(t, `1:1: unexpected token (near "}")`, e2.Error())
}

func TestPosition_String(t *testing.T) {
	assert.Equal(t, "2:9", Position{Line: 2, Column: 9}.String())
}

func TestSyntaxError_IsNotARuntimeKind(t *testing.T) {
	e := NewSyntaxError(Position{}, "", "x")
	assert.False(t, errors.Is(error(e), ErrEval))
}
