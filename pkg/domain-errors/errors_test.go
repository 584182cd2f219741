package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasCode(t *testing.T) {
	t.Run("direct code", func(t *testing.T) {
		err := New(CodeNotFound, "box missing")
		assert.True(t, HasCode(err, CodeNotFound))
		assert.False(t, HasCode(err, CodeRejected))
	})

	t.Run("code found through fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("resolve: %w", New(CodeInvalidBoxContents, "bad json"))
		assert.True(t, HasCode(err, CodeInvalidBoxContents))
	})

	t.Run("inner code found under outer domain error", func(t *testing.T) {
		inner := New(CodeNetwork, "dial failed")
		outer := Wrap(inner, CodeRejected, "submit")
		assert.True(t, HasCode(outer, CodeRejected))
		assert.True(t, HasCode(outer, CodeNetwork))
		assert.Equal(t, CodeRejected, CodeOf(outer))
	})

	t.Run("plain errors have no code", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("boom"), CodeInternal))
		assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
		assert.False(t, HasCode(nil, CodeInternal))
	})
}

func TestMessageOfKeepsLedgerDiagnostic(t *testing.T) {
	err := Wrap(errors.New("logic eval error: assert failed pc=120"), CodeRejected, "transaction rejected")
	assert.Equal(t, "transaction rejected: logic eval error: assert failed pc=120", MessageOf(err))
	assert.ErrorContains(t, err, "pc=120")
}
