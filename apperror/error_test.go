package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesKindAfterSetMessage(t *testing.T) {
	err := NoFrame.SetMessage("no frame decoded yet")

	assert.ErrorIs(t, err, NoFrame)
	assert.NotErrorIs(t, err, NotFound)
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("connect: %w", CommandFailed.Wrap(cause))

	assert.ErrorIs(t, err, CommandFailed)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestStatusAndMessage(t *testing.T) {
	var target Apperror
	err := fmt.Errorf("begin streaming: %w", InvalidState.SetMessage("not in control mode"))

	assert.True(t, errors.As(err, &target))
	code, msg := target.StatusAndMessage()
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "not in control mode", msg)
}
