package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(NotFound("conversation not found")))
	assert.Equal(t, KindUnauthorized, KindOf(fmt.Errorf("wrapped: %w", Unauthorized("nope"))))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.False(t, Is(nil, KindNotFound))
}

func TestPublicMessageMasksUnknownErrors(t *testing.T) {
	assert.Equal(t, "Message text cannot be empty", PublicMessage(Validation("Message text cannot be empty", "text")))
	assert.Equal(t, "internal error", PublicMessage(errors.New("mongo: connection refused")))

	ie := Internal("failed to save message", errors.New("socket closed"))
	assert.Equal(t, "failed to save message", PublicMessage(ie))
	assert.Contains(t, ie.Error(), "socket closed")
}
