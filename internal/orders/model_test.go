package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransitionAllowed(t *testing.T) {
	assert.True(t, transitionAllowed(StatusDraft, StatusReleased))
	assert.True(t, transitionAllowed(StatusDraft, StatusCancelled))
	assert.True(t, transitionAllowed(StatusReleased, StatusInProgress))
	assert.True(t, transitionAllowed(StatusInProgress, StatusDone))

	assert.False(t, transitionAllowed(StatusDraft, StatusDone))
	assert.False(t, transitionAllowed(StatusDone, StatusInProgress))
	assert.False(t, transitionAllowed(StatusCancelled, StatusReleased))
	assert.False(t, transitionAllowed("bogus", StatusDone))
}
