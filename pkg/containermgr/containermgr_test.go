package containermgr

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPContainerManagerDelegatesToCheckFn(t *testing.T) {
	var seenAddress string
	mgr := NewHTTPContainerManager(func(_ context.Context, address string) (bool, error) {
		seenAddress = address
		return true, nil
	})

	registered, err := mgr.NodeRegistered(context.Background(), "10.2.0.2")
	require.NoError(t, err)
	assert.True(t, registered)
	assert.Equal(t, "10.2.0.2", seenAddress)
}

func TestHTTPContainerManagerPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	mgr := NewHTTPContainerManager(func(_ context.Context, _ string) (bool, error) {
		return false, boom
	})

	_, err := mgr.NodeRegistered(context.Background(), "10.2.0.2")
	assert.ErrorIs(t, err, boom)
}
