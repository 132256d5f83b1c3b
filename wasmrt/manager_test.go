package wasmrt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestManagerUnknownRuntime(t *testing.T) {
	mgr := NewManager()
	_, err := mgr.Runtime("does-not-exist")
	require.Error(t, err)
}

func TestManagerClose(t *testing.T) {
	mgr := NewManager()
	require.NoError(t, mgr.Close(nil))
}
