package scheduler

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRegionLockThenReleaseAllowsReacquire(t *testing.T) {
	region := fmt.Sprintf("testregion-%d", 1)
	unlock, err := acquireRegionLock(region)
	require.NoError(t, err)
	unlock()

	unlock2, err := acquireRegionLock(region)
	require.NoError(t, err)
	unlock2()
}

func TestAcquireRegionLockRefusesSecondHolder(t *testing.T) {
	region := fmt.Sprintf("testregion-%d", 2)
	unlock, err := acquireRegionLock(region)
	require.NoError(t, err)
	defer unlock()

	_, err = acquireRegionLock(region)
	assert.Error(t, err)
}
