package presence

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veilinghq/veiling/go/internal/auction"
)

var aalsmeer = auction.Region{Country: "NL", Region: "Aalsmeer"}

func TestRegistry_ConnectAndCount(t *testing.T) {
	r := NewRegistry()
	clockID := uuid.New()

	prev, err := r.Connect("conn-1", clockID, "viewer-1")
	require.NoError(t, err)
	assert.Nil(t, prev)
	assert.Equal(t, 1, r.CountFor(clockID))

	_, err = r.Connect("conn-2", clockID, "viewer-2")
	require.NoError(t, err)
	assert.Equal(t, 2, r.CountFor(clockID))
}

func TestRegistry_ConnectIdempotent(t *testing.T) {
	r := NewRegistry()
	clockID := uuid.New()

	_, err := r.Connect("conn-1", clockID, "viewer-1")
	require.NoError(t, err)

	_, err = r.Connect("conn-1", clockID, "viewer-1")
	assert.True(t, errors.Is(err, ErrAlreadyConnected))
	assert.Equal(t, 1, r.CountFor(clockID), "repeat connect must not double-count")
}

func TestRegistry_ConnectMovesBetweenClocks(t *testing.T) {
	r := NewRegistry()
	first, second := uuid.New(), uuid.New()

	_, err := r.Connect("conn-1", first, "viewer-1")
	require.NoError(t, err)

	prev, err := r.Connect("conn-1", second, "viewer-1")
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, first, prev.ClockID)
	assert.Equal(t, 0, r.CountFor(first))
	assert.Equal(t, 1, r.CountFor(second))
}

func TestRegistry_Disconnect(t *testing.T) {
	r := NewRegistry()
	clockID := uuid.New()

	_, err := r.Connect("conn-1", clockID, "viewer-1")
	require.NoError(t, err)
	require.NoError(t, r.JoinRegion("conn-1", aalsmeer))

	freed, err := r.Disconnect("conn-1")
	require.NoError(t, err)
	assert.Equal(t, clockID, freed.ClockID)
	assert.Equal(t, "viewer-1", freed.ViewerID)
	assert.Equal(t, []auction.Region{aalsmeer}, freed.Regions)
	assert.Equal(t, 0, r.CountFor(clockID))
	assert.Equal(t, 0, r.CountForRegion(aalsmeer))

	_, err = r.Disconnect("conn-1")
	assert.True(t, errors.Is(err, ErrUnknownConnection))
}

func TestRegistry_RegionMembership(t *testing.T) {
	r := NewRegistry()
	clockID := uuid.New()

	err := r.JoinRegion("ghost", aalsmeer)
	assert.True(t, errors.Is(err, ErrUnknownConnection))

	_, err = r.Connect("conn-1", clockID, "viewer-1")
	require.NoError(t, err)

	require.NoError(t, r.JoinRegion("conn-1", aalsmeer))
	assert.Equal(t, 1, r.CountForRegion(aalsmeer))

	err = r.JoinRegion("conn-1", aalsmeer)
	assert.True(t, errors.Is(err, ErrAlreadyConnected))
	assert.Equal(t, 1, r.CountForRegion(aalsmeer))

	require.NoError(t, r.LeaveRegion("conn-1", aalsmeer))
	assert.Equal(t, 0, r.CountForRegion(aalsmeer))

	err = r.LeaveRegion("conn-1", aalsmeer)
	assert.True(t, errors.Is(err, ErrUnknownConnection))
}

func TestRegistry_ConnectionsFor(t *testing.T) {
	r := NewRegistry()
	clockID := uuid.New()

	for i := 0; i < 3; i++ {
		_, err := r.Connect(fmt.Sprintf("conn-%d", i), clockID, fmt.Sprintf("viewer-%d", i))
		require.NoError(t, err)
	}
	assert.Len(t, r.ConnectionsFor(clockID), 3)
	assert.Empty(t, r.ConnectionsFor(uuid.New()))
}

func TestRegistry_ConcurrentConnectsDoNotCorruptCounts(t *testing.T) {
	r := NewRegistry()
	clockID := uuid.New()

	const n = 64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			connID := fmt.Sprintf("conn-%d", i)
			_, err := r.Connect(connID, clockID, fmt.Sprintf("viewer-%d", i))
			require.NoError(t, err)
			if i%2 == 0 {
				_, err := r.Disconnect(connID)
				require.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, n/2, r.CountFor(clockID))
}
