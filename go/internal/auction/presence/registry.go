package presence

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/veilinghq/veiling/go/internal/auction"
)

var (
	// ErrAlreadyConnected is returned for a connect or region join that
	// would not change the registry.
	ErrAlreadyConnected = errors.New("connection already registered")

	// ErrUnknownConnection is returned when the connection id has no entry.
	ErrUnknownConnection = errors.New("unknown connection")
)

// Entry maps one transport connection to the viewer behind it and the clock
// it is watching.
type Entry struct {
	ConnectionID string
	ClockID      uuid.UUID
	ViewerID     string
	Regions      []auction.Region
}

// Registry tracks which connections watch which clocks and regions, and
// derives live counts from that mapping. It is the only structure touched by
// arbitrary unrelated connections, so it carries its own lock and never
// takes part in any per-clock serialization.
type Registry struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	byClock  map[uuid.UUID]map[string]struct{}
	byRegion map[auction.Region]map[string]struct{}
}

type entry struct {
	clockID  uuid.UUID
	viewerID string
	regions  map[auction.Region]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		entries:  make(map[string]*entry),
		byClock:  make(map[uuid.UUID]map[string]struct{}),
		byRegion: make(map[auction.Region]map[string]struct{}),
	}
}

// Connect upserts the mapping for a connection. Re-connecting an existing
// connection to a different clock moves it; the previous entry is returned
// so the caller can recompute that clock's count. An identical mapping
// returns ErrAlreadyConnected and changes nothing.
func (r *Registry) Connect(connectionID string, clockID uuid.UUID, viewerID string) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var prev *Entry
	if e, ok := r.entries[connectionID]; ok {
		if e.clockID == clockID && e.viewerID == viewerID {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyConnected, connectionID)
		}
		prev = r.snapshotEntry(connectionID, e)
		delete(r.byClock[e.clockID], connectionID)
		if len(r.byClock[e.clockID]) == 0 {
			delete(r.byClock, e.clockID)
		}
		e.clockID = clockID
		e.viewerID = viewerID
	} else {
		r.entries[connectionID] = &entry{
			clockID:  clockID,
			viewerID: viewerID,
			regions:  make(map[auction.Region]struct{}),
		}
	}

	if r.byClock[clockID] == nil {
		r.byClock[clockID] = make(map[string]struct{})
	}
	r.byClock[clockID][connectionID] = struct{}{}
	return prev, nil
}

// Disconnect removes the mapping and returns the freed entry, region
// memberships included, so the caller can broadcast updated counts and tear
// down transport groups.
func (r *Registry) Disconnect(connectionID string) (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[connectionID]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrUnknownConnection, connectionID)
	}
	freed := *r.snapshotEntry(connectionID, e)

	delete(r.entries, connectionID)
	delete(r.byClock[e.clockID], connectionID)
	if len(r.byClock[e.clockID]) == 0 {
		delete(r.byClock, e.clockID)
	}
	for region := range e.regions {
		delete(r.byRegion[region], connectionID)
		if len(r.byRegion[region]) == 0 {
			delete(r.byRegion, region)
		}
	}
	return freed, nil
}

// JoinRegion adds the connection to a region audience.
func (r *Registry) JoinRegion(connectionID string, region auction.Region) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[connectionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConnection, connectionID)
	}
	if _, ok := e.regions[region]; ok {
		return fmt.Errorf("%w: already in region %s/%s", ErrAlreadyConnected, region.Country, region.Region)
	}
	e.regions[region] = struct{}{}
	if r.byRegion[region] == nil {
		r.byRegion[region] = make(map[string]struct{})
	}
	r.byRegion[region][connectionID] = struct{}{}
	return nil
}

// LeaveRegion removes the connection from a region audience.
func (r *Registry) LeaveRegion(connectionID string, region auction.Region) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[connectionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConnection, connectionID)
	}
	if _, ok := e.regions[region]; !ok {
		return fmt.Errorf("%w: not in region %s/%s", ErrUnknownConnection, region.Country, region.Region)
	}
	delete(e.regions, region)
	delete(r.byRegion[region], connectionID)
	if len(r.byRegion[region]) == 0 {
		delete(r.byRegion, region)
	}
	return nil
}

// CountFor returns the number of live connections watching a clock.
func (r *Registry) CountFor(clockID uuid.UUID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byClock[clockID])
}

// CountForRegion returns the number of live connections in a region audience.
func (r *Registry) CountForRegion(region auction.Region) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byRegion[region])
}

// ConnectionsFor returns the connection ids watching a clock. Used on clock
// teardown to drop the whole audience.
func (r *Registry) ConnectionsFor(clockID uuid.UUID) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.byClock[clockID]))
	for id := range r.byClock[clockID] {
		ids = append(ids, id)
	}
	return ids
}

func (r *Registry) snapshotEntry(connectionID string, e *entry) *Entry {
	regions := make([]auction.Region, 0, len(e.regions))
	for region := range e.regions {
		regions = append(regions, region)
	}
	return &Entry{
		ConnectionID: connectionID,
		ClockID:      e.clockID,
		ViewerID:     e.viewerID,
		Regions:      regions,
	}
}
