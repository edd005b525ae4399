package licensing

import (
	"context"
	"sort"
	"sync"
	"time"
)

// memoryState is the table data of an InMemoryStore.
type memoryState struct {
	channels map[int64]*Channel
	devices  map[int64]*Device
	licenses map[int64]*License
	nextID   int64
}

func newMemoryState() *memoryState {
	return &memoryState{
		channels: make(map[int64]*Channel),
		devices:  make(map[int64]*Device),
		licenses: make(map[int64]*License),
	}
}

func (s *memoryState) clone() *memoryState {
	cpy := &memoryState{
		channels: make(map[int64]*Channel, len(s.channels)),
		devices:  make(map[int64]*Device, len(s.devices)),
		licenses: make(map[int64]*License, len(s.licenses)),
		nextID:   s.nextID,
	}
	for id, c := range s.channels {
		cpy.channels[id] = copyChannel(c)
	}
	for id, d := range s.devices {
		cpy.devices[id] = copyDevice(d)
	}
	for id, l := range s.licenses {
		cpy.licenses[id] = copyLicense(l)
	}
	return cpy
}

// InMemoryStore is an in-memory implementation of Store.
// This is intended for testing. Production should use PostgresStore.
//
// Units of work are serialized. A unit of work whose function returns an
// error leaves the data as it was before the call.
type InMemoryStore struct {
	mu    sync.Mutex
	state *memoryState
}

// NewInMemoryStore creates a new, empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{state: newMemoryState()}
}

// WithinTx runs fn against a working copy and publishes it when fn succeeds.
func (s *InMemoryStore) WithinTx(ctx context.Context, fn func(repo Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.state.clone()
	if err := fn(&InMemoryRepository{state: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

// Repository returns a repository that writes straight to the store outside
// any unit of work. Tests use it to seed and inspect data.
func (s *InMemoryStore) Repository() *InMemoryRepository {
	return &InMemoryRepository{store: s}
}

// InMemoryRepository is an in-memory implementation of Repository.
type InMemoryRepository struct {
	// state is set for repositories bound to a unit of work.
	state *memoryState
	// store is set for repositories that write through directly.
	store *InMemoryStore
}

// data returns the table data and a release function.
func (r *InMemoryRepository) data() (*memoryState, func()) {
	if r.state != nil {
		return r.state, func() {}
	}
	r.store.mu.Lock()
	return r.store.state, r.store.mu.Unlock
}

// GetChannel retrieves a channel by ID.
func (r *InMemoryRepository) GetChannel(_ context.Context, id int64) (*Channel, error) {
	s, release := r.data()
	defer release()

	c, ok := s.channels[id]
	if !ok {
		return nil, ErrChannelNotFound
	}
	return copyChannel(c), nil
}

// GetChannelByName retrieves a channel by its unique name.
func (r *InMemoryRepository) GetChannelByName(_ context.Context, name string) (*Channel, error) {
	s, release := r.data()
	defer release()

	for _, c := range s.channels {
		if c.Name == name {
			return copyChannel(c), nil
		}
	}
	return nil, ErrChannelNotFound
}

// ListChannels retrieves all channels ordered by ascending ID.
func (r *InMemoryRepository) ListChannels(_ context.Context) ([]*Channel, error) {
	s, release := r.data()
	defer release()

	items := make([]*Channel, 0, len(s.channels))
	for _, c := range s.channels {
		items = append(items, copyChannel(c))
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

// CreateChannel inserts a channel and sets its ID.
func (r *InMemoryRepository) CreateChannel(_ context.Context, channel *Channel) error {
	s, release := r.data()
	defer release()

	for _, c := range s.channels {
		if c.Name == channel.Name {
			return ErrDuplicate
		}
	}

	s.nextID++
	channel.ID = s.nextID
	s.channels[channel.ID] = copyChannel(channel)
	return nil
}

// UpdateChannel overwrites the mutable fields of an existing channel.
func (r *InMemoryRepository) UpdateChannel(_ context.Context, channel *Channel) error {
	s, release := r.data()
	defer release()

	existing, ok := s.channels[channel.ID]
	if !ok {
		return ErrChannelNotFound
	}
	for id, c := range s.channels {
		if id != channel.ID && c.Name == channel.Name {
			return ErrDuplicate
		}
	}

	updated := copyChannel(channel)
	updated.CreatedAt = existing.CreatedAt
	s.channels[channel.ID] = updated
	return nil
}

// DeleteChannel deletes a channel by ID.
func (r *InMemoryRepository) DeleteChannel(_ context.Context, id int64) error {
	s, release := r.data()
	defer release()

	if _, ok := s.channels[id]; !ok {
		return ErrChannelNotFound
	}
	for _, d := range s.devices {
		if d.ChannelID == id {
			return ErrRestricted
		}
	}
	delete(s.channels, id)
	return nil
}

// GetDevice retrieves a device by ID.
func (r *InMemoryRepository) GetDevice(_ context.Context, id int64) (*Device, error) {
	s, release := r.data()
	defer release()

	d, ok := s.devices[id]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return copyDevice(d), nil
}

// GetDeviceByIDStr retrieves a device by its external identifier.
func (r *InMemoryRepository) GetDeviceByIDStr(_ context.Context, deviceIDStr string) (*Device, error) {
	s, release := r.data()
	defer release()

	for _, d := range s.devices {
		if d.DeviceIDStr == deviceIDStr {
			return copyDevice(d), nil
		}
	}
	return nil, ErrDeviceNotFound
}

// ListDevices retrieves all devices ordered by ascending ID.
func (r *InMemoryRepository) ListDevices(_ context.Context) ([]*Device, error) {
	s, release := r.data()
	defer release()

	items := make([]*Device, 0, len(s.devices))
	for _, d := range s.devices {
		items = append(items, copyDevice(d))
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

// CountDevicesInChannel counts the devices that reference a channel.
func (r *InMemoryRepository) CountDevicesInChannel(_ context.Context, channelID int64) (int, error) {
	s, release := r.data()
	defer release()

	count := 0
	for _, d := range s.devices {
		if d.ChannelID == channelID {
			count++
		}
	}
	return count, nil
}

// CreateDevice inserts a device and sets its ID.
func (r *InMemoryRepository) CreateDevice(_ context.Context, device *Device) error {
	s, release := r.data()
	defer release()

	if _, ok := s.channels[device.ChannelID]; !ok {
		return ErrChannelNotFound
	}
	for _, d := range s.devices {
		if d.DeviceIDStr == device.DeviceIDStr {
			return ErrDuplicate
		}
	}

	s.nextID++
	device.ID = s.nextID
	s.devices[device.ID] = copyDevice(device)
	return nil
}

// DeleteDevice deletes a device by ID.
func (r *InMemoryRepository) DeleteDevice(_ context.Context, id int64) error {
	s, release := r.data()
	defer release()

	if _, ok := s.devices[id]; !ok {
		return ErrDeviceNotFound
	}
	for _, l := range s.licenses {
		if l.DeviceID == id {
			return ErrRestricted
		}
	}
	delete(s.devices, id)
	return nil
}

// GetLicense retrieves a license by ID.
func (r *InMemoryRepository) GetLicense(_ context.Context, id int64) (*License, error) {
	s, release := r.data()
	defer release()

	l, ok := s.licenses[id]
	if !ok {
		return nil, ErrLicenseNotFound
	}
	return copyLicense(l), nil
}

// LatestActiveLicense returns the active, unexpired license with the greatest ExpiresAt.
func (r *InMemoryRepository) LatestActiveLicense(_ context.Context, deviceID int64, now time.Time) (*License, error) {
	s, release := r.data()
	defer release()

	return latest(s.licenses, func(l *License) bool {
		return l.DeviceID == deviceID && l.IsActiveAt(now)
	})
}

// LatestLicense returns the license with the greatest ExpiresAt regardless of status.
func (r *InMemoryRepository) LatestLicense(_ context.Context, deviceID int64) (*License, error) {
	s, release := r.data()
	defer release()

	return latest(s.licenses, func(l *License) bool {
		return l.DeviceID == deviceID
	})
}

// latest picks the matching license with the greatest ExpiresAt, breaking
// ties on the higher ID so results are stable.
func latest(licenses map[int64]*License, match func(*License) bool) (*License, error) {
	var best *License
	for _, l := range licenses {
		if !match(l) {
			continue
		}
		if best == nil || l.ExpiresAt.After(best.ExpiresAt) ||
			(l.ExpiresAt.Equal(best.ExpiresAt) && l.ID > best.ID) {
			best = l
		}
	}
	if best == nil {
		return nil, ErrLicenseNotFound
	}
	return copyLicense(best), nil
}

// CountLicensesForDevice counts the licenses of a device.
func (r *InMemoryRepository) CountLicensesForDevice(_ context.Context, deviceID int64) (int, error) {
	s, release := r.data()
	defer release()

	count := 0
	for _, l := range s.licenses {
		if l.DeviceID == deviceID {
			count++
		}
	}
	return count, nil
}

// CreateLicense inserts a license and sets its ID.
func (r *InMemoryRepository) CreateLicense(_ context.Context, license *License) error {
	s, release := r.data()
	defer release()

	if _, ok := s.devices[license.DeviceID]; !ok {
		return ErrDeviceNotFound
	}

	s.nextID++
	license.ID = s.nextID
	s.licenses[license.ID] = copyLicense(license)
	return nil
}

// UpdateLicenseStatus overwrites the status of a license.
func (r *InMemoryRepository) UpdateLicenseStatus(_ context.Context, id int64, status string) error {
	s, release := r.data()
	defer release()

	l, ok := s.licenses[id]
	if !ok {
		return ErrLicenseNotFound
	}
	l.Status = status
	return nil
}

// DeleteLicensesForDevice deletes every license of a device.
func (r *InMemoryRepository) DeleteLicensesForDevice(_ context.Context, deviceID int64) error {
	s, release := r.data()
	defer release()

	for id, l := range s.licenses {
		if l.DeviceID == deviceID {
			delete(s.licenses, id)
		}
	}
	return nil
}

// Ensure the in-memory types implement the interfaces.
var (
	_ Store      = (*InMemoryStore)(nil)
	_ Repository = (*InMemoryRepository)(nil)
)
