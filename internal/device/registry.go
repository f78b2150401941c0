package device

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// StateUpdate is a device state change reported by Core.
// Empty descriptive fields leave the stored values untouched.
type StateUpdate struct {
	DeviceID string
	Name     string
	Room     string
	Area     string
	Value    *float64
	String   string
	Invalid  bool
	Unit     string
	Time     time.Time
}

// Registry is the cached device catalogue.
//
// The cache is populated on startup via RefreshCache() and kept in sync by
// every mutating call. All methods are safe for concurrent use; returned
// devices are deep copies.
type Registry struct {
	repo    Repository
	tags    TagRepository
	cache   map[string]*Device
	cacheMu sync.RWMutex
	logger  Logger
	now     func() time.Time
}

// NewRegistry creates a new device registry.
func NewRegistry(repo Repository, tags TagRepository) *Registry {
	return &Registry{
		repo:   repo,
		tags:   tags,
		cache:  make(map[string]*Device),
		logger: noopLogger{},
		now:    time.Now,
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all devices and their tags from the database.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	ids := make([]string, len(devices))
	for i := range devices {
		ids[i] = devices[i].ID
	}
	tagsByDevice, err := r.tags.GetTagsForDevices(ctx, ids)
	if err != nil {
		return fmt.Errorf("loading device tags: %w", err)
	}

	cache := make(map[string]*Device, len(devices))
	for i := range devices {
		d := devices[i].DeepCopy()
		d.Tags = tagsByDevice[d.ID]
		cache[d.ID] = d
	}

	r.cacheMu.Lock()
	r.cache = cache
	r.cacheMu.Unlock()

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// GetDevice returns ErrDeviceNotFound if the device is unknown.
func (r *Registry) GetDevice(ctx context.Context, id string) (*Device, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()
	if ok {
		return cached.DeepCopy(), nil
	}

	d, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Tags, err = r.tags.GetTags(ctx, id); err != nil {
		return nil, fmt.Errorf("loading device tags: %w", err)
	}

	r.cacheMu.Lock()
	r.cache[id] = d.DeepCopy()
	r.cacheMu.Unlock()
	return d, nil
}

// ListDevices returns all cached devices ordered by id.
func (r *Registry) ListDevices() []Device {
	r.cacheMu.RLock()
	devices := make([]Device, 0, len(r.cache))
	for _, d := range r.cache {
		devices = append(devices, *d.DeepCopy())
	}
	r.cacheMu.RUnlock()

	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })
	return devices
}

// ListByTag returns the sorted IDs of cached devices carrying tag.
func (r *Registry) ListByTag(tag string) []string {
	r.cacheMu.RLock()
	var ids []string
	for id, d := range r.cache {
		if d.HasTag(tag) {
			ids = append(ids, id)
		}
	}
	r.cacheMu.RUnlock()

	sort.Strings(ids)
	return ids
}

// DeviceCount returns the number of cached devices.
func (r *Registry) DeviceCount() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

// ObserveState applies a Core state message, creating the device on first
// sight. It returns the updated device.
func (r *Registry) ObserveState(ctx context.Context, u StateUpdate) (*Device, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[u.DeviceID]
	r.cacheMu.RUnlock()

	var d *Device
	if ok {
		d = cached.DeepCopy()
	} else {
		d = &Device{ID: u.DeviceID, Name: u.DeviceID}
	}

	if u.Name != "" {
		d.Name = u.Name
	}
	if u.Room != "" {
		d.Room = u.Room
	}
	if u.Area != "" {
		d.Area = u.Area
	}
	if u.Unit != "" {
		d.Unit = u.Unit
	}
	d.Value = u.Value
	d.ValueString = u.String
	d.Invalid = u.Invalid
	changed := u.Time
	if changed.IsZero() {
		changed = r.now()
	}
	changed = changed.UTC()
	d.LastChange = &changed

	if err := r.repo.Upsert(ctx, d); err != nil {
		return nil, err
	}

	r.store(d)
	return d.DeepCopy(), nil
}

// SetImportValue stores a polled value on an import device. A nil value
// marks the device invalid and keeps the last value.
func (r *Registry) SetImportValue(ctx context.Context, id string, value *float64, unit string) (*Device, error) {
	d, err := r.GetDevice(ctx, id)
	if err != nil {
		return nil, err
	}

	if value == nil {
		d.Invalid = true
	} else {
		v := *value
		d.Value = &v
		d.Invalid = false
	}
	if unit != "" {
		d.Unit = unit
	}
	now := r.now().UTC()
	d.LastChange = &now

	if err := r.repo.UpdateValue(ctx, d); err != nil {
		return nil, err
	}

	r.store(d)
	return d.DeepCopy(), nil
}

// DeleteDevice removes a device and its tags.
func (r *Registry) DeleteDevice(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil && !errors.Is(err, ErrDeviceNotFound) {
		return err
	}

	r.cacheMu.Lock()
	_, existed := r.cache[id]
	delete(r.cache, id)
	r.cacheMu.Unlock()

	if existed {
		r.logger.Info("device deleted", "device_id", id)
	}
	return nil
}

// AddTag tags a device.
func (r *Registry) AddTag(ctx context.Context, id, tag string) error {
	if _, err := r.GetDevice(ctx, id); err != nil {
		return err
	}
	if err := r.tags.AddTag(ctx, id, tag); err != nil {
		return err
	}
	r.updateTags(id, func(tags []string) []string { return normaliseTags(append(tags, tag)) })
	return nil
}

// RemoveTag untags a device.
func (r *Registry) RemoveTag(ctx context.Context, id, tag string) error {
	if err := r.tags.RemoveTag(ctx, id, tag); err != nil {
		return err
	}
	n := normaliseTag(tag)
	r.updateTags(id, func(tags []string) []string {
		out := tags[:0]
		for _, t := range tags {
			if t != n {
				out = append(out, t)
			}
		}
		return out
	})
	return nil
}

// MigrateLegacyImports tags every device that still carries the legacy
// import config flag and clears the flag. Running it again is a no-op.
// It returns the number of devices migrated.
func (r *Registry) MigrateLegacyImports(ctx context.Context, tag string) (int, error) {
	var legacy []*Device
	r.cacheMu.RLock()
	for _, d := range r.cache {
		if d.LegacyImport() {
			legacy = append(legacy, d.DeepCopy())
		}
	}
	r.cacheMu.RUnlock()

	migrated := 0
	for _, d := range legacy {
		if err := r.tags.AddTag(ctx, d.ID, tag); err != nil {
			return migrated, fmt.Errorf("tagging %s: %w", d.ID, err)
		}
		delete(d.Config, LegacyImportKey)
		d.Tags = normaliseTags(append(d.Tags, tag))
		if err := r.repo.Upsert(ctx, d); err != nil {
			return migrated, fmt.Errorf("clearing legacy flag on %s: %w", d.ID, err)
		}
		r.store(d)
		migrated++
		r.logger.Info("migrated legacy import device", "device_id", d.ID, "tag", normaliseTag(tag))
	}
	return migrated, nil
}

func (r *Registry) store(d *Device) {
	r.cacheMu.Lock()
	r.cache[d.ID] = d.DeepCopy()
	r.cacheMu.Unlock()
}

func (r *Registry) updateTags(id string, fn func([]string) []string) {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()
	if d, ok := r.cache[id]; ok {
		d.Tags = fn(d.Tags)
	}
}
