package licensing_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/channellicense/channellicense/internal/licensing"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func seedChannel(t *testing.T, store *licensing.InMemoryStore, name string, maxDevices, days int) *licensing.Channel {
	t.Helper()
	ch := &licensing.Channel{
		Name:                name,
		MaxDevices:          maxDevices,
		LicenseDurationDays: days,
		CreatedAt:           time.Now(),
	}
	if err := store.Repository().CreateChannel(context.Background(), ch); err != nil {
		t.Fatalf("failed to seed channel: %v", err)
	}
	return ch
}

func request(t *testing.T, store *licensing.InMemoryStore, engine *licensing.Engine, device, channel, ip string) (*licensing.License, error) {
	t.Helper()
	var license *licensing.License
	err := store.WithinTx(context.Background(), func(repo licensing.Repository) error {
		var err error
		license, err = engine.RequestLicense(context.Background(), repo, device, channel, ip)
		return err
	})
	return license, err
}

func countDevices(t *testing.T, store *licensing.InMemoryStore) int {
	t.Helper()
	devices, err := store.Repository().ListDevices(context.Background())
	if err != nil {
		t.Fatalf("failed to list devices: %v", err)
	}
	return len(devices)
}

func countLicenses(t *testing.T, store *licensing.InMemoryStore, deviceIDStr string) int {
	t.Helper()
	ctx := context.Background()
	device, err := store.Repository().GetDeviceByIDStr(ctx, deviceIDStr)
	if err != nil {
		t.Fatalf("failed to get device %q: %v", deviceIDStr, err)
	}
	n, err := store.Repository().CountLicensesForDevice(ctx, device.ID)
	if err != nil {
		t.Fatalf("failed to count licenses: %v", err)
	}
	return n
}

func TestEngine_AdmitsNewDevice(t *testing.T) {
	store := licensing.NewInMemoryStore()
	clock := newClock()
	engine := licensing.NewEngine(licensing.WithClock(clock.Now))
	seedChannel(t, store, "default", 10, 7)

	license, err := request(t, store, engine, "dev-A", "default", "10.0.0.1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantExpiry := clock.now.Add(7 * 24 * time.Hour)
	if !license.ExpiresAt.Equal(wantExpiry) {
		t.Errorf("expected expiry %v, got %v", wantExpiry, license.ExpiresAt)
	}
	if license.Status != licensing.StatusActive {
		t.Errorf("expected status %q, got %q", licensing.StatusActive, license.Status)
	}
	if license.Version != licensing.CurrentLicenseVersion {
		t.Errorf("expected version %q, got %q", licensing.CurrentLicenseVersion, license.Version)
	}
	wantKey := fmt.Sprintf("LIC::dev-A::%d", wantExpiry.Unix())
	if license.LicenseKey != wantKey {
		t.Errorf("expected key %q, got %q", wantKey, license.LicenseKey)
	}
	if license.RequestIP == nil || *license.RequestIP != "10.0.0.1" {
		t.Errorf("expected request IP 10.0.0.1, got %v", license.RequestIP)
	}
	if countDevices(t, store) != 1 {
		t.Errorf("expected 1 device")
	}
}

func TestEngine_EmptyRequestIPIsNil(t *testing.T) {
	store := licensing.NewInMemoryStore()
	engine := licensing.NewEngine(licensing.WithClock(newClock().Now))
	seedChannel(t, store, "default", 10, 7)

	license, err := request(t, store, engine, "dev-A", "default", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if license.RequestIP != nil {
		t.Errorf("expected nil request IP, got %q", *license.RequestIP)
	}
}

func TestEngine_IdempotentRenewal(t *testing.T) {
	store := licensing.NewInMemoryStore()
	clock := newClock()
	engine := licensing.NewEngine(licensing.WithClock(clock.Now))
	seedChannel(t, store, "default", 10, 7)

	first, err := request(t, store, engine, "dev-A", "default", "10.0.0.1")
	if err != nil {
		t.Fatalf("first request failed: %v", err)
	}

	clock.Advance(3 * 24 * time.Hour)

	second, err := request(t, store, engine, "dev-A", "default", "10.0.0.2")
	if err != nil {
		t.Fatalf("second request failed: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("expected same license %d, got %d", first.ID, second.ID)
	}
	if second.LicenseKey != first.LicenseKey {
		t.Errorf("expected unchanged key %q, got %q", first.LicenseKey, second.LicenseKey)
	}
	if *second.RequestIP != "10.0.0.1" {
		t.Errorf("expected original request IP, got %q", *second.RequestIP)
	}
	if n := countLicenses(t, store, "dev-A"); n != 1 {
		t.Errorf("expected 1 license, got %d", n)
	}
}

func TestEngine_ExpiryTriggersReissue(t *testing.T) {
	store := licensing.NewInMemoryStore()
	clock := newClock()
	engine := licensing.NewEngine(licensing.WithClock(clock.Now))
	seedChannel(t, store, "default", 10, 7)

	first, err := request(t, store, engine, "dev-A", "default", "")
	if err != nil {
		t.Fatalf("first request failed: %v", err)
	}

	clock.Advance(8 * 24 * time.Hour)

	second, err := request(t, store, engine, "dev-A", "default", "")
	if err != nil {
		t.Fatalf("second request failed: %v", err)
	}

	if second.ID == first.ID {
		t.Fatal("expected a new license after expiry")
	}
	if !second.ExpiresAt.Equal(clock.now.Add(7 * 24 * time.Hour)) {
		t.Errorf("unexpected expiry %v", second.ExpiresAt)
	}
	if second.DeviceID != first.DeviceID {
		t.Errorf("expected same device %d, got %d", first.DeviceID, second.DeviceID)
	}
	if n := countLicenses(t, store, "dev-A"); n != 2 {
		t.Errorf("expected 2 licenses, got %d", n)
	}
}

func TestEngine_ExpiryBoundaryIsExclusive(t *testing.T) {
	store := licensing.NewInMemoryStore()
	clock := newClock()
	engine := licensing.NewEngine(licensing.WithClock(clock.Now))
	seedChannel(t, store, "default", 10, 7)

	first, err := request(t, store, engine, "dev-A", "default", "")
	if err != nil {
		t.Fatalf("first request failed: %v", err)
	}

	// A license is no longer current at the exact instant it expires.
	clock.now = first.ExpiresAt

	second, err := request(t, store, engine, "dev-A", "default", "")
	if err != nil {
		t.Fatalf("second request failed: %v", err)
	}
	if second.ID == first.ID {
		t.Error("expected reissue at the expiry instant")
	}
}

func TestEngine_RevokedLicenseIsReissued(t *testing.T) {
	store := licensing.NewInMemoryStore()
	engine := licensing.NewEngine(licensing.WithClock(newClock().Now))
	seedChannel(t, store, "default", 10, 7)

	first, err := request(t, store, engine, "dev-A", "default", "")
	if err != nil {
		t.Fatalf("first request failed: %v", err)
	}
	if err := store.Repository().UpdateLicenseStatus(context.Background(), first.ID, licensing.StatusRevoked); err != nil {
		t.Fatalf("failed to revoke: %v", err)
	}

	second, err := request(t, store, engine, "dev-A", "default", "")
	if err != nil {
		t.Fatalf("second request failed: %v", err)
	}
	if second.ID == first.ID {
		t.Error("expected a new license after revocation")
	}
	if second.Status != licensing.StatusActive {
		t.Errorf("expected active, got %q", second.Status)
	}
}

func TestEngine_KnownDeviceKeepsItsChannel(t *testing.T) {
	store := licensing.NewInMemoryStore()
	clock := newClock()
	engine := licensing.NewEngine(licensing.WithClock(clock.Now))
	home := seedChannel(t, store, "home", 1, 7)
	seedChannel(t, store, "other", 10, 30)

	first, err := request(t, store, engine, "dev-A", "home", "")
	if err != nil {
		t.Fatalf("first request failed: %v", err)
	}

	clock.Advance(10 * 24 * time.Hour)

	// The home channel is full and the named channel does not exist, yet a
	// known device is relicensed on its own channel.
	second, err := request(t, store, engine, "dev-A", "missing", "")
	if err != nil {
		t.Fatalf("renewal failed: %v", err)
	}
	if second.DeviceID != first.DeviceID {
		t.Errorf("expected same device")
	}
	if !second.ExpiresAt.Equal(clock.now.Add(7 * 24 * time.Hour)) {
		t.Errorf("expected home channel duration, got expiry %v", second.ExpiresAt)
	}

	device, err := store.Repository().GetDeviceByIDStr(context.Background(), "dev-A")
	if err != nil {
		t.Fatalf("failed to get device: %v", err)
	}
	if device.ChannelID != home.ID {
		t.Errorf("expected channel %d, got %d", home.ID, device.ChannelID)
	}
}

func TestEngine_QuotaBoundary(t *testing.T) {
	store := licensing.NewInMemoryStore()
	engine := licensing.NewEngine(licensing.WithClock(newClock().Now))
	seedChannel(t, store, "small", 3, 30)

	for i := 0; i < 3; i++ {
		if _, err := request(t, store, engine, fmt.Sprintf("dev-%d", i), "small", ""); err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
	}

	_, err := request(t, store, engine, "dev-overflow", "small", "")
	var limitErr *licensing.DeviceLimitExceededError
	if !errors.As(err, &limitErr) {
		t.Fatalf("expected DeviceLimitExceededError, got %v", err)
	}
	if limitErr.Channel != "small" || limitErr.MaxDevices != 3 {
		t.Errorf("unexpected error fields: %+v", limitErr)
	}
	if !errors.Is(err, licensing.ErrDeviceLimitExceeded) {
		t.Error("expected errors.Is to match ErrDeviceLimitExceeded")
	}
	if n := countDevices(t, store); n != 3 {
		t.Errorf("expected 3 devices, got %d", n)
	}
}

func TestEngine_UnknownChannel(t *testing.T) {
	store := licensing.NewInMemoryStore()
	engine := licensing.NewEngine()
	seedChannel(t, store, "default", 10, 7)

	_, err := request(t, store, engine, "dev-A", "nope", "")

	var notFound *licensing.ChannelNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ChannelNotFoundError, got %v", err)
	}
	if notFound.Channel != "nope" {
		t.Errorf("expected channel %q, got %q", "nope", notFound.Channel)
	}
	if !licensing.IsRejection(err) {
		t.Error("expected a rejection")
	}
	if n := countDevices(t, store); n != 0 {
		t.Errorf("expected no devices, got %d", n)
	}
}

func TestEngine_Scenarios(t *testing.T) {
	store := licensing.NewInMemoryStore()
	clock := newClock()
	engine := licensing.NewEngine(licensing.WithClock(clock.Now))
	seedChannel(t, store, "default", 10, 7)
	seedChannel(t, store, "limited", 1, 30)

	t.Run("default channel", func(t *testing.T) {
		first, err := request(t, store, engine, "dev-A", "default", "1.2.3.4")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		second, err := request(t, store, engine, "dev-A", "default", "1.2.3.4")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if first.LicenseKey != second.LicenseKey {
			t.Errorf("expected identical keys, got %q and %q", first.LicenseKey, second.LicenseKey)
		}
		if got := first.ExpiresAt.Sub(clock.now); got != 7*24*time.Hour {
			t.Errorf("expected 7 day duration, got %v", got)
		}
	})

	t.Run("limited channel", func(t *testing.T) {
		if _, err := request(t, store, engine, "dev-L1", "limited", ""); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		_, err := request(t, store, engine, "dev-L2", "limited", "")
		if !errors.Is(err, licensing.ErrDeviceLimitExceeded) {
			t.Fatalf("expected device limit error, got %v", err)
		}
		if _, err := store.Repository().GetDeviceByIDStr(context.Background(), "dev-L2"); !errors.Is(err, licensing.ErrDeviceNotFound) {
			t.Errorf("expected dev-L2 to be absent, got %v", err)
		}
	})
}

func TestEngine_CustomKeyGenerator(t *testing.T) {
	store := licensing.NewInMemoryStore()
	engine := licensing.NewEngine(licensing.WithKeyGenerator(func(device string, _ time.Time) string {
		return "custom-" + device
	}))
	seedChannel(t, store, "default", 10, 7)

	license, err := request(t, store, engine, "dev-A", "default", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if license.LicenseKey != "custom-dev-A" {
		t.Errorf("expected custom key, got %q", license.LicenseKey)
	}
}

// failingRepository fails device counting.
type failingRepository struct {
	licensing.Repository
	err error
}

func (r *failingRepository) CountDevicesInChannel(context.Context, int64) (int, error) {
	return 0, r.err
}

func TestEngine_StorageErrorsPropagateUnchanged(t *testing.T) {
	store := licensing.NewInMemoryStore()
	engine := licensing.NewEngine()
	seedChannel(t, store, "default", 10, 7)

	boom := errors.New("connection reset")
	err := store.WithinTx(context.Background(), func(repo licensing.Repository) error {
		_, err := engine.RequestLicense(context.Background(), &failingRepository{Repository: repo, err: boom}, "dev-A", "default", "")
		return err
	})
	if err != boom { //nolint:errorlint // identity is the point
		t.Fatalf("expected the storage error itself, got %v", err)
	}
	if licensing.IsRejection(err) {
		t.Error("storage error must not be a rejection")
	}
}

func TestEngine_ResolveReportsDecision(t *testing.T) {
	store := licensing.NewInMemoryStore()
	clock := newClock()
	engine := licensing.NewEngine(licensing.WithClock(clock.Now))
	seedChannel(t, store, "default", 10, 7)

	resolve := func() *licensing.Issuance {
		t.Helper()
		var issuance *licensing.Issuance
		err := store.WithinTx(context.Background(), func(repo licensing.Repository) error {
			var err error
			issuance, err = engine.Resolve(context.Background(), repo, "dev-A", "default", "")
			return err
		})
		if err != nil {
			t.Fatalf("resolve failed: %v", err)
		}
		return issuance
	}

	if got := resolve().Decision; got != licensing.DecisionAdmitted {
		t.Errorf("expected %q, got %q", licensing.DecisionAdmitted, got)
	}
	if got := resolve().Decision; got != licensing.DecisionExisting {
		t.Errorf("expected %q, got %q", licensing.DecisionExisting, got)
	}
	clock.Advance(30 * 24 * time.Hour)
	if got := resolve().Decision; got != licensing.DecisionRenewed {
		t.Errorf("expected %q, got %q", licensing.DecisionRenewed, got)
	}
}
