package licensing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/channellicense/channellicense/internal/licensing"
)

func TestService_RequestLicense(t *testing.T) {
	store := licensing.NewInMemoryStore()
	clock := newClock()
	seedChannel(t, store, "default", 10, 7)

	svc := licensing.NewService(licensing.ServiceConfig{
		Store:  store,
		Engine: licensing.NewEngine(licensing.WithClock(clock.Now)),
		Logger: zerolog.Nop(),
	})

	issuance, err := svc.RequestLicense(context.Background(), licensing.LicenseRequest{
		DeviceID:  "dev-A",
		Channel:   "default",
		RequestIP: "192.0.2.10",
	})
	require.NoError(t, err)
	assert.Equal(t, licensing.DecisionAdmitted, issuance.Decision)
	assert.Equal(t, "default", issuance.Channel.Name)
	assert.Equal(t, "dev-A", issuance.Device.DeviceIDStr)

	// Committed: visible outside the unit of work.
	stored, err := store.Repository().GetLicense(context.Background(), issuance.License.ID)
	require.NoError(t, err)
	assert.Equal(t, issuance.License.LicenseKey, stored.LicenseKey)
}

func TestService_RejectionsReturnTypedErrors(t *testing.T) {
	store := licensing.NewInMemoryStore()
	seedChannel(t, store, "limited", 1, 30)

	metrics, err := licensing.NewMetrics()
	require.NoError(t, err)

	svc := licensing.NewService(licensing.ServiceConfig{
		Store:   store,
		Logger:  zerolog.Nop(),
		Metrics: metrics,
	})
	ctx := context.Background()

	_, err = svc.RequestLicense(ctx, licensing.LicenseRequest{DeviceID: "dev-1", Channel: "limited"})
	require.NoError(t, err)

	_, err = svc.RequestLicense(ctx, licensing.LicenseRequest{DeviceID: "dev-2", Channel: "limited"})
	assert.ErrorIs(t, err, licensing.ErrDeviceLimitExceeded)

	_, err = svc.RequestLicense(ctx, licensing.LicenseRequest{DeviceID: "dev-3", Channel: "unknown"})
	assert.ErrorIs(t, err, licensing.ErrChannelNotFound)

	assert.Equal(t, 1, countDevices(t, store))
}

// licenseFailingStore hands out repositories whose license insert fails.
type licenseFailingStore struct {
	*licensing.InMemoryStore
	err error
}

func (s *licenseFailingStore) WithinTx(ctx context.Context, fn func(licensing.Repository) error) error {
	return s.InMemoryStore.WithinTx(ctx, func(repo licensing.Repository) error {
		return fn(&licenseFailingRepository{Repository: repo, err: s.err})
	})
}

type licenseFailingRepository struct {
	licensing.Repository
	err error
}

func (r *licenseFailingRepository) CreateLicense(context.Context, *licensing.License) error {
	return r.err
}

func TestService_RollsBackOnStorageError(t *testing.T) {
	inner := licensing.NewInMemoryStore()
	seedChannel(t, inner, "default", 10, 7)

	boom := errors.New("disk full")
	svc := licensing.NewService(licensing.ServiceConfig{
		Store:  &licenseFailingStore{InMemoryStore: inner, err: boom},
		Logger: zerolog.Nop(),
	})

	_, err := svc.RequestLicense(context.Background(), licensing.LicenseRequest{DeviceID: "dev-A", Channel: "default"})
	require.ErrorIs(t, err, boom)

	// The device insert that preceded the failure was rolled back.
	_, err = inner.Repository().GetDeviceByIDStr(context.Background(), "dev-A")
	assert.ErrorIs(t, err, licensing.ErrDeviceNotFound)
}

func TestService_RecordsSpan(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	store := licensing.NewInMemoryStore()
	seedChannel(t, store, "limited", 1, 30)
	svc := licensing.NewService(licensing.ServiceConfig{Store: store, Logger: zerolog.Nop()})
	ctx := context.Background()

	_, err := svc.RequestLicense(ctx, licensing.LicenseRequest{DeviceID: "dev-1", Channel: "limited"})
	require.NoError(t, err)
	_, err = svc.RequestLicense(ctx, licensing.LicenseRequest{DeviceID: "dev-2", Channel: "limited"})
	require.Error(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 2)

	outcomes := make([]string, 0, len(spans))
	for _, span := range spans {
		assert.Equal(t, "licensing.RequestLicense", span.Name())
		// Rejections are answers, not failures.
		assert.Equal(t, codes.Unset, span.Status().Code)
		for _, attr := range span.Attributes() {
			if attr.Key == "licensing.outcome" {
				outcomes = append(outcomes, attr.Value.AsString())
			}
		}
	}
	assert.Equal(t, []string{licensing.OutcomeAdmitted, licensing.OutcomeLimitExceeded}, outcomes)
}

func TestInMemoryStore_CanceledContext(t *testing.T) {
	store := licensing.NewInMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := store.WithinTx(ctx, func(licensing.Repository) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestInMemoryRepository_Constraints(t *testing.T) {
	ctx := context.Background()
	store := licensing.NewInMemoryStore()
	repo := store.Repository()
	ch := seedChannel(t, store, "default", 10, 7)

	err := repo.CreateChannel(ctx, &licensing.Channel{Name: "default", MaxDevices: 1, LicenseDurationDays: 1})
	assert.ErrorIs(t, err, licensing.ErrDuplicate)

	device := &licensing.Device{DeviceIDStr: "dev-A", ChannelID: ch.ID}
	require.NoError(t, repo.CreateDevice(ctx, device))
	assert.ErrorIs(t, repo.CreateDevice(ctx, &licensing.Device{DeviceIDStr: "dev-A", ChannelID: ch.ID}), licensing.ErrDuplicate)

	assert.ErrorIs(t, repo.DeleteChannel(ctx, ch.ID), licensing.ErrRestricted)

	require.NoError(t, repo.CreateLicense(ctx, &licensing.License{DeviceID: device.ID, Status: licensing.StatusActive}))
	assert.ErrorIs(t, repo.DeleteDevice(ctx, device.ID), licensing.ErrRestricted)

	require.NoError(t, repo.DeleteLicensesForDevice(ctx, device.ID))
	require.NoError(t, repo.DeleteDevice(ctx, device.ID))
	require.NoError(t, repo.DeleteChannel(ctx, ch.ID))
}
