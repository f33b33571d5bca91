package factory

import (
	"time"

	"github.com/arcadelink/relay/internal/bus"
	"github.com/arcadelink/relay/internal/dependencies/clock"
	"github.com/arcadelink/relay/internal/relay"
	"github.com/arcadelink/relay/internal/storage/memory"
	"github.com/arcadelink/relay/internal/testutil"
)

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// FixedClock drives time-dependent behavior deterministically.
	FixedClock *clock.Fixed
}

// NewTestApp creates an App wired for testing: memory storage, the
// in-process bus, and a fixed clock.
func NewTestApp() *TestApp {
	store := memory.New()
	fixedClock := clock.NewFixed(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	logger := testutil.NopLogger()

	relayCfg := relay.Config{InstanceID: "test-instance"}
	app := newWithDependencies(store, bus.NewMemoryBus(logger), fixedClock, relayCfg, logger)

	return &TestApp{
		App:        app,
		FixedClock: fixedClock,
	}
}
