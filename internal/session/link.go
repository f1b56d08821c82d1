package session

import "github.com/fhriley/bump-bridge/internal/charger"

// ChargerLink is the subset of *chargerlink.Link the session engine
// depends on, kept as an interface so tests can drive the engine against
// a fake charger.
type ChargerLink interface {
	Connect() (*charger.Options, error)
	Close() error
	ReadStatus(retries int) (*charger.Status, error)
	ReadPresets(retries int) ([]*charger.Preset, error)
	WritePresets(presets []*charger.Preset, retries int) error
	CommandEnter(numParallel, retries int) error
	CommandMonitor(numParallel int, useBananas bool, retries int) error
	CommandCharge(numParallel int, useBananas bool, retries int) error
	CommandDischarge(numParallel int, useBananas bool, retries int) error
	CommandSetActivePreset(which, retries int) error
}
