// Package config loads the battery descriptor and operation-to-preset
// mapping the command-line entrypoint needs at start-up, from a YAML
// file, and turns them into the plain session.BatteryConfig/PresetMap
// values the session engine consumes.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fhriley/bump-bridge/internal/appproto"
	"github.com/fhriley/bump-bridge/internal/session"
)

// chemistryNames maps the YAML chemistry string to the wire code. Only
// the chemistries the reference battery descriptors actually use are
// listed; an unknown name is a config error, not a silent zero.
var chemistryNames = map[string]appproto.Chemistry{
	"lipo":  appproto.ChemistryLiPo,
	"liion": appproto.ChemistryLiIon,
	"a123":  appproto.ChemistryA123,
	"limn":  appproto.ChemistryLiMn,
	"lico":  appproto.ChemistryLiCo,
	"nicd":  appproto.ChemistryNiCd,
	"nimh":  appproto.ChemistryNiMH,
	"pb":    appproto.ChemistryPb,
	"life":  appproto.ChemistryLiFe,
	"prim":  appproto.ChemistryPrim,
	"sply":  appproto.ChemistrySply,
	"nizn":  appproto.ChemistryNiZn,
	"lihv":  appproto.ChemistryLiHV,
}

var operationNames = map[string]appproto.ChargerOperation{
	"accurate":  appproto.OperationAccurate,
	"normal":    appproto.OperationNormal,
	"fastest":   appproto.OperationFastest,
	"storage":   appproto.OperationStorage,
	"discharge": appproto.OperationDischarge,
	"analyze":   appproto.OperationAnalyze,
	"monitor":   appproto.OperationMonitor,
	"trickle":   appproto.OperationTrickle,
}

// chargeRates holds the per-operation charge-C fields a battery
// descriptor exposes in YAML; it is intentionally a separate shape
// from session.BatteryConfig.ChargeC's map keyed by wire enum, since
// YAML files name operations as words, not integers.
type chargeRates struct {
	Accurate float64 `yaml:"accurate"`
	Normal   float64 `yaml:"normal"`
	Fastest  float64 `yaml:"fastest"`
	Storage  float64 `yaml:"storage"`
}

// batteryFile is the top-level shape of a battery descriptor YAML
// document.
type batteryFile struct {
	Chemistry             string      `yaml:"chemistry"`
	CellCount              byte        `yaml:"cell_count"`
	CapacityMah            uint16      `yaml:"capacity_mah"`
	MaxCellVolts           float64     `yaml:"max_cell_volts"`
	MinCellVolts           float64     `yaml:"min_cell_volts"`
	StorageChargeVolts     float64     `yaml:"storage_charge_volts"`
	StorageDischargeVolts  float64     `yaml:"storage_discharge_volts"`
	CycleCount             uint16      `yaml:"cycle_count"`
	PackCount              byte        `yaml:"pack_count"`
	BrandName              string      `yaml:"brand_name"`
	PreferredOperation     string      `yaml:"preferred_operation"`
	ChargeC                chargeRates `yaml:"charge_c"`
	DischargeC             float64     `yaml:"discharge_c"`
	InternalResistanceMohm float64     `yaml:"internal_resistance_mohm"`
	DischargeCMax          float64     `yaml:"discharge_c_max"`
	ChargeCMax             float64     `yaml:"charge_c_max"`

	// FuelTable is the 11-point state-of-charge-to-voltage curve; an
	// empty list falls back to the zero table, which the session engine
	// and app render as "unmeasured".
	FuelTable []uint16 `yaml:"fuel_table"`

	// Presets maps an operation name to the charger preset slot (0..74)
	// that realizes it. An operation absent here is rejected by
	// SelectedOperation; the session's checkPreset indexes the map
	// unguarded and falls back to slot 0 for it.
	Presets map[string]int `yaml:"presets"`
}

// LoadBattery reads a battery descriptor from path and returns the
// session.BatteryConfig and session.PresetMap it describes.
func LoadBattery(path string) (*session.BatteryConfig, session.PresetMap, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var f batteryFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	chem, ok := chemistryNames[f.Chemistry]
	if !ok {
		return nil, nil, fmt.Errorf("config: %s: unknown chemistry %q", path, f.Chemistry)
	}

	prefOp := appproto.OperationNormal
	if f.PreferredOperation != "" {
		op, ok := operationNames[f.PreferredOperation]
		if !ok {
			return nil, nil, fmt.Errorf("config: %s: unknown preferred_operation %q", path, f.PreferredOperation)
		}
		prefOp = op
	}

	battery := &session.BatteryConfig{
		Chemistry:             chem,
		CellCount:              f.CellCount,
		Capacity:               f.CapacityMah,
		MaxCellVolts:           f.MaxCellVolts,
		MinCellVolts:           f.MinCellVolts,
		StorageChargeVolts:     f.StorageChargeVolts,
		StorageDischargeVolts:  f.StorageDischargeVolts,
		CycleCount:             f.CycleCount,
		PackCount:              f.PackCount,
		BrandName:              f.BrandName,
		PrefOperation:          prefOp,
		DischargeC:             f.DischargeC,
		InternalResistance:     f.InternalResistanceMohm,
		DischargeCMax:          f.DischargeCMax,
		ChargeCMax:             f.ChargeCMax,
		ChargeC: map[appproto.ChargerOperation]float64{
			appproto.OperationAccurate: f.ChargeC.Accurate,
			appproto.OperationNormal:   f.ChargeC.Normal,
			appproto.OperationFastest:  f.ChargeC.Fastest,
			appproto.OperationStorage:  f.ChargeC.Storage,
		},
	}
	for i := 0; i < len(f.FuelTable) && i < len(battery.MeasuredFuelTable); i++ {
		battery.MeasuredFuelTable[i] = f.FuelTable[i]
	}

	presetMap := make(session.PresetMap, len(f.Presets))
	for name, slot := range f.Presets {
		op, ok := operationNames[name]
		if !ok {
			return nil, nil, fmt.Errorf("config: %s: unknown preset operation %q", path, name)
		}
		if slot < 0 || slot >= 75 {
			return nil, nil, fmt.Errorf("config: %s: preset slot %d for %q out of range", path, slot, name)
		}
		presetMap[op] = slot
	}

	return battery, presetMap, nil
}
