package runtime

// FieldGroup is a bit in the change-detector's result bitset, one per
// field group with its own threshold (spec.md §4.5 "Change detector").
type FieldGroup uint16

const (
	FieldTemperatures FieldGroup = 1 << iota
	FieldPressure
	FieldPWM
	FieldState
	FieldFlags
	FieldWeight
	FieldWiFi
	FieldCloud
)

// Thresholds bound how much a field must move before it counts as
// changed (spec.md §4.5: "temperature 0.1°C, pressure 0.05bar, weight
// 0.1g, etc."). Units match the wire's fixed-point scale.
type Thresholds struct {
	TemperatureTenths int16 // already in 0.1°C units; threshold of 1 == 0.1°C
	PressureHundredths int16 // 0.01 bar units; threshold of 5 == 0.05 bar
	WeightTenthsGram   int32 // 0.1g units; threshold of 1 == 0.1g
}

// DefaultThresholds matches the values named in spec.md §4.5.
var DefaultThresholds = Thresholds{
	TemperatureTenths:  1,
	PressureHundredths: 5,
	WeightTenthsGram:   1,
}

// Changed compares cur against prev and returns which field groups moved
// beyond t's thresholds, for the broadcaster to decide between a delta
// update and a full resend.
func Changed(prev, cur Snapshot, t Thresholds) FieldGroup {
	var groups FieldGroup

	if absInt16(cur.Status.BrewTemp-prev.Status.BrewTemp) >= t.TemperatureTenths ||
		absInt16(cur.Status.SteamTemp-prev.Status.SteamTemp) >= t.TemperatureTenths ||
		absInt16(cur.Status.GroupTemp-prev.Status.GroupTemp) >= t.TemperatureTenths {
		groups |= FieldTemperatures
	}
	if absInt16(cur.Status.Pressure-prev.Status.Pressure) >= t.PressureHundredths {
		groups |= FieldPressure
	}
	if cur.Status.BrewPWM != prev.Status.BrewPWM || cur.Status.SteamPWM != prev.Status.SteamPWM || cur.Status.PumpPWM != prev.Status.PumpPWM {
		groups |= FieldPWM
	}
	if cur.Status.State != prev.Status.State {
		groups |= FieldState
	}
	if cur.Status.Flags != prev.Status.Flags {
		groups |= FieldFlags
	}
	if absFloat32(cur.ScaleWeightG-prev.ScaleWeightG)*10 >= float32(t.WeightTenthsGram) {
		groups |= FieldWeight
	}
	if cur.WiFiRSSI != prev.WiFiRSSI || cur.WiFiSSID != prev.WiFiSSID {
		groups |= FieldWiFi
	}
	if cur.CloudLinked != prev.CloudLinked {
		groups |= FieldCloud
	}
	return groups
}

func absInt16(v int16) int16 {
	if v < 0 {
		return -v
	}
	return v
}

func absFloat32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
