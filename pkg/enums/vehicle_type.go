package enums

// VehicleType describes what an agent rides.
type VehicleType string

const (
	VehicleTypeBicycle    VehicleType = "bicycle"
	VehicleTypeMotorcycle VehicleType = "motorcycle"
	VehicleTypeCar        VehicleType = "car"
)

// String implements fmt.Stringer.
func (v VehicleType) String() string {
	return string(v)
}

// IsValid reports whether the value is a known VehicleType.
func (v VehicleType) IsValid() bool {
	switch v {
	case VehicleTypeBicycle, VehicleTypeMotorcycle, VehicleTypeCar:
		return true
	default:
		return false
	}
}
