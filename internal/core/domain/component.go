package domain

type Device struct {
	Id           string
	Name         string
	Version      string
	Model        string
	Manufacturer string
	ViaDevice    string
}

type GenericSensor struct {
	Device            Device
	Id                string
	SensorType        string
	Name              string
	UniqueId          string
	UnitOfMeasurement string
	StateClass        string // measurement
	DeviceClass       string // signal_strength, connectivity
	EntityCategory    string // diagnostic, config, nil
	EnabledByDefault  *bool
	Icon              string
	// sensors without their own availability topic follow the bridge state
	HasAvailability bool
}

type GenericCover struct {
	Device      Device
	Id          string
	Name        string
	UniqueId    string
	DeviceClass string
	Tilt        bool
}

// KnownDevice is what the bridge remembers about a blind between runs, enough
// to retract its discovery configs once it disappears from the gateway.
type KnownDevice struct {
	Mac       string   `json:"mac"`
	DeviceId  string   `json:"device_id"`
	CoverIds  []string `json:"cover_ids"`
	SensorIds []string `json:"sensor_ids"`
}
