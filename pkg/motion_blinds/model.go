package motion_blinds

import (
	"errors"
	"slices"
)

type DeviceType string

const (
	DeviceTypeGateway          DeviceType = "02000001"
	DeviceTypeGatewayV2        DeviceType = "02000002"
	DeviceTypeBlind            DeviceType = "10000000"
	DeviceTypeTopDownBottomUp  DeviceType = "10000001"
	DeviceTypeWiFiCurtain      DeviceType = "22000000"
	DeviceTypeWiFiBlind        DeviceType = "22000002"
	DeviceTypeWiFiTubularMotor DeviceType = "22000005"
)

// DeviceTypesWiFi lists blinds that talk to the network directly and act as
// their own gateway.
var DeviceTypesWiFi = []DeviceType{
	DeviceTypeWiFiCurtain,
	DeviceTypeWiFiBlind,
	DeviceTypeWiFiTubularMotor,
}

func IsWiFiDevice(t DeviceType) bool {
	return slices.Contains(DeviceTypesWiFi, t)
}

type BlindType string

const (
	BlindTypeRollerBlind     BlindType = "RollerBlind"
	BlindTypeVenetianBlind   BlindType = "VenetianBlind"
	BlindTypeRomanBlind      BlindType = "RomanBlind"
	BlindTypeHoneycombBlind  BlindType = "HoneycombBlind"
	BlindTypeShangriLaBlind  BlindType = "ShangriLaBlind"
	BlindTypeRollerShutter   BlindType = "RollerShutter"
	BlindTypeRollerGate      BlindType = "RollerGate"
	BlindTypeAwning          BlindType = "Awning"
	BlindTypeTopDownBottomUp BlindType = "TopDownBottomUp"
	BlindTypeDayNightBlind   BlindType = "DayNightBlind"
	BlindTypeDimmingBlind    BlindType = "DimmingBlind"
	BlindTypeCurtain         BlindType = "Curtain"
	BlindTypeCurtainLeft     BlindType = "CurtainLeft"
	BlindTypeCurtainRight    BlindType = "CurtainRight"
	BlindTypeDoubleRoller    BlindType = "DoubleRoller"
	BlindTypeVerticalBlind   BlindType = "VerticalBlind"
	BlindTypeWoodShutter     BlindType = "WoodShutter"
	BlindTypeSkylightBlind   BlindType = "SkylightBlind"
	BlindTypeInsectScreen    BlindType = "InsectScreen"
	BlindTypeSwitch          BlindType = "Switch"
	BlindTypeDualShade       BlindType = "DualShade"
	BlindTypeUnknown         BlindType = "Unknown"
)

var (
	ErrUnknownBlind       = errors.New("unknown blind")
	ErrGatewayUnreachable = errors.New("gateway unreachable")
)

type GatewayInfo struct {
	Mac             string
	DeviceType      DeviceType
	FirmwareVersion string
	ProtocolVersion string
	Blinds          []BlindInfo
}

type BlindInfo struct {
	Mac        string
	DeviceType DeviceType
	BlindType  BlindType
}

type GatewayStatus struct {
	Available bool
	RSSI      *int
}

// BlindStatus is the last state reported by a blind. Position is the
// percentage closed (100 = fully closed), Angle is the slat angle in degrees
// (0-180). Nil values are unknown.
type BlindStatus struct {
	Position  *int
	Angle     *int
	RSSI      *int
	Available bool
}

type GatewayClient interface {
	Open() error
	Close() error
	GetInfo() (*GatewayInfo, error)
	Update() (*GatewayStatus, error)
	Blind(mac string) (BlindClient, error)
}

// BlindClient methods block until the gateway acknowledges the request.
type BlindClient interface {
	Mac() string
	Update() (*BlindStatus, error)
	Open() error
	Close() error
	Stop() error
	JogUp() error
	JogDown() error
}
