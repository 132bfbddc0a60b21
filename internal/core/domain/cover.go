package domain

import (
	"fmt"
	"strings"

	"github.com/berfenger/motion2mqtt/pkg/motion_blinds"
)

const (
	COVER_CLASS_AWNING  = "awning"
	COVER_CLASS_BLIND   = "blind"
	COVER_CLASS_CURTAIN = "curtain"
	COVER_CLASS_GATE    = "gate"
	COVER_CLASS_SHADE   = "shade"
	COVER_CLASS_SHUTTER = "shutter"

	// vendor positions at or above this are reported closed on tilt blinds
	TILT_CLOSED_THRESHOLD  = 95
	VENDOR_POSITION_CLOSED = 100
	VENDOR_ANGLE_MAX       = 180
)

type CoverFeature uint

// values match the host's cover feature flags
const (
	COVER_FEATURE_OPEN       CoverFeature = 1
	COVER_FEATURE_CLOSE      CoverFeature = 2
	COVER_FEATURE_STOP       CoverFeature = 8
	COVER_FEATURE_OPEN_TILT  CoverFeature = 16
	COVER_FEATURE_CLOSE_TILT CoverFeature = 32
)

func (f CoverFeature) Has(other CoverFeature) bool {
	return f&other == other
}

var positionCoverClasses = map[motion_blinds.BlindType]string{
	motion_blinds.BlindTypeRollerBlind:    COVER_CLASS_SHADE,
	motion_blinds.BlindTypeRomanBlind:     COVER_CLASS_SHADE,
	motion_blinds.BlindTypeHoneycombBlind: COVER_CLASS_SHADE,
	motion_blinds.BlindTypeDimmingBlind:   COVER_CLASS_SHADE,
	motion_blinds.BlindTypeDayNightBlind:  COVER_CLASS_SHADE,
	motion_blinds.BlindTypeSkylightBlind:  COVER_CLASS_SHADE,
	motion_blinds.BlindTypeInsectScreen:   COVER_CLASS_SHADE,
	motion_blinds.BlindTypeRollerShutter:  COVER_CLASS_SHUTTER,
	motion_blinds.BlindTypeSwitch:         COVER_CLASS_SHUTTER,
	motion_blinds.BlindTypeRollerGate:     COVER_CLASS_GATE,
	motion_blinds.BlindTypeAwning:         COVER_CLASS_AWNING,
	motion_blinds.BlindTypeCurtain:        COVER_CLASS_CURTAIN,
	motion_blinds.BlindTypeCurtainLeft:    COVER_CLASS_CURTAIN,
	motion_blinds.BlindTypeCurtainRight:   COVER_CLASS_CURTAIN,
}

var tiltCoverClasses = map[motion_blinds.BlindType]string{
	motion_blinds.BlindTypeVenetianBlind:  COVER_CLASS_BLIND,
	motion_blinds.BlindTypeShangriLaBlind: COVER_CLASS_SHADE,
	motion_blinds.BlindTypeDoubleRoller:   COVER_CLASS_SHADE,
	motion_blinds.BlindTypeDualShade:      COVER_CLASS_SHADE,
	motion_blinds.BlindTypeVerticalBlind:  COVER_CLASS_BLIND,
	motion_blinds.BlindTypeWoodShutter:    COVER_CLASS_SHUTTER,
}

type CoverVariant int

const (
	CoverVariantPosition CoverVariant = iota
	CoverVariantTilt
	CoverVariantFallback
)

func (v CoverVariant) String() string {
	switch v {
	case CoverVariantPosition:
		return "position"
	case CoverVariantTilt:
		return "tilt"
	default:
		return "fallback"
	}
}

type CoverClassification struct {
	Variant     CoverVariant
	DeviceClass string
}

func (c CoverClassification) HasTilt() bool {
	return c.Variant == CoverVariantTilt
}

// ClassifyBlindType never fails: unknown types are treated as a roller blind
// and reported with CoverVariantFallback so the caller can warn about it.
func ClassifyBlindType(t motion_blinds.BlindType) CoverClassification {
	if class, ok := positionCoverClasses[t]; ok {
		return CoverClassification{Variant: CoverVariantPosition, DeviceClass: class}
	}
	if class, ok := tiltCoverClasses[t]; ok {
		return CoverClassification{Variant: CoverVariantTilt, DeviceClass: class}
	}
	return CoverClassification{
		Variant:     CoverVariantFallback,
		DeviceClass: positionCoverClasses[motion_blinds.BlindTypeRollerBlind],
	}
}

// HostPosition converts the vendor's percentage closed into the published
// percentage open.
func HostPosition(vendorPosition *int) *int {
	if vendorPosition == nil {
		return nil
	}
	p := VENDOR_POSITION_CLOSED - *vendorPosition
	return &p
}

func HostTilt(vendorAngle *int) *int {
	if vendorAngle == nil {
		return nil
	}
	t := *vendorAngle * 100 / VENDOR_ANGLE_MAX
	return &t
}

func IsClosed(vendorPosition *int, tilt bool) *bool {
	if vendorPosition == nil {
		return nil
	}
	var closed bool
	if tilt {
		closed = *vendorPosition >= TILT_CLOSED_THRESHOLD
	} else {
		closed = *vendorPosition == VENDOR_POSITION_CLOSED
	}
	return &closed
}

// IsAvailable requires a snapshot, a reachable gateway and a reachable device.
func IsAvailable(s *Snapshot, mac string) bool {
	if s == nil || !s.GatewayAvailable {
		return false
	}
	d, ok := s.Device(mac)
	return ok && d.Available
}

type CoverEntity struct {
	GatewayId      string
	Mac            string
	DeviceType     motion_blinds.DeviceType
	BlindType      motion_blinds.BlindType
	Classification CoverClassification
}

func NewCoverEntity(gatewayId string, blind motion_blinds.BlindInfo) CoverEntity {
	return CoverEntity{
		GatewayId:      gatewayId,
		Mac:            blind.Mac,
		DeviceType:     blind.DeviceType,
		BlindType:      blind.BlindType,
		Classification: ClassifyBlindType(blind.BlindType),
	}
}

func (c CoverEntity) Id() string {
	return fmt.Sprintf("motion_%s", MacId(c.Mac))
}

func (c CoverEntity) UniqueId() string {
	return c.Mac
}

func (c CoverEntity) HasTilt() bool {
	return c.Classification.HasTilt()
}

func (c CoverEntity) CurrentPosition(s *Snapshot) *int {
	d, ok := s.Device(c.Mac)
	if !ok {
		return nil
	}
	return HostPosition(d.Position)
}

func (c CoverEntity) CurrentTiltPosition(s *Snapshot) *int {
	if !c.HasTilt() {
		return nil
	}
	d, ok := s.Device(c.Mac)
	if !ok {
		return nil
	}
	return HostTilt(d.Angle)
}

func (c CoverEntity) IsClosed(s *Snapshot) *bool {
	d, ok := s.Device(c.Mac)
	if !ok {
		return nil
	}
	return IsClosed(d.Position, c.HasTilt())
}

func (c CoverEntity) Available(s *Snapshot) bool {
	return IsAvailable(s, c.Mac)
}

func (c CoverEntity) SupportedFeatures() CoverFeature {
	f := COVER_FEATURE_OPEN | COVER_FEATURE_CLOSE | COVER_FEATURE_STOP
	if c.HasTilt() {
		f |= COVER_FEATURE_OPEN_TILT | COVER_FEATURE_CLOSE_TILT
	}
	return f
}

func (c CoverEntity) Supports(cmd CoverCommand) bool {
	feature := cmd.Feature()
	return feature != 0 && c.SupportedFeatures().Has(feature)
}

// SignalSensorEntity reports the RSSI of a blind, or of the gateway itself
// when Gateway is set.
type SignalSensorEntity struct {
	GatewayId string
	Mac       string
	Gateway   bool
}

func (e SignalSensorEntity) Id() string {
	return fmt.Sprintf("%s_rssi", MacId(e.Mac))
}

func (e SignalSensorEntity) UniqueId() string {
	return fmt.Sprintf("%s-RSSI", e.Mac)
}

func (e SignalSensorEntity) NativeValue(s *Snapshot) *int {
	if s == nil {
		return nil
	}
	if e.Gateway {
		return s.GatewayRSSI
	}
	d, ok := s.Device(e.Mac)
	if !ok {
		return nil
	}
	return d.RSSI
}

func (e SignalSensorEntity) Available(s *Snapshot) bool {
	if e.Gateway {
		return s != nil && s.GatewayAvailable
	}
	return IsAvailable(s, e.Mac)
}

// GatewayEntities is the fixed set of entities created for a gateway at setup.
type GatewayEntities struct {
	GatewayId string
	Gateway   motion_blinds.GatewayInfo
	Covers    []CoverEntity
	Sensors   []SignalSensorEntity
}

func (g GatewayEntities) Cover(id string) (CoverEntity, bool) {
	for _, c := range g.Covers {
		if c.Id() == id {
			return c, true
		}
	}
	return CoverEntity{}, false
}

func MacId(mac string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(mac) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
