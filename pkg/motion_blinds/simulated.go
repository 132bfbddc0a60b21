package motion_blinds

import (
	"fmt"
	"sync"
	"time"
)

const (
	simulatedStep      = 25
	simulatedJogDegree = 18
)

type SimulatedBlind struct {
	Info      BlindInfo
	Position  *int
	Angle     *int
	RSSI      *int
	Available bool
}

// SimulatedGateway is an in-memory gateway. Blinds move towards their target
// by a fixed step on every Update, like a real motor polled mid-travel.
type SimulatedGateway struct {
	mu          sync.Mutex
	info        GatewayInfo
	reachable   bool
	rssi        *int
	blinds      map[string]*simulatedBlindState
	latency     time.Duration
	inFlight    int
	maxInFlight int
	calls       []string
}

type simulatedBlindState struct {
	SimulatedBlind
	target *int
}

type simulatedBlindClient struct {
	gw  *SimulatedGateway
	mac string
}

func NewSimulatedGateway(mac string, deviceType DeviceType, blinds ...SimulatedBlind) *SimulatedGateway {
	gw := &SimulatedGateway{
		info: GatewayInfo{
			Mac:             mac,
			DeviceType:      deviceType,
			FirmwareVersion: "A1.0.1_B0.1.3",
			ProtocolVersion: "0.9",
		},
		reachable: true,
		rssi:      intPtr(-60),
		blinds:    map[string]*simulatedBlindState{},
	}
	for _, b := range blinds {
		gw.info.Blinds = append(gw.info.Blinds, b.Info)
		gw.blinds[b.Info.Mac] = &simulatedBlindState{SimulatedBlind: b}
	}
	return gw
}

// CreateTestGateway returns a gateway with one roller blind, one venetian blind
// and one blind of a type the bridge does not know about.
func CreateTestGateway() *SimulatedGateway {
	return CreateSimulatedGateway(0)
}

// CreateSimulatedGateway builds the test gateway layout with the n-th octet
// of every mac set to n, so several simulated gateways never share devices.
func CreateSimulatedGateway(n uint8) *SimulatedGateway {
	mac := func(last uint8) string {
		return fmt.Sprintf("f0:8a:d2:00:%02x:%02x", n, last)
	}
	return NewSimulatedGateway(mac(0x01), DeviceTypeGateway,
		SimulatedBlind{
			Info:      BlindInfo{Mac: mac(0x11), DeviceType: DeviceTypeBlind, BlindType: BlindTypeRollerBlind},
			Position:  intPtr(30),
			Angle:     intPtr(0),
			RSSI:      intPtr(-71),
			Available: true,
		},
		SimulatedBlind{
			Info:      BlindInfo{Mac: mac(0x12), DeviceType: DeviceTypeBlind, BlindType: BlindTypeVenetianBlind},
			Position:  intPtr(96),
			Angle:     intPtr(90),
			RSSI:      intPtr(-65),
			Available: true,
		},
		SimulatedBlind{
			Info:      BlindInfo{Mac: mac(0x13), DeviceType: DeviceTypeBlind, BlindType: BlindTypeUnknown},
			Available: true,
		},
	)
}

func (gw *SimulatedGateway) SetLatency(d time.Duration) {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	gw.latency = d
}

func (gw *SimulatedGateway) SetReachable(reachable bool) {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	gw.reachable = reachable
}

// MaxInFlight reports the highest number of calls that were executing at the
// same time.
func (gw *SimulatedGateway) MaxInFlight() int {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	return gw.maxInFlight
}

// Calls returns "<mac>:<method>" for every blind command received, in order.
func (gw *SimulatedGateway) Calls() []string {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	return append([]string(nil), gw.calls...)
}

func (gw *SimulatedGateway) Open() error {
	return nil
}

func (gw *SimulatedGateway) Close() error {
	return nil
}

func (gw *SimulatedGateway) GetInfo() (*GatewayInfo, error) {
	defer gw.enter()()
	gw.mu.Lock()
	defer gw.mu.Unlock()
	if !gw.reachable {
		return nil, ErrGatewayUnreachable
	}
	info := gw.info
	info.Blinds = append([]BlindInfo(nil), gw.info.Blinds...)
	return &info, nil
}

func (gw *SimulatedGateway) Update() (*GatewayStatus, error) {
	defer gw.enter()()
	gw.mu.Lock()
	defer gw.mu.Unlock()
	if !gw.reachable {
		return nil, ErrGatewayUnreachable
	}
	return &GatewayStatus{Available: true, RSSI: copyInt(gw.rssi)}, nil
}

func (gw *SimulatedGateway) Blind(mac string) (BlindClient, error) {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	if _, ok := gw.blinds[mac]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBlind, mac)
	}
	return &simulatedBlindClient{gw: gw, mac: mac}, nil
}

func (gw *SimulatedGateway) enter() func() {
	gw.mu.Lock()
	gw.inFlight++
	if gw.inFlight > gw.maxInFlight {
		gw.maxInFlight = gw.inFlight
	}
	latency := gw.latency
	gw.mu.Unlock()

	if latency > 0 {
		time.Sleep(latency)
	}
	return func() {
		gw.mu.Lock()
		gw.inFlight--
		gw.mu.Unlock()
	}
}

func (gw *SimulatedGateway) command(mac, name string, fn func(b *simulatedBlindState)) error {
	defer gw.enter()()
	gw.mu.Lock()
	defer gw.mu.Unlock()
	if !gw.reachable {
		return ErrGatewayUnreachable
	}
	b, ok := gw.blinds[mac]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBlind, mac)
	}
	gw.calls = append(gw.calls, mac+":"+name)
	fn(b)
	return nil
}

func (c *simulatedBlindClient) Mac() string {
	return c.mac
}

func (c *simulatedBlindClient) Update() (*BlindStatus, error) {
	gw := c.gw
	defer gw.enter()()
	gw.mu.Lock()
	defer gw.mu.Unlock()
	if !gw.reachable {
		return nil, ErrGatewayUnreachable
	}
	b, ok := gw.blinds[c.mac]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBlind, c.mac)
	}
	b.move()
	return &BlindStatus{
		Position:  copyInt(b.Position),
		Angle:     copyInt(b.Angle),
		RSSI:      copyInt(b.RSSI),
		Available: b.Available,
	}, nil
}

func (c *simulatedBlindClient) Open() error {
	return c.gw.command(c.mac, "Open", func(b *simulatedBlindState) {
		b.target = intPtr(0)
	})
}

func (c *simulatedBlindClient) Close() error {
	return c.gw.command(c.mac, "Close", func(b *simulatedBlindState) {
		b.target = intPtr(100)
	})
}

func (c *simulatedBlindClient) Stop() error {
	return c.gw.command(c.mac, "Stop", func(b *simulatedBlindState) {
		b.target = nil
	})
}

func (c *simulatedBlindClient) JogUp() error {
	return c.gw.command(c.mac, "JogUp", func(b *simulatedBlindState) {
		b.Angle = intPtr(min(valueOr(b.Angle, 0)+simulatedJogDegree, 180))
	})
}

func (c *simulatedBlindClient) JogDown() error {
	return c.gw.command(c.mac, "JogDown", func(b *simulatedBlindState) {
		b.Angle = intPtr(max(valueOr(b.Angle, 0)-simulatedJogDegree, 0))
	})
}

func (b *simulatedBlindState) move() {
	if b.target == nil {
		return
	}
	current := valueOr(b.Position, 0)
	target := *b.target
	switch {
	case current < target:
		current = min(current+simulatedStep, target)
	case current > target:
		current = max(current-simulatedStep, target)
	}
	b.Position = intPtr(current)
	if current == target {
		b.target = nil
	}
}

func intPtr(v int) *int {
	return &v
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	return intPtr(*v)
}

func valueOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}
