package domain

import (
	"fmt"

	"github.com/berfenger/motion2mqtt/pkg/motion_blinds"
)

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_GATEWAY      = "gateway"
	ACTOR_ID_COORDINATOR  = "coordinator"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
)

func GatewayActorId(gatewayId string) string {
	return fmt.Sprintf("%s_%s", ACTOR_ID_GATEWAY, gatewayId)
}

func CoordinatorActorId(gatewayId string) string {
	return fmt.Sprintf("%s_%s", ACTOR_ID_COORDINATOR, gatewayId)
}

func HADiscoveryActorId(gatewayId string) string {
	return fmt.Sprintf("%s_%s", ACTOR_ID_HA_DISCOVERY, gatewayId)
}

type GetDevicesInfoRequest struct {
	ActorRequestMixIn
}

type GetDevicesInfoResponse struct {
	ActorResponseMixIn
	Gateway *motion_blinds.GatewayInfo
}

type PollGatewayRequest struct {
	ActorRequestMixIn
}

type PollGatewayResponse struct {
	ActorResponseMixIn
	Snapshot *Snapshot
}

// PollTick asks a coordinator to refresh its snapshot.
type PollTick struct {
}

// GatewayReadyEvent is sent by a coordinator to its parent once the gateway
// entities are set up.
type GatewayReadyEvent struct {
	Coordinator *ActorRef
	Entities    GatewayEntities
}

type GetCoverStatesRequest struct {
	ActorRequestMixIn
}

type GetCoverStatesResponse struct {
	ActorResponseMixIn
	Covers []CoverStateUpdateEvent
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors        []GenericSensor
	Covers         []GenericCover
	RemovedDevices []KnownDevice
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
