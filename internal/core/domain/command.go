package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownCommand     = errors.New("unknown cover command")
	ErrUnsupportedCommand = errors.New("command not supported by cover")
	ErrUnknownEntity      = errors.New("unknown entity")
)

type CoverCommand string

const (
	COVER_COMMAND_OPEN       CoverCommand = "open"
	COVER_COMMAND_CLOSE      CoverCommand = "close"
	COVER_COMMAND_STOP       CoverCommand = "stop"
	COVER_COMMAND_OPEN_TILT  CoverCommand = "open_tilt"
	COVER_COMMAND_CLOSE_TILT CoverCommand = "close_tilt"
)

func ParseCoverCommand(s string) (CoverCommand, error) {
	cmd := CoverCommand(strings.ToLower(strings.TrimSpace(s)))
	switch cmd {
	case COVER_COMMAND_OPEN, COVER_COMMAND_CLOSE, COVER_COMMAND_STOP,
		COVER_COMMAND_OPEN_TILT, COVER_COMMAND_CLOSE_TILT:
		return cmd, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCommand, s)
}

func (c CoverCommand) Feature() CoverFeature {
	switch c {
	case COVER_COMMAND_OPEN:
		return COVER_FEATURE_OPEN
	case COVER_COMMAND_CLOSE:
		return COVER_FEATURE_CLOSE
	case COVER_COMMAND_STOP:
		return COVER_FEATURE_STOP
	case COVER_COMMAND_OPEN_TILT:
		return COVER_FEATURE_OPEN_TILT
	case COVER_COMMAND_CLOSE_TILT:
		return COVER_FEATURE_CLOSE_TILT
	}
	return 0
}

// CoverCommandRequest targets a cover by entity id. Coordinators resolve the
// id and fill in Mac before handing it to the gateway actor.
type CoverCommandRequest struct {
	ActorRequestMixIn
	EntityId string
	Mac      string
	Command  CoverCommand
}

type CoverCommandResponse struct {
	ActorResponseMixIn
	EntityId string
	Command  CoverCommand
}
