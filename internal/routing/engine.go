package routing

import (
	"context"
	"errors"

	"webphone/internal/telephony"
)

// NewVoiceRouter adapts the Decision-based RoutingEngine to the provider-facing
// telephony.VoiceRouter, so webhook handlers stay free of business rules.
func NewVoiceRouter(engine *RoutingEngine) telephony.VoiceRouter {
	return voiceRouter{engine: engine}
}

type voiceRouter struct {
	engine *RoutingEngine
}

func (a voiceRouter) RouteVoice(ctx context.Context, req telephony.VoiceRequest) (telephony.Instruction, error) {
	if a.engine == nil {
		return telephony.Instruction{}, errors.New("routing: engine is nil")
	}

	d, err := a.engine.Route(ctx, req)
	if err != nil {
		return telephony.Instruction{}, err
	}

	in := telephony.Instruction{Say: d.Say, Target: d.ConnectTo}
	switch d.Action {
	case ActionReject:
		in.Action = telephony.VoiceActionReject
	case ActionHangup:
		in.Action = telephony.VoiceActionHangup
	case ActionConnectClient:
		in.Action = telephony.VoiceActionConnectClient
	case ActionConnectNumber:
		in.Action = telephony.VoiceActionConnectNumber
	default:
		return telephony.Instruction{}, errors.New("routing: unknown decision action")
	}
	return in, nil
}
