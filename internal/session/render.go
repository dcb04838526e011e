package session

import (
	"github.com/urbansense/urbansense/pkg/device"
	"github.com/urbansense/urbansense/pkg/geo"
)

// view builds what the device screen should show for the current state.
func (s *Session) view() device.View {
	v := device.View{
		State:        s.state.String(),
		Listening:    s.rec.Listening(),
		VoiceEnabled: s.settings.VoiceCommandEnabled,
		Calling:      s.calling,
		Position:     s.position,
	}

	switch s.state {
	case Result, ProcessingTransitSuggestion:
		v.Description = s.description
	case Error:
		v.Error = s.errMsg
	case Loading:
		v.Message = "Analyzing your surroundings..."
	case Capturing:
		v.Message = "Capturing..."
	case FetchingDirections:
		v.Message = "Finding a route..."
		v.Destination = s.destination
	}

	if r, ok := s.progress.Route(); ok {
		v.Destination = r.DestinationName
		v.Distance = geo.FormatDistance(float64(r.TotalDistance))
		v.StepIndex = s.progress.Index()
		v.StepCount = s.progress.Len()
	}
	if s.state == NavigationActive {
		v.Instruction = s.instruction
	}
	if !s.settings.PermissionsGranted {
		v.Message = MsgPermissionsRequired
	}
	return v
}

func (s *Session) render() {
	if err := s.dev.Render(s.ctx, s.view()); err != nil {
		s.log.Debug("session: render", "err", err)
	}
}
