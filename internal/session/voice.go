package session

import (
	"strings"

	"github.com/urbansense/urbansense/internal/command"
	"github.com/urbansense/urbansense/pkg/types"
)

func (s *Session) onRecognition(ev types.RecognitionEvent) {
	switch ev.Kind {
	case types.RecognitionResult:
		s.onTranscript(ev.Transcript)
	case types.RecognitionEnd:
		// The end event can trail a reply that already finished, so the
		// recognizer is reconciled whether or not the utterance was handled.
		if !s.rec.ConsumeEnd() {
			s.log.Debug("session: end of handled utterance", "state", s.state)
		}
		s.reconcile()
		s.render()
	case types.RecognitionError:
		s.onRecognitionError(ev.Error)
	}
}

// onTranscript dispatches a final transcript according to the current
// state. Transcripts that arrive outside a listening state are stale and
// dropped.
func (s *Session) onTranscript(transcript string) {
	if !s.state.Listening() {
		s.log.Debug("session: dropped transcript", "state", s.state)
		return
	}
	s.log.Debug("session: transcript", "state", s.state, "text", transcript)

	switch s.state {
	case ListeningForDestination:
		s.rec.MarkHandled()
		s.destination = strings.TrimSpace(transcript)
		s.transition(trDestination)

	case ListeningForTransitDestination:
		s.rec.MarkHandled()
		s.destination = strings.TrimSpace(transcript)
		s.transition(trTransitDestination)

	case AwaitingNavigationConfirmation:
		s.rec.MarkHandled()
		if command.IsAffirmative(transcript) {
			s.confirmNavigation()
		} else {
			s.rejectNavigation()
		}

	case ListeningForCommand:
		cmd := s.parser.Parse(transcript)
		s.metrics.RecordCommand(s.ctx, cmd.String())
		s.rec.MarkHandled()
		if cmd == command.None {
			s.speak(command.ClarificationPrompt, nil)
			return
		}
		gen, held := s.gen, s.hold
		switch cmd {
		case command.Explore:
			s.startExplore()
		case command.Navigate:
			s.startNavigation()
		case command.Transit:
			s.startTransit()
		case command.SOS:
			s.triggerSOS()
		}
		switch {
		case s.gen != gen, s.hold && !held:
			s.pulse()
		case !s.hold:
			// The command was refused in place; let the end event resume
			// listening.
			s.rec.ResetHandled()
		}
	}
}

func (s *Session) onRecognitionError(code string) {
	action := s.rec.ClassifyError(code)
	s.metrics.RecordRecognitionError(s.ctx, code)
	if action.Ignore {
		s.log.Debug("session: ignored recognition error", "code", code)
		return
	}
	s.log.Warn("session: recognition error", "code", code)
	s.rec.MarkHandled()
	if action.DisableVoice {
		s.disableVoice()
	}
	s.fail(action.Message)
}
