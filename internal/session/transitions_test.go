package session

import "testing"

func TestNext(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from   ViewState
		t      trigger
		want   ViewState
		wantOK bool
	}{
		{Idle, trExplore, Capturing, true},
		{ListeningForCommand, trExploreDemo, Loading, true},
		{Result, trExplore, Capturing, true},
		{NavigationActive, trExplore, NavigationActive, false},
		{Capturing, trCaptured, Loading, true},
		{Idle, trCaptured, Idle, false},
		{Loading, trAnalyzed, Result, true},
		{ListeningForCommand, trNavigate, PromptingForDestination, true},
		{Settings, trNavigate, Settings, false},
		{PromptingForDestination, trDestinationPrompted, ListeningForDestination, true},
		{ListeningForDestination, trDestination, FetchingDirections, true},
		{FetchingDirections, trRouteFound, AwaitingNavigationConfirmation, true},
		{ListeningForCommand, trRouteFound, ListeningForCommand, false},
		{AwaitingNavigationConfirmation, trConfirm, NavigationActive, true},
		{ListeningForCommand, trTransit, PromptingForTransitDestination, true},
		{PromptingForTransitDestination, trTransitPrompted, ListeningForTransitDestination, true},
		{ListeningForTransitDestination, trTransitDestination, ProcessingTransitSuggestion, true},
		{NavigationActive, trFail, Error, true},
		{Error, trListen, ListeningForCommand, true},
		{Settings, trIdle, Idle, true},
		{NavigationActive, trOpenSettings, Settings, true},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"/"+tt.t.String(), func(t *testing.T) {
			t.Parallel()
			got, ok := next(tt.from, tt.t)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("next(%v, %v) = %v, %v; want %v, %v", tt.from, tt.t, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestTransitionTableCoversTriggers(t *testing.T) {
	t.Parallel()

	for tr := trListen; int(tr) < len(triggerNames); tr++ {
		if _, ok := transitions[tr]; !ok {
			t.Errorf("trigger %v has no transition", tr)
		}
	}
}

func TestViewState(t *testing.T) {
	t.Parallel()

	listening := map[ViewState]bool{
		ListeningForCommand:            true,
		ListeningForDestination:        true,
		ListeningForTransitDestination: true,
		AwaitingNavigationConfirmation: true,
	}
	for v := Idle; v <= NavigationActive; v++ {
		if v.String() == "Unknown" {
			t.Errorf("state %d has no name", int(v))
		}
		if got := v.Listening(); got != listening[v] {
			t.Errorf("%v.Listening() = %v", v, got)
		}
	}
	if got := ViewState(99).String(); got != "Unknown" {
		t.Errorf("String() = %q for out of range state", got)
	}
}
