package session

// trigger names an input that may move a session to another [ViewState].
type trigger int

const (
	trListen trigger = iota
	trIdle
	trFail
	trOpenSettings
	trExplore
	trExploreDemo
	trCaptured
	trAnalyzed
	trNavigate
	trDestinationPrompted
	trDestination
	trRouteFound
	trConfirm
	trTransit
	trTransitPrompted
	trTransitDestination
)

var triggerNames = [...]string{
	trListen:              "listen",
	trIdle:                "idle",
	trFail:                "fail",
	trOpenSettings:        "open-settings",
	trExplore:             "explore",
	trExploreDemo:         "explore-demo",
	trCaptured:            "captured",
	trAnalyzed:            "analyzed",
	trNavigate:            "navigate",
	trDestinationPrompted: "destination-prompted",
	trDestination:         "destination",
	trRouteFound:          "route-found",
	trConfirm:             "confirm",
	trTransit:             "transit",
	trTransitPrompted:     "transit-prompted",
	trTransitDestination:  "transit-destination",
}

func (t trigger) String() string {
	if t < 0 || int(t) >= len(triggerNames) {
		return "unknown"
	}
	return triggerNames[t]
}

// edge is one row of the transition table. A nil from list accepts every
// source state.
type edge struct {
	from []ViewState
	to   ViewState
}

// commandStates are the states from which a new flow may be started.
var commandStates = []ViewState{Idle, ListeningForCommand, Result}

var transitions = map[trigger]edge{
	trListen:       {to: ListeningForCommand},
	trIdle:         {to: Idle},
	trFail:         {to: Error},
	trOpenSettings: {to: Settings},

	trExplore:     {from: commandStates, to: Capturing},
	trExploreDemo: {from: commandStates, to: Loading},
	trCaptured:    {from: []ViewState{Capturing}, to: Loading},
	trAnalyzed:    {from: []ViewState{Loading}, to: Result},

	trNavigate:            {from: commandStates, to: PromptingForDestination},
	trDestinationPrompted: {from: []ViewState{PromptingForDestination}, to: ListeningForDestination},
	trDestination:         {from: []ViewState{ListeningForDestination}, to: FetchingDirections},
	trRouteFound:          {from: []ViewState{FetchingDirections}, to: AwaitingNavigationConfirmation},
	trConfirm:             {from: []ViewState{AwaitingNavigationConfirmation}, to: NavigationActive},

	trTransit:            {from: commandStates, to: PromptingForTransitDestination},
	trTransitPrompted:    {from: []ViewState{PromptingForTransitDestination}, to: ListeningForTransitDestination},
	trTransitDestination: {from: []ViewState{ListeningForTransitDestination}, to: ProcessingTransitSuggestion},
}

// next looks up the state reached from from on t. ok is false when the
// table has no such edge.
func next(from ViewState, t trigger) (to ViewState, ok bool) {
	e, found := transitions[t]
	if !found {
		return from, false
	}
	if e.from == nil {
		return e.to, true
	}
	for _, s := range e.from {
		if s == from {
			return e.to, true
		}
	}
	return from, false
}
