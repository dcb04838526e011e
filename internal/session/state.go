package session

// ViewState is the screen a session is showing. Exactly one is current at any
// time.
type ViewState int

const (
	Idle ViewState = iota
	ListeningForCommand
	Capturing
	Loading
	Result
	Error
	Settings
	PromptingForDestination
	ListeningForDestination
	PromptingForTransitDestination
	ListeningForTransitDestination
	ProcessingTransitSuggestion
	FetchingDirections
	AwaitingNavigationConfirmation
	NavigationActive
)

var stateNames = [...]string{
	Idle:                           "Idle",
	ListeningForCommand:            "ListeningForCommand",
	Capturing:                      "Capturing",
	Loading:                        "Loading",
	Result:                         "Result",
	Error:                          "Error",
	Settings:                       "Settings",
	PromptingForDestination:        "PromptingForDestination",
	ListeningForDestination:        "ListeningForDestination",
	PromptingForTransitDestination: "PromptingForTransitDestination",
	ListeningForTransitDestination: "ListeningForTransitDestination",
	ProcessingTransitSuggestion:    "ProcessingTransitSuggestion",
	FetchingDirections:             "FetchingDirections",
	AwaitingNavigationConfirmation: "AwaitingNavigationConfirmation",
	NavigationActive:               "NavigationActive",
}

// String returns the state name as rendered to clients.
func (v ViewState) String() string {
	if v < 0 || int(v) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[v]
}

// Listening reports whether the recognizer should run while v is current.
func (v ViewState) Listening() bool {
	switch v {
	case ListeningForCommand, ListeningForDestination,
		ListeningForTransitDestination, AwaitingNavigationConfirmation:
		return true
	}
	return false
}

// navigating reports whether v belongs to the navigation flow, between the
// destination prompt and arrival.
func (v ViewState) navigating() bool {
	switch v {
	case PromptingForDestination, ListeningForDestination, FetchingDirections,
		AwaitingNavigationConfirmation, NavigationActive:
		return true
	}
	return false
}

// exploring reports whether v belongs to the Explore flow, from capture
// until the description has been spoken.
func (v ViewState) exploring() bool {
	switch v {
	case Capturing, Loading, Result:
		return true
	}
	return false
}
