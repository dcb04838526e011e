// Package directions defines the Provider interface for walking-route
// backends and the route types consumed by the navigation stepper.
//
// Every Provider implementation must honour the same contract:
//
//   - the free-text destination is normalised with [CleanQuery] before lookup;
//   - geocoding is biased toward the start coordinate;
//   - failures are reported as [*Error] values carrying a message fit to be
//     spoken to the user;
//   - a synthetic arrival step is appended after the backend's own steps
//     (see [AppendArrival]);
//   - TotalDistance is rounded to the nearest meter and DestinationName is
//     the first comma-delimited segment of the place's display name.
package directions

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/urbansense/urbansense/pkg/geo"
)

// DirectionStep is one maneuver of a route.
type DirectionStep struct {
	// Instruction is spoken to the user when the step becomes current.
	Instruction string `json:"instruction"`

	// Location is the maneuver point.
	Location geo.Coordinates `json:"location"`
}

// RouteDetails is a walking route returned by a Provider.
type RouteDetails struct {
	// DestinationName is a short display name of the destination.
	DestinationName string `json:"destinationName"`

	// TotalDistance is the route length in whole meters.
	TotalDistance int `json:"totalDistance"`

	// Steps is never empty for a route returned without error; the last
	// element is the arrival step.
	Steps []DirectionStep `json:"steps"`
}

// Provider is the abstraction over any directions oracle.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// GetDirections geocodes query near start and returns a walking route to
	// the first match.
	GetDirections(ctx context.Context, start geo.Coordinates, query string) (RouteDetails, error)
}

// Locator is implemented by providers that can reverse-geocode a position
// into the name of the surrounding city.
type Locator interface {
	Locality(ctx context.Context, at geo.Coordinates) (string, error)
}

// Sentinel error kinds. Use errors.Is against a returned error.
var (
	ErrEmptyQuery  = errors.New("directions: empty destination query")
	ErrNotFound    = errors.New("directions: destination not found")
	ErrNoRoute     = errors.New("directions: no walking route")
	ErrUnavailable = errors.New("directions: service unavailable")
)

// Error is a directions failure with a user-facing message.
type Error struct {
	// Kind is one of the sentinel errors above.
	Kind error

	// Message is safe to speak to the user.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements error.
func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.Error() + ": " + e.Err.Error()
	}
	return e.Kind.Error()
}

// Unwrap exposes both Kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// User-facing messages for the sentinel kinds.
const (
	MsgEmptyQuery         = "Sorry, I didn't understand the destination. Please try saying it again clearly."
	MsgSearchUnavailable  = "Failed to connect to the location search service."
	MsgRouteUnavailable   = "Failed to connect to the directions service."
	MsgNoRoute            = "No walking routes could be found to the destination."
	msgNotFoundTemplate   = "Sorry, I couldn't find %q near you."
	MsgDirectionsFallback = "Sorry, I couldn't get directions right now. Please try again."
)

// NewEmptyQueryError returns the error for a query that cleans to nothing.
func NewEmptyQueryError() *Error {
	return &Error{Kind: ErrEmptyQuery, Message: MsgEmptyQuery}
}

// NewNotFoundError returns the error for a query with no geocoding match.
func NewNotFoundError(cleaned string) *Error {
	return &Error{Kind: ErrNotFound, Message: fmt.Sprintf(msgNotFoundTemplate, cleaned)}
}

// UserMessage returns the spoken message for err. Errors that are not
// [*Error] values map to [MsgDirectionsFallback].
func UserMessage(err error) string {
	var de *Error
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	return MsgDirectionsFallback
}

var fillerWords = regexp.MustCompile(`(?i)\b(nearest|find me a|find a|find me|navigate to|go to|show me the|show me a|a|an|the)\b`)

var whitespace = regexp.MustCompile(`\s+`)

// CleanQuery strips conversational filler ("find me the nearest", "go to",
// articles) from a spoken destination and collapses whitespace.
//
//	CleanQuery("find me the nearest cafe") == "cafe"
func CleanQuery(query string) string {
	cleaned := fillerWords.ReplaceAllString(query, "")
	return whitespace.ReplaceAllString(strings.TrimSpace(cleaned), " ")
}

// ArrivalInstruction is the text of the synthetic final step.
func ArrivalInstruction(displayName string) string {
	return "You have arrived at your destination: " + displayName + "."
}

// AppendArrival appends the synthetic arrival step located at the last
// backend step. steps must not be empty.
func AppendArrival(steps []DirectionStep, displayName string) []DirectionStep {
	last := steps[len(steps)-1].Location
	return append(steps, DirectionStep{
		Instruction: ArrivalInstruction(displayName),
		Location:    last,
	})
}

// ShortName returns the first comma-delimited segment of a display name.
func ShortName(displayName string) string {
	name, _, _ := strings.Cut(displayName, ",")
	return strings.TrimSpace(name)
}
