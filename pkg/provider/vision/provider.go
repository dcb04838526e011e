// Package vision defines the Provider interface for scene-description and
// navigational-guidance backends.
//
// A vision provider wraps a multimodal model (Gemini, an OpenAI-compatible
// endpoint, IBM watsonx) and answers two questions about a single camera
// frame: what is around the user, and how a raw turn-by-turn instruction
// should be phrased given what the camera sees.
//
// Implementations must be safe for concurrent use.
package vision

import (
	"context"
	"errors"
	"strings"

	"github.com/urbansense/urbansense/pkg/types"
)

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-2.5-flash"

// ErrEmptyResponse is returned when a backend answers without any text.
var ErrEmptyResponse = errors.New("vision: empty response")

// AnalysisFailedMessage is spoken when scene analysis fails.
const AnalysisFailedMessage = "I'm sorry, I encountered an error while analyzing the image. Please try again."

// Provider is the abstraction over any scene/guidance oracle.
type Provider interface {
	// AnalyzeImage returns a short (2–3 sentence) spatial description of img,
	// spoken directly to the user.
	AnalyzeImage(ctx context.Context, img types.Image) (string, error)

	// GenerateNavigationalGuidance combines instruction with safety-relevant
	// details visible in img and returns a single direct command. Callers fall
	// back to instruction unchanged when an error is returned.
	GenerateNavigationalGuidance(ctx context.Context, img types.Image, instruction string) (string, error)
}

// Prompts bundles the instructions sent to a vision backend.
type Prompts struct {
	// System is the system instruction attached to every request.
	System string

	// Explore is the user prompt for [Provider.AnalyzeImage].
	Explore string

	// Navigation is the prompt template for
	// [Provider.GenerateNavigationalGuidance]; "{instruction}" is replaced with
	// the raw step instruction.
	Navigation string
}

// DefaultPrompts returns the prompts tuned for visually impaired users.
func DefaultPrompts() Prompts {
	return Prompts{
		System: "You are UrbanSense, an assistant for visually impaired users. You speak directly to the user. " +
			"Your description must be concise, clear, and limited to 2-3 sentences. Do not use markdown or formatting.",
		Explore: "Describe the scene in this image with spatial context. Focus on key objects, their positions " +
			"(e.g., 'on your left', 'in front of you', 'to the right'), and their approximate distances in meters " +
			"(e.g., 'about 5 meters away').",
		Navigation: "You are a navigation assistant for a visually impaired user. Your PRIMARY task is to provide a clear, " +
			"direct, and safe instruction based on the turn-by-turn data. The core instruction is: \"{instruction}\". " +
			"Use the real-time image ONLY to enhance this instruction with critical safety information, such as obstacles " +
			"(curbs, poles, people, bikes) or safe paths (a clear footpath on the right). Be concise. Do NOT just describe " +
			"the scene. Your response MUST be a direct command.",
	}
}

// NavigationPrompt fills the navigation template with instruction.
func (p Prompts) NavigationPrompt(instruction string) string {
	return strings.Replace(p.Navigation, "{instruction}", instruction, 1)
}

// WithDefaults returns p with empty fields filled from [DefaultPrompts].
func (p Prompts) WithDefaults() Prompts {
	d := DefaultPrompts()
	if p.System == "" {
		p.System = d.System
	}
	if p.Explore == "" {
		p.Explore = d.Explore
	}
	if p.Navigation == "" {
		p.Navigation = d.Navigation
	}
	return p
}

// CleanText trims model output and rejects empty answers with
// [ErrEmptyResponse].
func CleanText(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrEmptyResponse
	}
	return s, nil
}
