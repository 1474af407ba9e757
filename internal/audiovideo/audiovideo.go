// Package audiovideo implements the Firefly Audio/Video family: speech,
// avatars, reframing, transcription and dubbing, plus the voice and avatar
// catalogues. The family has no cancellation endpoint.
package audiovideo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/maauso/firefly-jobs/internal/jobs"
	"github.com/maauso/firefly-jobs/internal/provider"
)

// DefaultBaseURL is the Audio/Video API endpoint.
const DefaultBaseURL = "https://audio-video-api.adobe.io/v1"

// Operation names.
const (
	OpGenerateSpeech = "generate-speech"
	OpGenerateAvatar = "generate-avatar"
	OpReframeVideo   = "reframe-video"
	OpTranscribe     = "transcribe"
	OpDub            = "dub"
)

// Provider is the Audio/Video family provider.
type Provider struct {
	*provider.HTTP
}

// New creates an Audio/Video provider against baseURL.
func New(baseURL string, client *jobs.Client) (*Provider, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	p, err := provider.NewHTTP(provider.Definition{
		Family:  provider.FamilyAudioVideo,
		BaseURL: baseURL,
		Operations: []provider.Operation{
			{Name: OpGenerateSpeech, Path: "/generate-speech"},
			{Name: OpGenerateAvatar, Path: "/generate-avatar"},
			{Name: OpReframeVideo, Path: "/reframe"},
			{Name: OpTranscribe, Path: "/transcribe"},
			{Name: OpDub, Path: "/dub"},
		},
		Decode: jobs.DecodeHandle(jobs.HandleFields{
			ID:        []string{"jobId", "jobID"},
			StatusURL: []string{"statusUrl"},
		}),
		StatusPath: func(id string) string { return "/status/" + id },
	}, client)
	if err != nil {
		return nil, err
	}
	return &Provider{HTTP: p}, nil
}

// Voice is a text-to-speech voice.
type Voice struct {
	VoiceID     string `json:"voiceId"`
	DisplayName string `json:"displayName"`
	Gender      string `json:"gender"`
	Style       string `json:"style,omitempty"`
	VoiceType   string `json:"voiceType,omitempty"`
	Status      string `json:"status"`
	SampleURL   string `json:"sampleURL,omitempty"`
}

// Avatar is a presenter available to generate-avatar.
type Avatar struct {
	AvatarID      string `json:"avatarId"`
	DisplayName   string `json:"displayName"`
	Gender        string `json:"gender"`
	ClothingStyle string `json:"clothingStyle,omitempty"`
	AgeGroup      string `json:"ageGroup,omitempty"`
	Style         string `json:"style,omitempty"`
	Status        string `json:"status"`
	VoiceID       string `json:"voiceId,omitempty"`
}

// Voices lists the available voices.
func (p *Provider) Voices(ctx context.Context) ([]Voice, error) {
	var resp struct {
		Voices []Voice `json:"voices"`
	}
	if err := p.get(ctx, "/voices", &resp); err != nil {
		return nil, err
	}
	return resp.Voices, nil
}

// Avatars lists the available avatars.
func (p *Provider) Avatars(ctx context.Context) ([]Avatar, error) {
	var resp struct {
		Avatars []Avatar `json:"avatars"`
	}
	if err := p.get(ctx, "/avatars", &resp); err != nil {
		return nil, err
	}
	return resp.Avatars, nil
}

func (p *Provider) get(ctx context.Context, path string, out any) error {
	body, err := p.Client().Do(ctx, jobs.Request{Method: http.MethodGet, URL: p.URL(path)})
	if err != nil {
		return fmt.Errorf("audiovideo %s: %w", path, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &jobs.MalformedResponseError{Reason: fmt.Sprintf("decode %s: %v", path, err), Body: string(body)}
	}
	return nil
}
