package zeroclaw

import (
	"fmt"
	"maps"

	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/agent"
	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/template"
)

// Artifacts are the rendered files of one agent workspace.
type Artifacts struct {
	Config    []byte
	Persona   []byte
	Heartbeat []byte

	// Skills are copied verbatim from the template set.
	Skills map[string][]byte
}

// RenderInput is everything that varies between two agents on the same host.
type RenderInput struct {
	Profile      agent.SellerProfile
	Port         int
	WorkspaceDir string
}

// Render produces the workspace artifacts for one seller and validates the runtime config
// by decoding it. The result depends only on its inputs.
func Render(set template.Set, settings Settings, input RenderInput) (Artifacts, error) {
	if err := settings.Validate(); err != nil {
		return Artifacts{}, err
	}

	personaValues := PersonaValues(input.Profile, settings)

	persona, err := template.Render(template.Persona, set.Persona, personaValues)
	if err != nil {
		return Artifacts{}, err
	}

	heartbeat, err := template.Render(template.Heartbeat, set.Heartbeat, personaValues)
	if err != nil {
		return Artifacts{}, err
	}

	configValues := ConfigValues(settings, input.Port, input.WorkspaceDir)

	config, err := template.Render(template.RuntimeConfig, set.RuntimeConfig, configValues)
	if err != nil {
		return Artifacts{}, err
	}

	if settings.MemoryBackend() == MemoryBackendPostgres {
		if set.Storage == "" {
			return Artifacts{}, validationError("storage template required for the %s memory backend", MemoryBackendPostgres)
		}

		storage, err := template.Render(template.Storage, set.Storage, configValues)
		if err != nil {
			return Artifacts{}, err
		}

		config += "\n" + storage
	}

	decoded, err := DecodeConfig([]byte(config))
	if err != nil {
		return Artifacts{}, fmt.Errorf("%w: %w", agent.ErrValidation, err)
	}

	if err := decoded.Validate(); err != nil {
		return Artifacts{}, err
	}

	if decoded.Gateway.Port != input.Port {
		return Artifacts{}, validationError("rendered gateway port %d does not match assigned port %d", decoded.Gateway.Port, input.Port)
	}

	return Artifacts{
		Config:    []byte(config),
		Persona:   []byte(persona),
		Heartbeat: []byte(heartbeat),
		Skills:    maps.Clone(set.Skills),
	}, nil
}
