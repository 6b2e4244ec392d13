package agent

import "context"

// Health is the result of HealthCheck.
type Health struct {
	Status    string   `json:"status"` // "initialized" or "not_initialized"
	Agent     string   `json:"agent"`
	LLM       string   `json:"llm"`    // "connected" or "unreachable"
	Memory    string   `json:"memory"` // "ready" or "not_configured"
	Abilities []string `json:"abilities"`
}

// Healthy reports whether the agent can answer with the model.
func (h Health) Healthy() bool {
	return h.Status == "initialized" && h.LLM == "connected"
}

// Info describes the agent for status endpoints.
type Info struct {
	Name     string `json:"name"`
	Model    string `json:"model"`
	Provider string `json:"provider"`
	Version  string `json:"version"`
}

// HealthCheck checks the model backend and reports the agent's state.
func (a *Agent) HealthCheck(ctx context.Context) Health {
	h := Health{
		Status:    "not_initialized",
		Agent:     a.cfg.Name,
		LLM:       "unreachable",
		Memory:    "not_configured",
		Abilities: a.Abilities(),
	}
	if a.Initialized() {
		h.Status = "initialized"
	}
	if a.llm.CheckConnection(ctx) {
		h.LLM = "connected"
	}
	if a.memory != nil {
		h.Memory = "ready"
	}
	return h
}

// Metadata describes the agent and the model it is bound to.
func (a *Agent) Metadata() Info {
	mi := a.llm.ModelInfo()
	return Info{
		Name:     a.cfg.Name,
		Model:    mi.Model,
		Provider: mi.Provider,
		Version:  Version,
	}
}
