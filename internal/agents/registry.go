package agents

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aihub/agentdesk/internal/config"
	"github.com/aihub/agentdesk/internal/domain"
	"github.com/aihub/agentdesk/internal/fastgpt"
	"github.com/aihub/agentdesk/internal/logging"
	"github.com/aihub/agentdesk/internal/store"
)

// ErrNotReady is returned when an agent lacks the credentials to chat.
var ErrNotReady = errors.New("agent not ready")

// ReadyForChat reports whether the agent can send messages. FastGPT agents
// need an API key and an app id; custom agents need an API URL and key.
func ReadyForChat(a domain.Agent) error {
	var missing []string
	switch a.Type {
	case domain.AgentTypeFastGPT, "":
		if strings.TrimSpace(a.APIKey) == "" {
			missing = append(missing, "apiKey")
		}
		if strings.TrimSpace(a.AppID) == "" {
			missing = append(missing, "appId")
		}
	case domain.AgentTypeCustom:
		if strings.TrimSpace(a.APIURL) == "" {
			missing = append(missing, "apiUrl")
		}
		if strings.TrimSpace(a.APIKey) == "" {
			missing = append(missing, "apiKey")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s is missing %s", ErrNotReady, a.ID, strings.Join(missing, ", "))
	}
	return nil
}

// FromConfig builds an agent from a config entry, applying agent defaults.
// Agents from config are published unless they say otherwise.
func FromConfig(e config.AgentEntry, d config.AgentDefaults) domain.Agent {
	a := domain.Agent{
		ID:                  e.ID,
		Name:                e.Name,
		Description:         e.Description,
		Type:                domain.AgentType(e.Type),
		APIURL:              e.APIURL,
		APIKey:              e.APIKey,
		AppID:               e.AppID,
		SystemPrompt:        e.SystemPrompt,
		Model:               e.Model,
		MaxTokens:           e.MaxTokens,
		SupportsFileUpload:  e.FileUpload,
		SupportsImageUpload: e.ImageUpload,
		SupportsStream:      true,
		IsPublished:         true,
		Order:               e.Order,
	}
	if a.Name == "" {
		a.Name = a.ID
	}
	if a.Type == "" {
		a.Type = domain.AgentTypeFastGPT
	}
	if a.Model == "" {
		a.Model = d.Model
	}
	if a.MaxTokens == 0 {
		a.MaxTokens = d.MaxTokens
	}
	switch {
	case e.Temperature != nil:
		a.Temperature = *e.Temperature
	case d.Temperature != nil:
		a.Temperature = *d.Temperature
	}
	if e.Stream != nil {
		a.SupportsStream = *e.Stream
	}
	if e.Published != nil {
		a.IsPublished = *e.Published
	}
	for _, v := range e.Variables {
		gv := domain.GlobalVariable{
			Key:          v.Key,
			Label:        v.Label,
			Type:         domain.VariableType(v.Type),
			Required:     v.Required,
			DefaultValue: v.Default,
			Options:      v.Options,
		}
		if gv.Type == "" {
			gv.Type = domain.VariableText
		}
		if gv.Label == "" {
			gv.Label = v.Key
		}
		if v.Pattern != "" || v.Min != nil || v.Max != nil || v.MaxLength > 0 {
			gv.Validation = &domain.VariableValidation{
				Pattern:   v.Pattern,
				Min:       v.Min,
				Max:       v.Max,
				MaxLength: v.MaxLength,
			}
		}
		a.GlobalVariables = append(a.GlobalVariables, gv)
	}
	return a
}

// Registry resolves agents from the store and tracks the selected agent and
// per-agent variables in preferences.
type Registry struct {
	store   *store.AgentStore
	prefs   *store.Preferences
	fastgpt config.FastGPTConfig
	log     *logging.Logger
}

// NewRegistry creates a registry. fg supplies the API URL and key used by
// agents that do not set their own.
func NewRegistry(st *store.AgentStore, prefs *store.Preferences, fg config.FastGPTConfig, log *logging.Logger) *Registry {
	return &Registry{
		store:   st,
		prefs:   prefs,
		fastgpt: fg,
		log:     log.Sub("agents"),
	}
}

// Seed inserts configured agents that are not stored yet.
func (r *Registry) Seed(cfg config.AgentsConfig) (int, error) {
	list := make([]domain.Agent, 0, len(cfg.List))
	for _, e := range cfg.List {
		list = append(list, FromConfig(e, cfg.Defaults))
	}
	return r.store.Seed(list)
}

// List returns agents in display order, optionally only published ones.
func (r *Registry) List(publishedOnly bool) ([]domain.Agent, error) {
	all, err := r.store.List()
	if err != nil {
		return nil, err
	}
	if !publishedOnly {
		return all, nil
	}
	out := make([]domain.Agent, 0, len(all))
	for _, a := range all {
		if a.IsPublished {
			out = append(out, a)
		}
	}
	return out, nil
}

// Get returns one agent with the default API URL and key applied.
func (r *Registry) Get(id string) (*domain.Agent, error) {
	a, err := r.store.Get(id)
	if err != nil {
		return nil, err
	}
	r.applyDefaults(a)
	return a, nil
}

func (r *Registry) applyDefaults(a *domain.Agent) {
	if a.Type != domain.AgentTypeFastGPT {
		return
	}
	if a.APIURL == "" {
		a.APIURL = r.fastgpt.BaseURL
	}
	if a.APIKey == "" {
		a.APIKey = r.fastgpt.APIKey
	}
}

// Create stores a new agent.
func (r *Registry) Create(a *domain.Agent) error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("agent name is required")
	}
	if err := r.store.Create(a); err != nil {
		return err
	}
	r.log.Info().Str("agent", a.ID).Str("name", a.Name).Msg("agent created")
	return nil
}

// Update replaces a stored agent.
func (r *Registry) Update(a *domain.Agent) error {
	if err := r.store.Update(a); err != nil {
		return err
	}
	r.log.Info().Str("agent", a.ID).Msg("agent updated")
	return nil
}

// Delete removes an agent along with its stored variables. If it was the
// selected agent the selection is cleared.
func (r *Registry) Delete(id string) error {
	if err := r.store.Delete(id); err != nil {
		return err
	}
	if err := r.prefs.Delete(store.AgentVariablesKey(id)); err != nil {
		r.log.Warn().Err(err).Str("agent", id).Msg("clearing agent variables")
	}
	if r.prefs.LoadSelectedAgentID() == id {
		if err := r.prefs.Delete(store.KeySelectedAgent); err != nil {
			r.log.Warn().Err(err).Msg("clearing selected agent")
		}
	}
	r.log.Info().Str("agent", id).Msg("agent deleted")
	return nil
}

// Reorder sets the display order to the order of ids.
func (r *Registry) Reorder(ids []string) error {
	return r.store.Reorder(ids)
}

// SetPublished toggles an agent's visibility to chat users.
func (r *Registry) SetPublished(id string, published bool) error {
	return r.store.SetPublished(id, published)
}

// Select stores id as the selected agent.
func (r *Registry) Select(id string) error {
	if _, err := r.store.Get(id); err != nil {
		return err
	}
	return r.prefs.SaveSelectedAgent(id)
}

// Selected returns the selected agent. When none is stored, or the stored one
// no longer exists, the first published agent is returned.
func (r *Registry) Selected() (*domain.Agent, error) {
	if id := r.prefs.LoadSelectedAgentID(); id != "" {
		a, err := r.Get(id)
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	published, err := r.List(true)
	if err != nil {
		return nil, err
	}
	if len(published) == 0 {
		return nil, store.ErrNotFound
	}
	a := published[0]
	r.applyDefaults(&a)
	return &a, nil
}

// Variables returns the stored variable values for an agent.
func (r *Registry) Variables(id string) map[string]string {
	return r.prefs.LoadAgentVariables(id)
}

// SaveVariables validates values against the agent definition and stores
// them. Invalid values are reported as *VariablesError and nothing is stored.
func (r *Registry) SaveVariables(id string, values map[string]string) (map[string]string, error) {
	a, err := r.store.Get(id)
	if err != nil {
		return nil, err
	}
	clean, issues := ValidateVariables(a.GlobalVariables, values)
	if len(issues) > 0 {
		return nil, &VariablesError{Issues: issues}
	}
	if err := r.prefs.SaveAgentVariables(id, clean); err != nil {
		return nil, err
	}
	return clean, nil
}

// Target returns the FastGPT endpoint and credentials for an agent.
func (r *Registry) Target(a domain.Agent) fastgpt.Target {
	r.applyDefaults(&a)
	return fastgpt.Target{BaseURL: a.APIURL, APIKey: a.APIKey, AppID: a.AppID}
}
