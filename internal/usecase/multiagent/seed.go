package multiagent

import (
	"fmt"
	"sort"

	"adjutant/internal/domain"
)

// builtinDescriptors returns the three core record-writing agents. Their
// write sets partition the record kinds: intake owns customer requests,
// the planner owns day plans, the analyst owns strategic insights.
func builtinDescriptors() []domain.AgentDescriptor {
	return []domain.AgentDescriptor{
		{
			Key:       "intake",
			Label:     "Intake",
			Emoji:     "📥",
			Specialty: "classifies inbound customer demand and logs it as structured requests",
			Reads:     []domain.RecordKind{domain.KindCustomerRequest},
			Writes:    []domain.RecordKind{domain.KindCustomerRequest},
			Tools:     []string{"current_date", "list_requests", "backlog_search"},
			Tier:      domain.TierCore,
			Category:  domain.CategoryWork,
		},
		{
			Key:       "planner",
			Label:     "Planner",
			Emoji:     "🗓️",
			Specialty: "turns a morning briefing into a ranked day plan grounded in the open backlog",
			Reads: []domain.RecordKind{
				domain.KindCustomerRequest, domain.KindDayPlan, domain.KindInsight,
			},
			Writes:   []domain.RecordKind{domain.KindDayPlan},
			Tools:    []string{"current_date", "get_plan", "list_requests", "get_insights"},
			Tier:     domain.TierCore,
			Category: domain.CategoryBoth,
		},
		{
			Key:       "analyst",
			Label:     "Analyst",
			Emoji:     "📊",
			Specialty: "mines the request corpus for trends, gaps, risks, and decision points",
			Reads: []domain.RecordKind{
				domain.KindCustomerRequest, domain.KindInsight,
			},
			Writes:   []domain.RecordKind{domain.KindInsight},
			Tools:    []string{"current_date", "list_requests", "backlog_search", "get_insights"},
			Tier:     domain.TierCore,
			Category: domain.CategoryWork,
		},
	}
}

// defaultProfiles are the persona profiles seeded on first boot. They are
// stored as records so users can edit the prompts; the registry re-reads
// them on startup.
func defaultProfiles() []domain.AgentProfile {
	return []domain.AgentProfile{
		{
			Key:         "challenger",
			Label:       "Challenger",
			Emoji:       "⚔️",
			Description: "stress-tests ideas and surfaces the strongest counter-argument",
			SystemPrompt: "You are the challenger. Attack the weakest point of the current idea " +
				"before anything else. Name the assumption most likely to be wrong, say what breaks " +
				"if it is, and propose the cheapest test that would settle it. Be blunt, never rude.",
			Category: domain.CategoryBoth,
		},
		{
			Key:         "writer",
			Label:       "Writer",
			Emoji:       "✍️",
			Description: "drafts and tightens prose: updates, announcements, docs",
			SystemPrompt: "You are the staff writer. Produce clean, direct prose in the voice of a " +
				"senior operator. Prefer short sentences. When asked to draft, give the full draft, " +
				"not an outline. When asked to edit, return the edited text and a one-line summary " +
				"of what changed.",
			Category: domain.CategoryBoth,
		},
		{
			Key:         "researcher",
			Label:       "Researcher",
			Emoji:       "🔎",
			Description: "digs into attached material and the backlog for evidence",
			SystemPrompt: "You are the researcher. Ground every claim in the material you were " +
				"given: attached documents, the request backlog, recorded insights. Quote or cite " +
				"the specific item you rely on. If the evidence is missing, say exactly what is " +
				"missing instead of guessing.",
			Category: domain.CategoryWork,
		},
		{
			Key:         "facilitator",
			Label:       "Facilitator",
			Emoji:       "🧭",
			Description: "keeps discussions on track and summarizes where the group stands",
			SystemPrompt: "You are the facilitator. Open with the single question this discussion " +
				"must answer. Pull quieter threads back in, flag when the group is circling, and " +
				"close with where things stand and the next concrete step.",
			Category: domain.CategoryBoth,
		},
	}
}

// ProfileStore is the slice of the record store the seeder needs.
type ProfileStore interface {
	Profiles() []*domain.AgentProfile
	SaveProfile(p *domain.AgentProfile) (*domain.AgentProfile, error)
	SoftDelete(kind domain.RecordKind, id string) error
}

// Seed registers the builtin agents and syncs persona profiles from the
// record store: missing defaults are created, defaults whose key is no
// longer shipped are soft-deleted, and every surviving profile is
// registered as a persona or custom agent.
func Seed(reg *Registry, store ProfileStore) error {
	for _, d := range builtinDescriptors() {
		if err := reg.Register(d); err != nil {
			return err
		}
	}
	if store == nil {
		return nil
	}

	wanted := make(map[string]domain.AgentProfile)
	for _, p := range defaultProfiles() {
		wanted[p.Key] = p
	}

	existing := store.Profiles()
	byKey := make(map[string]*domain.AgentProfile, len(existing))
	for _, p := range existing {
		if prev, dup := byKey[p.Key]; dup {
			// Two records under one key would race for the same agent slot.
			// Keep the older record, drop the newer duplicate.
			drop := p
			if p.CreatedAt.Before(prev.CreatedAt) {
				drop, byKey[p.Key] = prev, p
			}
			if err := store.SoftDelete(domain.KindAgentProfile, drop.ID); err != nil {
				return fmt.Errorf("drop duplicate profile %q: %w", drop.Key, err)
			}
			continue
		}
		byKey[p.Key] = p
	}

	for key, p := range byKey {
		if _, shipped := wanted[key]; p.IsDefault && !shipped {
			// A default from an older release that we no longer ship.
			if err := store.SoftDelete(domain.KindAgentProfile, p.ID); err != nil {
				return fmt.Errorf("prune stale default profile %q: %w", key, err)
			}
			delete(byKey, key)
		}
	}

	for key, def := range wanted {
		p, ok := byKey[key]
		if !ok {
			created := domain.NewAgentProfile(def.Key, def.Label, def.SystemPrompt)
			created.Emoji = def.Emoji
			created.Description = def.Description
			created.Category = def.Category
			created.IsDefault = true
			saved, err := store.SaveProfile(created)
			if err != nil {
				return fmt.Errorf("seed default profile %q: %w", key, err)
			}
			byKey[key] = saved
			continue
		}
		if p.IsDefault && p.Category != def.Category {
			p.Category = def.Category
			saved, err := store.SaveProfile(p)
			if err != nil {
				return fmt.Errorf("sync default profile %q: %w", key, err)
			}
			byKey[key] = saved
		}
	}

	// Register defaults first so roster order stays stable across boots,
	// then customs by creation time.
	ordered := make([]*domain.AgentProfile, 0, len(byKey))
	for _, def := range defaultProfiles() {
		if p, ok := byKey[def.Key]; ok {
			ordered = append(ordered, p)
			delete(byKey, def.Key)
		}
	}
	rest := make([]*domain.AgentProfile, 0, len(byKey))
	for _, p := range byKey {
		rest = append(rest, p)
	}
	sort.Slice(rest, func(i, j int) bool {
		if rest[i].CreatedAt.Equal(rest[j].CreatedAt) {
			return rest[i].Key < rest[j].Key
		}
		return rest[i].CreatedAt.Before(rest[j].CreatedAt)
	})
	ordered = append(ordered, rest...)

	for _, p := range ordered {
		if err := reg.Register(DescriptorFromProfile(p)); err != nil {
			return fmt.Errorf("register profile %q: %w", p.Key, err)
		}
	}
	return nil
}

// DescriptorFromProfile converts a stored persona profile into a roster
// descriptor. Persona agents read everything and write nothing; their
// tool access is the profile's skill allowlist.
func DescriptorFromProfile(p *domain.AgentProfile) domain.AgentDescriptor {
	tier := domain.TierCustom
	if p.IsDefault {
		tier = domain.TierPersona
	}
	return domain.AgentDescriptor{
		Key:       p.Key,
		Label:     p.Label,
		Emoji:     p.Emoji,
		Specialty: p.Description,
		Persona:   p.SystemPrompt,
		Reads: []domain.RecordKind{
			domain.KindCustomerRequest, domain.KindDayPlan, domain.KindInsight,
		},
		Tools:    p.SkillNames,
		Tier:     tier,
		Category: p.Category,
	}
}
