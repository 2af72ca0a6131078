package continuity

import "strings"

// storyModel is the union of every completed extraction for a document.
// Characters, locations and plot threads are keyed by normalized name and
// merged across chapters; events, rules and relationships keep every
// extracted entry. Nothing is ever removed.
type storyModel struct {
	characters    map[string]*Character
	locations     map[string]*Location
	threads       map[string]*PlotThread
	events        []TimelineEvent
	rules         []WorldRule
	relationships []Relationship
	// first-seen order of each map's keys
	order map[string][]string
}

func newStoryModel() *storyModel {
	return &storyModel{
		characters:    make(map[string]*Character),
		locations:     make(map[string]*Location),
		threads:       make(map[string]*PlotThread),
		order:         make(map[string][]string),
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func (m *storyModel) seen(kind, key string) {
	m.order[kind] = append(m.order[kind], key)
}

func (m *storyModel) add(ex Extraction) {
	for _, c := range ex.Characters {
		key := normalize(c.Name)
		if key == "" {
			continue
		}
		cur, ok := m.characters[key]
		if !ok {
			cur = &Character{Name: strings.TrimSpace(c.Name)}
			m.characters[key] = cur
			m.seen("characters", key)
		}
		cur.Traits = unionStrings(cur.Traits, c.Traits)
		cur.Attributes = mergeAttrs(cur.Attributes, c.Attributes)
	}

	for _, l := range ex.Locations {
		key := normalize(l.Name)
		if key == "" {
			continue
		}
		cur, ok := m.locations[key]
		if !ok {
			cur = &Location{Name: strings.TrimSpace(l.Name)}
			m.locations[key] = cur
			m.seen("locations", key)
		}
		cur.Attributes = mergeAttrs(cur.Attributes, l.Attributes)
	}

	for _, e := range ex.TimelineEvents {
		if normalize(e.Description) != "" {
			m.events = append(m.events, e)
		}
	}

	for _, t := range ex.PlotThreads {
		key := normalize(t.Description)
		if key == "" {
			continue
		}
		status := normalizeThreadStatus(t.Status)
		cur, ok := m.threads[key]
		if !ok {
			m.threads[key] = &PlotThread{Description: strings.TrimSpace(t.Description), Status: status}
			m.seen("threads", key)
			continue
		}
		cur.Status = status
	}

	for _, r := range ex.WorldRules {
		if normalize(r.Rule) != "" {
			m.rules = append(m.rules, r)
		}
	}

	for _, r := range ex.Relationships {
		if normalize(r.A) != "" && normalize(r.B) != "" {
			m.relationships = append(m.relationships, r)
		}
	}
}

func (m *storyModel) hasCharacter(name string) bool {
	_, ok := m.characters[normalize(name)]
	return ok
}

func (m *storyModel) hasLocation(name string) bool {
	_, ok := m.locations[normalize(name)]
	return ok
}

func (m *storyModel) hasThread(desc string) bool {
	_, ok := m.threads[normalize(desc)]
	return ok
}

func (m *storyModel) summary(documentID string, chapters int) Summary {
	s := Summary{
		DocumentID:         documentID,
		Chapters:           chapters,
		Characters:         []string{},
		Locations:          []string{},
		ActiveThreads:      []string{},
		CharactersCount:    len(m.characters),
		LocationsCount:     len(m.locations),
		TimelineEvents:     len(m.events),
		PlotThreads:        len(m.threads),
		WorldRules:         len(m.rules),
		RelationshipsCount: len(m.relationships),
	}
	for _, key := range m.order["characters"] {
		s.Characters = append(s.Characters, m.characters[key].Name)
	}
	for _, key := range m.order["locations"] {
		s.Locations = append(s.Locations, m.locations[key].Name)
	}
	for _, key := range m.order["threads"] {
		if t := m.threads[key]; t.Status != ThreadResolved {
			s.ActiveThreads = append(s.ActiveThreads, t.Description)
		}
	}
	s.ActivePlotThreads = len(s.ActiveThreads)
	return s
}

func normalizeThreadStatus(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case ThreadOngoing:
		return ThreadOngoing
	case ThreadResolved:
		return ThreadResolved
	default:
		return ThreadIntroduced
	}
}

func unionStrings(dst, src []string) []string {
	have := make(map[string]bool, len(dst))
	for _, s := range dst {
		have[normalize(s)] = true
	}
	for _, s := range src {
		key := normalize(s)
		if key == "" || have[key] {
			continue
		}
		have[key] = true
		dst = append(dst, strings.TrimSpace(s))
	}
	return dst
}

// mergeAttrs adds src keys to dst. Later values overwrite earlier ones.
func mergeAttrs(dst, src map[string]string) map[string]string {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]string, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// snapshot renders the model back into extraction form, in first-seen order.
func (m *storyModel) snapshot() Extraction {
	var ex Extraction
	for _, key := range m.order["characters"] {
		ex.Characters = append(ex.Characters, *m.characters[key])
	}
	for _, key := range m.order["locations"] {
		ex.Locations = append(ex.Locations, *m.locations[key])
	}
	for _, key := range m.order["threads"] {
		ex.PlotThreads = append(ex.PlotThreads, *m.threads[key])
	}
	ex.TimelineEvents = m.events
	ex.WorldRules = m.rules
	ex.Relationships = m.relationships
	return ex
}
