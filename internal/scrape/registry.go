package scrape

// Registry routes a job's platform field to a capture adapter. A paid
// vendor override, when set, serves every platform. Register and
// SetOverride run at composition time; For is safe for concurrent use
// once wiring is done.
type Registry struct {
	override  Scraper
	platforms map[Platform]Scraper
}

func NewRegistry() *Registry {
	return &Registry{platforms: make(map[Platform]Scraper)}
}

func (r *Registry) Register(platform Platform, s Scraper) {
	r.platforms[platform] = s
}

// SetOverride routes every platform to one adapter, regardless of what is
// registered. Used for the paid vendor providers.
func (r *Registry) SetOverride(s Scraper) {
	r.override = s
}

// For resolves the free-form platform field of a job. The second return is
// false only when no override is set and the platform is unknown.
func (r *Registry) For(platform string) (Scraper, bool) {
	if r.override != nil {
		return r.override, true
	}
	p, ok := ParsePlatform(platform)
	if !ok {
		return nil, false
	}
	s, ok := r.platforms[p]
	return s, ok
}
