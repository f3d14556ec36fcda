package auth

import (
	"fmt"
	"sort"
	"sync"
)

// Spec describe un provider en la configuración: qué fábrica usar, en qué
// posición del tier va, y sus settings crudos.
type Spec struct {
	Kind     string         `yaml:"kind" json:"kind"`
	Sort     int            `yaml:"sort" json:"sort"`
	Settings map[string]any `yaml:"settings" json:"settings"`
}

// Factory construye un provider sin inicializar.
type Factory func() Provider

var (
	factoryMu sync.RWMutex
	factories = map[string]Factory{}
)

// RegisterProviderFactory registra una fábrica bajo un kind de config.
// Kind duplicado es un bug de programación y entra en pánico.
func RegisterProviderFactory(kind string, f Factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	if _, ok := factories[kind]; ok {
		panic(fmt.Sprintf("auth: provider kind %q registrado dos veces", kind))
	}
	factories[kind] = f
}

func lookupFactory(kind string) (Factory, bool) {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	f, ok := factories[kind]
	return f, ok
}

// registry arma y cachea los tres tiers de providers de un Manager. La
// construcción es perezosa: la primera operación que los necesita paga la
// inicialización, y un error de armado queda pegado para siempre.
type registry struct {
	preSpecs       []Spec
	primarySpecs   []Spec
	secondarySpecs []Spec

	once    sync.Once
	initErr error

	pres        []PreProvider
	primaries   []PrimaryProvider
	secondaries []SecondaryProvider
	byID        map[string]Provider

	// forcedPrimaries reemplaza a primarySpecs cuando se fuerzan
	// providers ya construidos (tests, mantenimiento).
	forcedPrimaries []PrimaryProvider
}

func newRegistry(pre, primary, secondary []Spec) *registry {
	return &registry{preSpecs: pre, primarySpecs: primary, secondarySpecs: secondary}
}

// sortSpecs ordena estable por Sort; a igual Sort gana el orden de
// declaración en la config.
func sortSpecs(specs []Spec) []Spec {
	out := make([]Spec, len(specs))
	copy(out, specs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Sort < out[j].Sort })
	return out
}

func (r *registry) buildTier(specs []Spec, deps ProviderDeps) ([]Provider, error) {
	out := make([]Provider, 0, len(specs))
	for _, spec := range sortSpecs(specs) {
		factory, ok := lookupFactory(spec.Kind)
		if !ok {
			return nil, fmt.Errorf("auth: provider kind %q desconocido", spec.Kind)
		}
		p := factory()
		d := deps
		d.Settings = spec.Settings
		if err := p.Init(d); err != nil {
			return nil, fmt.Errorf("auth: init provider %q: %w", spec.Kind, err)
		}
		id := p.UniqueID()
		if _, dup := r.byID[id]; dup {
			return nil, fmt.Errorf("auth: provider id %q duplicado", id)
		}
		r.byID[id] = p
		out = append(out, p)
	}
	return out, nil
}

func (r *registry) build(deps ProviderDeps) error {
	r.once.Do(func() {
		r.byID = map[string]Provider{}

		pres, err := r.buildTier(r.preSpecs, deps)
		if err != nil {
			r.initErr = err
			return
		}
		for _, p := range pres {
			pre, ok := p.(PreProvider)
			if !ok {
				r.initErr = fmt.Errorf("auth: provider %q no es un pre-provider", p.UniqueID())
				return
			}
			r.pres = append(r.pres, pre)
		}

		if r.forcedPrimaries != nil {
			for _, p := range r.forcedPrimaries {
				id := p.UniqueID()
				if _, dup := r.byID[id]; dup {
					r.initErr = fmt.Errorf("auth: provider id %q duplicado", id)
					return
				}
				r.byID[id] = p
			}
			r.primaries = r.forcedPrimaries
		} else {
			primaries, err := r.buildTier(r.primarySpecs, deps)
			if err != nil {
				r.initErr = err
				return
			}
			for _, p := range primaries {
				prim, ok := p.(PrimaryProvider)
				if !ok {
					r.initErr = fmt.Errorf("auth: provider %q no es un primary", p.UniqueID())
					return
				}
				r.primaries = append(r.primaries, prim)
			}
		}

		secondaries, err := r.buildTier(r.secondarySpecs, deps)
		if err != nil {
			r.initErr = err
			return
		}
		for _, p := range secondaries {
			sec, ok := p.(SecondaryProvider)
			if !ok {
				r.initErr = fmt.Errorf("auth: provider %q no es un secondary", p.UniqueID())
				return
			}
			r.secondaries = append(r.secondaries, sec)
		}
	})
	return r.initErr
}

// forcePrimaries reemplaza los primaries antes (o después) de armar. Los
// providers deben venir ya inicializados por el caller.
func (r *registry) forcePrimaries(providers []PrimaryProvider) {
	r.forcedPrimaries = providers
	// Si ya estaba armado, rearmar en el próximo uso.
	r.once = sync.Once{}
	r.initErr = nil
	r.pres = nil
	r.primaries = nil
	r.secondaries = nil
	r.byID = nil
}

// provider busca por id entre todos los tiers ya armados.
func (r *registry) provider(id string) Provider {
	return r.byID[id]
}

// all devuelve pre, primaries y secondaries en ese orden.
func (r *registry) all() []Provider {
	out := make([]Provider, 0, len(r.pres)+len(r.primaries)+len(r.secondaries))
	for _, p := range r.pres {
		out = append(out, p)
	}
	for _, p := range r.primaries {
		out = append(out, p)
	}
	for _, p := range r.secondaries {
		out = append(out, p)
	}
	return out
}

// primaryByID busca un primary por id.
func (r *registry) primaryByID(id string) PrimaryProvider {
	for _, p := range r.primaries {
		if p.UniqueID() == id {
			return p
		}
	}
	return nil
}
