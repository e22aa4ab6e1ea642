package routing

import "context"

// Flags are the runtime switches consulted by ModeRouter. They are read once
// at construction; the router never looks up global configuration.
type Flags struct {
	// UseLiveAPIs is the global kill switch. When false every mode is served
	// by the stub without any upstream I/O.
	UseLiveAPIs bool
	// UseTransitAPI enables the public transport provider.
	UseTransitAPI bool
	// UseCarAPI enables the live provider for car routes.
	UseCarAPI bool
}

// Providers are the upstream clients available to a ModeRouter.
// A nil Transit or Street provider behaves as if its flag were off.
type Providers struct {
	Transit Provider
	// Street serves car, pedestrian and bicycle routes.
	Street Provider
	// Stub is the last resort of every chain. Defaults to StubProvider.
	Stub Provider
}

// ModeRouter selects the fallback chain for a query from its travel mode and
// the configured Flags:
//
//	transit              transit -> street(pedestrian) -> stub(pedestrian)
//	transit, API off     street(pedestrian) -> stub(pedestrian)
//	car                  street(car) -> stub(car), stub only when the car API is off
//	pedestrian, bicycle  street(mode) -> stub(mode)
//	unknown              stub, with a warning
type ModeRouter struct {
	providers Providers
	flags     Flags
	opts      options
	chainOpts []Option
}

// NewModeRouter returns a router over providers. The same opts are passed to
// every FallbackChain it builds.
func NewModeRouter(providers Providers, flags Flags, opts ...Option) *ModeRouter {
	if providers.Stub == nil {
		providers.Stub = NewStubProvider()
	}
	return &ModeRouter{
		providers: providers,
		flags:     flags,
		opts:      buildOptions(opts),
		chainOpts: opts,
	}
}

// Flags returns the router's flags.
func (r *ModeRouter) Flags() Flags { return r.flags }

// Route runs the chain selected for q.
func (r *ModeRouter) Route(ctx context.Context, q RouteQuery) (*RouteResult, error) {
	return r.Chain(q).Run(ctx, q)
}

// Chain returns the FallbackChain that Route would run for q.
func (r *ModeRouter) Chain(q RouteQuery) *FallbackChain {
	return NewFallbackChain(r.stages(q), r.chainOpts...)
}

func (r *ModeRouter) stages(q RouteQuery) []Stage {
	mode := q.Options.Mode
	stub := r.providers.Stub

	if !mode.Valid() {
		r.opts.logger("routing: router: unknown travel mode %q for %s, using stub", mode, q)
		return []Stage{{Provider: stub}}
	}
	if !r.flags.UseLiveAPIs {
		return []Stage{{Provider: stub, Mode: mode}}
	}

	street := r.providers.Street
	switch mode {
	case ModeTransit:
		if r.flags.UseTransitAPI && r.providers.Transit != nil {
			return []Stage{
				{Provider: r.providers.Transit, Mode: ModeTransit},
				{Provider: street, Mode: ModePedestrian},
				{Provider: stub, Mode: ModePedestrian},
			}
		}
		return []Stage{
			{Provider: street, Mode: ModePedestrian},
			{Provider: stub, Mode: ModePedestrian},
		}
	case ModeCar:
		if !r.flags.UseCarAPI {
			return []Stage{{Provider: stub, Mode: ModeCar}}
		}
	}
	return []Stage{
		{Provider: street, Mode: mode},
		{Provider: stub, Mode: mode},
	}
}
