// Package hooks lets callers observe the setup, run and destroy lifecycle of
// an unpacked experiment.
package hooks

// SetupEvent describes a target being created from a pack.
type SetupEvent struct {
	Target string
	Pack   string
	Kind   string
}

// RunEvent describes one execution of the selected runs. Status is only
// meaningful for post-run handlers.
type RunEvent struct {
	Target string
	Runs   []int
	Status int
}

// DestroyEvent describes a target being removed.
type DestroyEvent struct {
	Target string
}

// Registry holds lifecycle handlers. Handlers run in registration order and
// the first error stops the chain. A nil Registry has no handlers.
type Registry struct {
	preSetup    []func(SetupEvent) error
	postSetup   []func(SetupEvent) error
	preRun      []func(RunEvent) error
	postRun     []func(RunEvent) error
	preDestroy  []func(DestroyEvent) error
	postDestroy []func(DestroyEvent) error
}

func (r *Registry) OnPreSetup(fn func(SetupEvent) error)    { r.preSetup = append(r.preSetup, fn) }
func (r *Registry) OnPostSetup(fn func(SetupEvent) error)   { r.postSetup = append(r.postSetup, fn) }
func (r *Registry) OnPreRun(fn func(RunEvent) error)        { r.preRun = append(r.preRun, fn) }
func (r *Registry) OnPostRun(fn func(RunEvent) error)       { r.postRun = append(r.postRun, fn) }
func (r *Registry) OnPreDestroy(fn func(DestroyEvent) error) { r.preDestroy = append(r.preDestroy, fn) }
func (r *Registry) OnPostDestroy(fn func(DestroyEvent) error) {
	r.postDestroy = append(r.postDestroy, fn)
}

func fire[E any](handlers []func(E) error, ev E) error {
	for _, h := range handlers {
		if err := h(ev); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) PreSetup(ev SetupEvent) error {
	if r == nil {
		return nil
	}
	return fire(r.preSetup, ev)
}

func (r *Registry) PostSetup(ev SetupEvent) error {
	if r == nil {
		return nil
	}
	return fire(r.postSetup, ev)
}

func (r *Registry) PreRun(ev RunEvent) error {
	if r == nil {
		return nil
	}
	return fire(r.preRun, ev)
}

func (r *Registry) PostRun(ev RunEvent) error {
	if r == nil {
		return nil
	}
	return fire(r.postRun, ev)
}

func (r *Registry) PreDestroy(ev DestroyEvent) error {
	if r == nil {
		return nil
	}
	return fire(r.preDestroy, ev)
}

func (r *Registry) PostDestroy(ev DestroyEvent) error {
	if r == nil {
		return nil
	}
	return fire(r.postDestroy, ev)
}
