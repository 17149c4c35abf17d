// Package routing decides which generation model and style adapter a
// request runs on, and renders the prompt for it. Everything here is pure.
package routing

import (
	"fmt"
	"strings"
)

// DefaultJob is returned when a style is unknown or defines no jobs.
var DefaultJob = ModelJob{Model: "flux-schnell", UseAdapter: false}

type Route string

const (
	RouteTextureCritical Route = "texture_critical"
	RouteOverride        Route = "complexity_override"
	RoutePrimary         Route = "primary"
	RouteFallback        Route = "fallback"
	RouteDefault         Route = "default"
)

type SubjectSignals struct {
	SubjectCount int
	CloseUp      bool
}

type Decision struct {
	Style string
	Job   ModelJob
	Route Route
}

type Router struct {
	catalog *Catalog
}

func NewRouter(c *Catalog) *Router {
	return &Router{catalog: c}
}

func (r *Router) Catalog() *Catalog {
	if r == nil {
		return nil
	}
	return r.catalog
}

// SelectJob never fails; anything it cannot place gets DefaultJob.
func (r *Router) SelectJob(style string, sig SubjectSignals) ModelJob {
	return r.Decide(style, sig).Job
}

func (r *Router) Decide(style string, sig SubjectSignals) Decision {
	var c *Catalog
	if r != nil {
		c = r.catalog
	}
	p, ok := c.resolve(style)
	if !ok {
		return Decision{Style: NormalizeStyle(style), Job: DefaultJob, Route: RouteDefault}
	}
	d := Decision{Style: p.Key}
	switch {
	case c.textureCritical[p.Key] && p.Primary != nil:
		d.Job, d.Route = *p.Primary, RouteTextureCritical
	case p.Override != nil && isComplex(p, sig):
		d.Job, d.Route = *p.Override, RouteOverride
	case p.Primary != nil:
		d.Job, d.Route = *p.Primary, RoutePrimary
	case len(p.Fallbacks) > 0:
		d.Job, d.Route = p.Fallbacks[0], RouteFallback
	default:
		d.Job, d.Route = DefaultJob, RouteDefault
	}
	return d
}

func isComplex(p StyleProfile, sig SubjectSignals) bool {
	return sig.CloseUp || sig.SubjectCount >= p.OverrideThreshold
}

// AdapterFor looks up an adapter by key.
func (r *Router) AdapterFor(key string) (AdapterConfig, bool) {
	if r == nil || r.catalog == nil {
		return AdapterConfig{}, false
	}
	a, ok := r.catalog.adapters[NormalizeStyle(key)]
	return a, ok
}

// PromptFor renders the style's template for the chosen adapter mode. Empty
// subject or setting drop out of the comma-separated prompt.
func (r *Router) PromptFor(style, subject, setting string, usingAdapter bool) string {
	var (
		p     StyleProfile
		ok    bool
		c     *Catalog
		tmpls PromptTemplates
	)
	if r != nil {
		c = r.catalog
	}
	p, ok = c.resolve(style)
	if ok {
		tmpls = p.Prompts
	}
	if c != nil {
		if tmpls.WithAdapter == "" {
			tmpls.WithAdapter = c.defaultPrompts.WithAdapter
		}
		if tmpls.WithoutAdapter == "" {
			tmpls.WithoutAdapter = c.defaultPrompts.WithoutAdapter
		}
	}

	trigger := ""
	if usingAdapter && ok {
		if a, found := r.AdapterFor(styleAdapterKey(p)); found {
			trigger = a.TriggerToken
		}
	}
	tmpl := tmpls.WithoutAdapter
	if usingAdapter && trigger != "" && tmpls.WithAdapter != "" {
		tmpl = tmpls.WithAdapter
	}
	if tmpl == "" {
		tmpl = "{subject}, {setting}"
	}

	out := strings.NewReplacer(
		"{subject}", strings.TrimSpace(subject),
		"{setting}", strings.TrimSpace(setting),
		"{trigger}", trigger,
	).Replace(tmpl)
	return tidyPrompt(out)
}

// styleAdapterKey is the adapter of the first adapter-backed job in the
// style, checked primary, override, then fallbacks.
func styleAdapterKey(p StyleProfile) string {
	jobs := make([]ModelJob, 0, 2+len(p.Fallbacks))
	if p.Primary != nil {
		jobs = append(jobs, *p.Primary)
	}
	if p.Override != nil {
		jobs = append(jobs, *p.Override)
	}
	jobs = append(jobs, p.Fallbacks...)
	for _, j := range jobs {
		if j.UseAdapter && j.AdapterKey != "" {
			return j.AdapterKey
		}
	}
	return ""
}

func tidyPrompt(s string) string {
	parts := strings.Split(s, ",")
	kept := parts[:0]
	for _, part := range parts {
		part = strings.Join(strings.Fields(part), " ")
		if part != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, ", ")
}

// RoutingReason explains job for style and sig. When job is what Decide
// returns the explanation follows that decision path; otherwise it names the
// slot job occupies in the style.
func (r *Router) RoutingReason(style string, sig SubjectSignals, job ModelJob) string {
	d := r.Decide(style, sig)
	if d.Job == job {
		return r.describe(d, sig)
	}

	var c *Catalog
	if r != nil {
		c = r.catalog
	}
	p, ok := c.resolve(style)
	if !ok {
		return fmt.Sprintf("style %q is not in the catalog; %s was chosen outside the router", style, job)
	}
	switch {
	case p.Primary != nil && job == *p.Primary:
		return r.describe(Decision{Style: p.Key, Job: job, Route: RoutePrimary}, sig)
	case p.Override != nil && job == *p.Override:
		return fmt.Sprintf("%s is the %s override for high-complexity subjects", job, p.Key)
	}
	for _, fb := range p.Fallbacks {
		if job == fb {
			return fmt.Sprintf("%s is a configured fallback for %s", job, p.Key)
		}
	}
	return fmt.Sprintf("%s is not configured for style %s", job, p.Key)
}

func (r *Router) describe(d Decision, sig SubjectSignals) string {
	switch d.Route {
	case RouteTextureCritical:
		return fmt.Sprintf("%s is texture-critical; pinned to %s for brushwork and surface fidelity", d.Style, d.Job)
	case RouteOverride:
		p, _ := r.catalog.resolve(d.Style)
		var why []string
		if sig.SubjectCount >= p.OverrideThreshold {
			why = append(why, fmt.Sprintf("%d people/subjects (threshold %d)", sig.SubjectCount, p.OverrideThreshold))
		}
		if sig.CloseUp {
			why = append(why, "close-up framing")
		}
		return fmt.Sprintf("%s: %s; using %s for complex composition", d.Style, strings.Join(why, " and "), d.Job)
	case RoutePrimary:
		return fmt.Sprintf("%s: standard composition; using primary %s", d.Style, d.Job)
	case RouteFallback:
		return fmt.Sprintf("%s has no primary job; using first fallback %s", d.Style, d.Job)
	default:
		if d.Style == "" {
			return fmt.Sprintf("no style given; default %s", d.Job)
		}
		return fmt.Sprintf("%s has no configured job; default %s", d.Style, d.Job)
	}
}
