package lowering

import (
	"github.com/smithblack-0/WorkflowForge/zcp"
)

// Bind checks a template against the resources in scope and produces a
// flow-resolved zone with no edges. A template without placeholders binds
// to a literal resolver.
func Bind(t zcp.Template, scope zcp.Resources, tags *zcp.TagSet) (zcp.Zone, error) {
	z := zcp.Zone{
		Provenance:     t.Provenance,
		Next:           zcp.NoNode,
		Jump:           zcp.NoNode,
		AdvanceTrigger: t.AdvanceTrigger,
		Timeout:        t.Timeout,
		Input:          t.Input,
		Output:         t.Output,
		Tool:           t.Tool,
	}

	if tags != nil {
		vec, err := tags.Vector(t.Tags)
		if err != nil {
			return zcp.Zone{}, zcp.Wrap(zcp.ErrUnknownTag, zcp.NoNode, t.Provenance, err, "bind tags")
		}
		z.Tags = vec
	} else if len(t.Tags) > 0 {
		return zcp.Zone{}, zcp.Errorf(zcp.ErrUnknownTag, zcp.NoNode, t.Provenance,
			"zone has tags %v but no tag set is configured", t.Tags)
	}

	names, err := zcp.Placeholders(t.Text)
	if err != nil {
		return zcp.Zone{}, zcp.Wrap(zcp.ErrUnresolvedPlaceholder, zcp.NoNode, t.Provenance, err, "parse template")
	}
	if len(names) == 0 {
		z.Content = zcp.Literal(t.Text)
		return z, nil
	}

	bindings := make([]zcp.Binding, 0, len(names))
	for _, name := range names {
		spec, ok := t.Placeholders[name]
		if !ok {
			spec = zcp.ResourceSpec{Name: name}
		}
		res, ok := scope[spec.Name]
		if !ok {
			return zcp.Zone{}, zcp.Errorf(zcp.ErrUnresolvedPlaceholder, zcp.NoNode, t.Provenance,
				"placeholder %q needs resource %q, which is not in scope", name, spec.Name)
		}
		bindings = append(bindings, zcp.Binding{Placeholder: name, Resource: res, Args: spec.Args})
	}
	z.Content = zcp.Callback(t.Text, nil, bindings...)
	return z, nil
}
