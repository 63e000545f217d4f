package zcp

import (
	"fmt"
	"sort"
	"strings"
)

// ResolverKind selects how a zone's content is produced.
type ResolverKind uint8

const (
	// ResolveLiteral content is already final text.
	ResolveLiteral ResolverKind = iota
	// ResolveCallback content is rendered from a template and bound resources.
	ResolveCallback
)

func (k ResolverKind) String() string {
	switch k {
	case ResolveLiteral:
		return "literal"
	case ResolveCallback:
		return "callback"
	default:
		return fmt.Sprintf("ResolverKind(%d)", k)
	}
}

// Binding ties one placeholder to the resource that fills it.
type Binding struct {
	Placeholder string
	Resource    Resource
	Args        map[string]any
}

// RenderFunc produces final text from a template and placeholder values.
type RenderFunc func(template string, values map[string]string) (string, error)

// Resolver is the content of a flow-resolved zone. It is either literal
// text or a render function together with the bindings it was built with;
// it is never an opaque closure, so lowering can tell the two apart.
type Resolver struct {
	Kind     ResolverKind
	Text     string
	Bindings []Binding
	Render   RenderFunc
}

// Literal returns a resolver that yields text unchanged.
func Literal(text string) Resolver {
	return Resolver{Kind: ResolveLiteral, Text: text}
}

// Callback returns a resolver that renders template with the given bindings.
// A nil render function means Render.
func Callback(template string, render RenderFunc, bindings ...Binding) Resolver {
	if render == nil {
		render = Render
	}
	bs := append([]Binding(nil), bindings...)
	sort.Slice(bs, func(i, j int) bool { return bs[i].Placeholder < bs[j].Placeholder })
	return Resolver{Kind: ResolveCallback, Text: template, Bindings: bs, Render: render}
}

// Resolve produces the zone's text. Callback resolvers draw each bound
// resource once, in placeholder order.
func (r Resolver) Resolve() (string, error) {
	if r.Kind == ResolveLiteral {
		return r.Text, nil
	}
	values := make(map[string]string, len(r.Bindings))
	for _, b := range r.Bindings {
		if b.Resource == nil {
			return "", fmt.Errorf("placeholder %q: %w", b.Placeholder, ErrUnresolvedPlaceholder)
		}
		v, err := b.Resource.Resolve(b.Args)
		if err != nil {
			return "", fmt.Errorf("placeholder %q: %w", b.Placeholder, err)
		}
		values[b.Placeholder] = v
	}
	render := r.Render
	if render == nil {
		render = Render
	}
	return render(r.Text, values)
}

// Render substitutes {name} placeholders. Doubled braces are literal.
func Render(template string, values map[string]string) (string, error) {
	var sb strings.Builder
	for i := 0; i < len(template); i++ {
		c := template[i]
		switch {
		case c == '{' && i+1 < len(template) && template[i+1] == '{':
			sb.WriteByte('{')
			i++
		case c == '}' && i+1 < len(template) && template[i+1] == '}':
			sb.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(template[i:], '}')
			if end < 0 {
				return "", fmt.Errorf("unterminated placeholder at offset %d", i)
			}
			name := template[i+1 : i+end]
			v, ok := values[name]
			if !ok {
				return "", fmt.Errorf("placeholder %q: %w", name, ErrUnresolvedPlaceholder)
			}
			sb.WriteString(v)
			i += end
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String(), nil
}

// Placeholders lists the distinct placeholder names in a template, in order
// of first appearance.
func Placeholders(template string) ([]string, error) {
	var names []string
	seen := make(map[string]bool)
	for i := 0; i < len(template); i++ {
		c := template[i]
		if (c == '{' || c == '}') && i+1 < len(template) && template[i+1] == c {
			i++
			continue
		}
		if c != '{' {
			continue
		}
		end := strings.IndexByte(template[i:], '}')
		if end < 0 {
			return nil, fmt.Errorf("unterminated placeholder at offset %d", i)
		}
		name := template[i+1 : i+end]
		if name == "" {
			return nil, fmt.Errorf("empty placeholder at offset %d", i)
		}
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
		i += end
	}
	return names, nil
}
