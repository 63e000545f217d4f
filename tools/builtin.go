package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

var builtins = map[string]func(arg string) Func{
	"echo": func(string) Func {
		return func(_ context.Context, in string) (string, error) { return in, nil }
	},
	"upper": func(string) Func {
		return func(_ context.Context, in string) (string, error) { return strings.ToUpper(in), nil }
	},
	"static": func(arg string) Func {
		return func(context.Context, string) (string, error) { return arg, nil }
	},
	"prefix": func(arg string) Func {
		return func(_ context.Context, in string) (string, error) { return arg + in, nil }
	},
	"fail": func(arg string) Func {
		return func(context.Context, string) (string, error) { return "", fmt.Errorf("%s", arg) }
	},
}

// Builtin returns one of the callbacks that can be named from a manifest.
// arg is the static text, prefix or failure message the kind uses.
func Builtin(kind, arg string) (Func, error) {
	mk, ok := builtins[kind]
	if !ok {
		return nil, fmt.Errorf("unknown builtin tool %q (have %s)", kind, strings.Join(BuiltinKinds(), ", "))
	}
	return mk(arg), nil
}

// BuiltinKinds lists the builtin tool kinds, sorted.
func BuiltinKinds() []string {
	kinds := make([]string, 0, len(builtins))
	for k := range builtins {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
