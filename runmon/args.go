package runmon

import (
	"sort"
	"strings"
)

// Args is a workload's argument list split into named and positional
// arguments.
type Args struct {
	// Named maps keys to values for --key=value arguments. The last occurrence
	// of a key wins.
	Named map[string]string
	// Positional contains every other argument in its original order.
	Positional []string
}

// IsNamedArg returns true if arg looks like --key=value or --multi-word-key=value.
// An argument is named if it contains a '=' and either starts with "--" or has
// a '-' somewhere after its first two characters.
func IsNamedArg(arg string) bool {
	if !strings.Contains(arg, "=") {
		return false
	}

	return strings.HasPrefix(arg, "--") || (len(arg) > 2 && strings.Contains(arg[2:], "-"))
}

// ClassifyArgs splits raw into named and positional arguments. Every argument
// ends up in exactly one of the two.
func ClassifyArgs(raw []string) Args {
	args := Args{
		Named:      make(map[string]string),
		Positional: make([]string, 0, len(raw)),
	}

	for _, arg := range raw {
		if !IsNamedArg(arg) {
			args.Positional = append(args.Positional, arg)
			continue
		}

		// Malformed arguments such as "--=value" give an empty key. They're
		// kept as-is and forwarded as such.
		key, value, _ := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		args.Named[key] = value
	}

	return args
}

// NamedKeys returns the keys of the named arguments in sorted order.
func (args Args) NamedKeys() []string {
	keys := make([]string, 0, len(args.Named))
	for k := range args.Named {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// NamedTokens re-serializes the named arguments as --key=value, sorted by key.
func (args Args) NamedTokens() []string {
	tokens := make([]string, 0, len(args.Named))
	for _, k := range args.NamedKeys() {
		tokens = append(tokens, "--"+k+"="+args.Named[k])
	}
	return tokens
}

// Len returns the total number of arguments.
func (args Args) Len() int {
	return len(args.Named) + len(args.Positional)
}
