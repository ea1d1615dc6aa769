package synthesis

import (
	"regexp"
	"strings"

	"github.com/resourceburglar/localqa/internal/errcode"
)

// placeholderPattern matches {name} placeholders in a prompt template.
var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// Template is a prompt template with named {placeholder} variables. The set
// of allowed variables is declared separately (comma separated, as stored in
// bot configuration) and checked against the template body at construction.
type Template struct {
	text string
	vars []string
}

// NewTemplate parses a template body against its declared variable list.
// Returns a prompt configuration error when the body references an
// undeclared placeholder.
func NewTemplate(text, declaredVars string) (*Template, error) {
	var vars []string
	for _, v := range strings.Split(declaredVars, ",") {
		if v = strings.TrimSpace(v); v != "" {
			vars = append(vars, v)
		}
	}

	declared := make(map[string]bool, len(vars))
	for _, v := range vars {
		declared[v] = true
	}

	for _, m := range placeholderPattern.FindAllStringSubmatch(text, -1) {
		if !declared[m[1]] {
			return nil, errcode.New(errcode.ErrPromptConfig,
				"template references undeclared variable %q (declared: %s)", m[1], declaredVars)
		}
	}

	return &Template{text: text, vars: vars}, nil
}

// MustTemplate is NewTemplate for compile-time constant templates.
func MustTemplate(text, declaredVars string) *Template {
	t, err := NewTemplate(text, declaredVars)
	if err != nil {
		panic(err)
	}
	return t
}

// Vars returns the declared variable names.
func (t *Template) Vars() []string {
	return t.vars
}

// Has reports whether the template declares the named variable.
func (t *Template) Has(name string) bool {
	for _, v := range t.vars {
		if v == name {
			return true
		}
	}
	return false
}

// Render substitutes every declared variable. All declared variables must be
// supplied; extra keys are a prompt configuration error because they signal a
// mismatch between the bot's declaration and what the caller provides.
func (t *Template) Render(vals map[string]string) (string, error) {
	for k := range vals {
		if !t.Has(k) {
			return "", errcode.New(errcode.ErrPromptConfig,
				"value supplied for undeclared variable %q", k)
		}
	}

	out := t.text
	for _, v := range t.vars {
		val, ok := vals[v]
		if !ok {
			return "", errcode.New(errcode.ErrPromptConfig,
				"no value supplied for declared variable %q", v)
		}
		out = strings.ReplaceAll(out, "{"+v+"}", val)
	}
	return out, nil
}
