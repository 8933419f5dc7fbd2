package recipe

import (
	"fmt"

	"github.com/nikolalohinski/gonja"

	"github.com/goosehq/goose/pkg/types"
)

// Render substitutes parameter values into the recipe's templated string
// fields. Placeholders use double-brace names ({{ name }}). Declared
// required parameters with no supplied value and no default fail with
// ErrMissingParameter.
func Render(recipe *types.Recipe, params map[string]string) (*types.Recipe, error) {
	values := make(map[string]any, len(params))

	for _, p := range recipe.Parameters {
		if v, ok := params[p.Key]; ok {
			values[p.Key] = v
			continue
		}
		if p.Default != "" {
			values[p.Key] = p.Default
			continue
		}
		if p.Required() {
			return nil, &Error{
				Kind: ErrMissingParameter,
				Err:  fmt.Errorf("required parameter %q not supplied", p.Key),
			}
		}
		values[p.Key] = ""
	}
	// Undeclared extras are still usable in templates.
	for k, v := range params {
		if _, ok := values[k]; !ok {
			values[k] = v
		}
	}

	out := *recipe
	var err error
	if out.Prompt, err = renderString(recipe.Prompt, values); err != nil {
		return nil, err
	}
	if out.Instructions, err = renderString(recipe.Instructions, values); err != nil {
		return nil, err
	}
	if out.Description, err = renderString(recipe.Description, values); err != nil {
		return nil, err
	}
	return &out, nil
}

// renderString runs one field through the template engine. Fields with
// no placeholders pass through untouched.
func renderString(s string, values map[string]any) (string, error) {
	if s == "" {
		return "", nil
	}

	tpl, err := gonja.FromString(s)
	if err != nil {
		return "", &Error{Kind: ErrParse, Err: fmt.Errorf("bad template: %w", err)}
	}

	out, err := tpl.Execute(gonja.Context(values))
	if err != nil {
		return "", &Error{Kind: ErrParse, Err: fmt.Errorf("template render failed: %w", err)}
	}
	return out, nil
}
