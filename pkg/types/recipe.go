package types

// Recipe is a declarative description of a headless agent run: a prompt,
// the extensions it needs, optional parameters, and an optional
// structured-output contract.
type Recipe struct {
	Version     string `json:"version" yaml:"version"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`

	Instructions string `json:"instructions,omitempty" yaml:"instructions,omitempty"`
	Prompt       string `json:"prompt,omitempty" yaml:"prompt,omitempty"`

	Extensions []ExtensionConfig `json:"extensions,omitempty" yaml:"extensions,omitempty"`
	Parameters []RecipeParameter `json:"parameters,omitempty" yaml:"parameters,omitempty"`

	Settings   *RecipeSettings `json:"settings,omitempty" yaml:"settings,omitempty"`
	Response   *RecipeResponse `json:"response,omitempty" yaml:"response,omitempty"`
	SubRecipes []SubRecipe     `json:"sub_recipes,omitempty" yaml:"sub_recipes,omitempty"`

	Author *RecipeAuthor `json:"author,omitempty" yaml:"author,omitempty"`
}

// RecipeParameter declares one template placeholder the caller must (or
// may) supply a value for before the recipe runs.
type RecipeParameter struct {
	Key         string `json:"key" yaml:"key"`
	InputType   string `json:"input_type,omitempty" yaml:"input_type,omitempty"`
	Requirement string `json:"requirement,omitempty" yaml:"requirement,omitempty"` // "required" | "optional"
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Default     string `json:"default,omitempty" yaml:"default,omitempty"`
}

// Required reports whether the parameter must be supplied by the caller.
func (p RecipeParameter) Required() bool {
	return p.Requirement == "" || p.Requirement == "required"
}

// RecipeSettings tunes the model used for a recipe run.
type RecipeSettings struct {
	GooseProvider string   `json:"goose_provider,omitempty" yaml:"goose_provider,omitempty"`
	GooseModel    string   `json:"goose_model,omitempty" yaml:"goose_model,omitempty"`
	Temperature   *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
}

// RecipeResponse declares the structured final output of a recipe. When
// JSONSchema is set the agent exposes a final_output tool and the loop
// terminates by yielding the stored value.
type RecipeResponse struct {
	JSONSchema map[string]any `json:"json_schema,omitempty" yaml:"json_schema,omitempty"`

	// SuccessChecks are shell commands run after a turn that produced no
	// tool calls; any failure triggers a retry when MaxRetries allows.
	SuccessChecks []string `json:"success_checks,omitempty" yaml:"success_checks,omitempty"`
	MaxRetries    int      `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
}

// SubRecipe registers another recipe as a callable tool of the outer run.
type SubRecipe struct {
	Name        string            `json:"name" yaml:"name"`
	Path        string            `json:"path" yaml:"path"`
	Values      map[string]string `json:"values,omitempty" yaml:"values,omitempty"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
}

// RecipeAuthor credits where a recipe came from.
type RecipeAuthor struct {
	Contact  string `json:"contact,omitempty" yaml:"contact,omitempty"`
	Metadata string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}
