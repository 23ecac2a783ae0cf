package schema

const (
	// AllDirective selects every field of the annotated field's type that can
	// be queried without arguments.
	AllDirective = "all"
	// AllDepthArg bounds how many levels of synthetic selections @all emits.
	AllDepthArg = "depth"
	// AsyncDirective marks a field definition as resolved through the batched
	// async path.
	AsyncDirective = "async"
)

// preludeSDL declares the directives every observer schema understands.
const preludeSDL = `directive @all(depth: Int = 1) on FIELD | QUERY | MUTATION | SUBSCRIPTION
directive @async on FIELD_DEFINITION
`
