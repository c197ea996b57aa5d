package guardrail_test

import (
	"context"
	"strings"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acgs/agentbus/pkg/guardrail"
)

func compileSchema(t *testing.T, raw string) *jsonschema.Schema {
	t.Helper()
	compiler := jsonschema.NewCompiler()
	require.NoError(t, compiler.AddResource("request.json", strings.NewReader(raw)))
	schema, err := compiler.Compile("request.json")
	require.NoError(t, err)
	return schema
}

func TestSanitizer_SchemaValidation_RejectsMismatch(t *testing.T) {
	schema := compileSchema(t, `{
		"type": "object",
		"required": ["action"],
		"properties": {"action": {"type": "string"}}
	}`)

	sanitizer := guardrail.NewSanitizer(10000)
	req := &guardrail.Request{
		Content:       map[string]any{"action": 123},
		ContentSchema: schema,
	}

	result := sanitizer.Run(context.Background(), req)
	assert.Equal(t, guardrail.ActionBlock, result.Action)
	require.Len(t, result.Violations, 1)
	assert.Equal(t, "schema_validation_failed", result.Violations[0].Rule)
}

func TestSanitizer_SchemaValidation_AllowsMatch(t *testing.T) {
	schema := compileSchema(t, `{
		"type": "object",
		"required": ["action"],
		"properties": {"action": {"type": "string"}}
	}`)

	sanitizer := guardrail.NewSanitizer(10000)
	req := &guardrail.Request{
		Content:       map[string]any{"action": "deploy"},
		ContentSchema: schema,
	}

	result := sanitizer.Run(context.Background(), req)
	assert.Equal(t, guardrail.ActionAllow, result.Action)
}
