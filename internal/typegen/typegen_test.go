package typegen_test

import (
	"go/parser"
	"go/token"
	"strings"
	"testing"

	errs "github.com/jrsteele09/go-auth-starter/internal/errors"
	"github.com/jrsteele09/go-auth-starter/internal/typegen"
	"github.com/stretchr/testify/require"
)

const schema = `{
  "swagger": "2.0",
  "definitions": {
    "profiles": {
      "required": ["id"],
      "properties": {
        "id": {"format": "uuid", "type": "string", "description": "Note:\nThis is a Primary Key.<pk/>"},
        "updated_at": {"format": "timestamp with time zone", "type": "string"},
        "username": {"format": "text", "type": "string", "description": "Public handle"},
        "avatar_url": {"format": "text", "type": "string"}
      },
      "type": "object"
    },
    "todos": {
      "description": "Things to do",
      "required": ["id", "task", "is_complete", "tags", "meta"],
      "properties": {
        "id": {"format": "bigint", "type": "integer"},
        "task": {"format": "text", "type": "string"},
        "is_complete": {"format": "boolean", "type": "boolean"},
        "tags": {"format": "text[]", "type": "array", "items": {"type": "string"}},
        "meta": {"format": "jsonb"},
        "score": {"format": "numeric", "type": "number"},
        "due_at": {"format": "timestamp without time zone", "type": "string"}
      },
      "type": "object"
    }
  }
}`

// squash collapses gofmt alignment so assertions do not depend on it.
func squash(src []byte) string {
	return strings.Join(strings.Fields(string(src)), " ")
}

func TestGenerate(t *testing.T) {
	src, err := typegen.Generate([]byte(schema), typegen.Options{Package: "dbtypes"})
	require.NoError(t, err)

	_, err = parser.ParseFile(token.NewFileSet(), "types.go", src, parser.AllErrors)
	require.NoError(t, err)

	out := squash(src)
	require.True(t, strings.HasPrefix(out, "// Code generated by gentypes. DO NOT EDIT. package dbtypes"))
	for _, want := range []string{
		`import ( "encoding/json" "time" )`,
		`TableProfiles = "profiles"`,
		`TableTodos = "todos"`,
		"// Profiles is a row of profiles. type Profiles struct {",
		"AvatarURL *string `json:\"avatar_url,omitempty\"`",
		"ID string `json:\"id\"` UpdatedAt",
		"UpdatedAt *time.Time `json:\"updated_at,omitempty\"`",
		"Username *string `json:\"username,omitempty\"` // Public handle",
		"// Todos is a row of todos. Things to do type Todos struct {",
		"ID int64 `json:\"id\"`",
		"DueAt *string `json:\"due_at,omitempty\"`",
		"IsComplete bool `json:\"is_complete\"`",
		"Meta json.RawMessage `json:\"meta\"`",
		"Score *float64 `json:\"score,omitempty\"`",
		"Tags []string `json:\"tags\"`",
		"Task string `json:\"task\"`",
	} {
		require.Contains(t, out, want)
	}
}

func TestGenerateSelectedTables(t *testing.T) {
	src, err := typegen.Generate([]byte(schema), typegen.Options{Tables: []string{"profiles"}})
	require.NoError(t, err)

	out := squash(src)
	require.Contains(t, out, "package dbtypes")
	require.Contains(t, out, "type Profiles struct")
	require.NotContains(t, out, "Todos")
	require.NotContains(t, out, "encoding/json")
}

func TestParseErrors(t *testing.T) {
	_, err := typegen.Parse([]byte(schema), "profiles", "missing")
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.ErrorContains(t, err, "missing")

	_, err = typegen.Parse([]byte(`{"swagger":"2.0","definitions":{}}`))
	require.ErrorIs(t, err, errs.ErrNotFound)

	_, err = typegen.Parse([]byte(`<html>`))
	require.Error(t, err)
}

func TestParseOrdersTablesAndColumns(t *testing.T) {
	tables, err := typegen.Parse([]byte(schema))
	require.NoError(t, err)
	require.Len(t, tables, 2)
	require.Equal(t, "profiles", tables[0].Name)
	require.Equal(t, []string{"avatar_url", "id", "updated_at", "username"}, columnNames(tables[0]))
	require.True(t, tables[0].Columns[0].Nullable)
	require.False(t, tables[0].Columns[1].Nullable)
	require.Empty(t, tables[0].Columns[1].Comment)
}

func columnNames(t typegen.Table) []string {
	names := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		names = append(names, c.Name)
	}
	return names
}

func TestGoName(t *testing.T) {
	tests := map[string]string{
		"profiles":      "Profiles",
		"avatar_url":    "AvatarURL",
		"user_id":       "UserID",
		"is_complete":   "IsComplete",
		"api-keys":      "APIKeys",
		"2fa_codes":     "X2faCodes",
		"":              "X",
		"öffentlich_id": "ÖffentlichID",
	}
	for in, want := range tests {
		require.Equal(t, want, typegen.GoName(in), in)
	}
}
