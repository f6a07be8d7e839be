// Package schema validates tool parameters against per-tool JSON Schemas.
//
// A schema document holds one schema per action, with "*" as the fallback:
//
//	{"actions": {"createIssue": {...}, "*": {...}}}
//
// Documents are looked up first in an optional directory as <tool>.json and
// then among the built-in schemas. Tools without a document are not checked.
package schema

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var builtin embed.FS

type document struct {
	Actions map[string]json.RawMessage `json:"actions"`
}

// ValidationError lists every schema violation of one call.
type ValidationError struct {
	Tool   string
	Action string
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("parameters of %s.%s failed schema validation: %s", e.Tool, e.Action, strings.Join(e.Errors, "; "))
}

// IsValidationError reports whether err is a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validator checks parameters and caches compiled schemas.
type Validator struct {
	dir   string
	cache sync.Map // tool.action -> *gojsonschema.Schema, or nil when unchecked
}

// NewValidator returns a validator reading overrides from dir. An empty dir
// uses only the built-in schemas.
func NewValidator(dir string) *Validator {
	return &Validator{dir: dir}
}

// Validate checks params against the schema for tool and action. It returns
// nil when no schema applies.
func (v *Validator) Validate(tool, action string, params map[string]any) error {
	s, err := v.compiled(tool, action)
	if err != nil {
		return err
	}
	if s == nil {
		return nil
	}
	var doc any = params
	if params == nil {
		doc = map[string]any{}
	}
	result, err := s.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("validate %s.%s: %w", tool, action, err)
	}
	if result.Valid() {
		return nil
	}
	ve := &ValidationError{Tool: tool, Action: action}
	for _, re := range result.Errors() {
		ve.Errors = append(ve.Errors, re.String())
	}
	if len(ve.Errors) == 0 {
		ve.Errors = []string{"schema validation failed"}
	}
	return ve
}

func (v *Validator) compiled(tool, action string) (*gojsonschema.Schema, error) {
	key := tool + "." + action
	if cached, ok := v.cache.Load(key); ok {
		return cached.(*gojsonschema.Schema), nil
	}
	actions, err := v.load(tool)
	if err != nil {
		return nil, err
	}
	raw, ok := actions[action]
	if !ok {
		raw, ok = actions["*"]
	}
	var s *gojsonschema.Schema
	if ok {
		s, err = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			return nil, fmt.Errorf("compile schema for %s: %w", key, err)
		}
	}
	v.cache.Store(key, s)
	return s, nil
}

func (v *Validator) load(tool string) (map[string]json.RawMessage, error) {
	if strings.ContainsAny(tool, `/\`) || tool == ".." {
		return nil, fmt.Errorf("invalid tool name %q", tool)
	}
	name := tool + ".json"
	var data []byte
	var err error
	if v.dir != "" {
		data, err = os.ReadFile(filepath.Join(v.dir, name))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read schema %s: %w", name, err)
		}
	}
	if data == nil {
		data, err = builtin.ReadFile("schemas/" + name)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", name, err)
	}
	return doc.Actions, nil
}

// Tools lists the tools with a built-in schema.
func Tools() []string {
	entries, _ := builtin.ReadDir("schemas")
	var out []string
	for _, e := range entries {
		out = append(out, strings.TrimSuffix(e.Name(), ".json"))
	}
	return out
}
