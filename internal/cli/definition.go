package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// definitionFlags — флаги описания задачи, общие для now/at/every.
type definitionFlags struct {
	jobType    string
	data       []string
	attrs      []string
	definition string
}

func (f *definitionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.jobType, "type", "t", "", "Job type")
	cmd.Flags().StringArrayVarP(&f.data, "data", "d", nil, "Job data KEY=VALUE (repeatable)")
	cmd.Flags().StringArrayVarP(&f.attrs, "attr", "a", nil, "Queue attribute KEY=VALUE, e.g. priority=high (repeatable)")
	cmd.Flags().StringVar(&f.definition, "definition", "", "Full job definition as JSON, or @file")
}

// build собирает JSON описания задачи. --definition задаёт основу,
// --type/--data/--attr дописываются поверх.
func (f *definitionFlags) build() (json.RawMessage, error) {
	def := map[string]any{}

	if f.definition != "" {
		raw := []byte(f.definition)
		if path, ok := strings.CutPrefix(f.definition, "@"); ok {
			b, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read definition: %w", err)
			}
			raw = b
		}
		if err := json.Unmarshal(raw, &def); err != nil {
			return nil, fmt.Errorf("parse definition: %w", err)
		}
	}

	if f.jobType != "" {
		def["type"] = f.jobType
	}

	if len(f.data) > 0 {
		data, _ := def["data"].(map[string]any)
		if data == nil {
			data = map[string]any{}
		}
		if err := parseKeyValues(f.data, data); err != nil {
			return nil, fmt.Errorf("--data: %w", err)
		}
		def["data"] = data
	}
	if _, ok := def["data"]; !ok {
		def["data"] = map[string]any{}
	}

	if err := parseKeyValues(f.attrs, def); err != nil {
		return nil, fmt.Errorf("--attr: %w", err)
	}

	if _, ok := def["type"]; !ok {
		return nil, fmt.Errorf("job type is required (--type or --definition)")
	}

	return json.Marshal(def)
}

// parseKeyValues разбирает пары KEY=VALUE в dst. Значение, которое
// разбирается как JSON (число, bool, объект), сохраняется как есть,
// иначе как строка.
func parseKeyValues(pairs []string, dst map[string]any) error {
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return fmt.Errorf("invalid format %q, expected KEY=VALUE", pair)
		}

		var v any
		if err := json.Unmarshal([]byte(value), &v); err != nil {
			v = value
		}
		dst[key] = v
	}
	return nil
}
