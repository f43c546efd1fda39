package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/iancoleman/strcase"
	"sigs.k8s.io/yaml"
)

// YAMLConfigLoader reads flag values from a YAML document. Keys may be nested and use any
// case: `registry: {url: ...}`, `registryUrl: ...` and `registry-url: ...` all set
// --registry-url.
func YAMLConfigLoader(r io.Reader) (kong.Resolver, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	jsonData, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, fmt.Errorf("convert config to json: %w", err)
	}

	document := map[string]any{}
	if len(strings.TrimSpace(string(jsonData))) > 0 && string(jsonData) != "null" {
		if err := json.Unmarshal(jsonData, &document); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	values := map[string]string{}
	flatten("", document, values)

	return kong.ResolverFunc(func(_ *kong.Context, _ *kong.Path, flag *kong.Flag) (any, error) {
		value, ok := values[configKey(flag.Name)]
		if !ok {
			return nil, nil
		}
		return value, nil
	}), nil
}

func flatten(prefix string, document map[string]any, values map[string]string) {
	for key, value := range document {
		name := configKey(key)
		if prefix != "" {
			name = prefix + "_" + name
		}

		switch typed := value.(type) {
		case map[string]any:
			flatten(name, typed, values)
		case []any:
			items := make([]string, 0, len(typed))
			for _, item := range typed {
				items = append(items, fmt.Sprint(item))
			}
			values[name] = strings.Join(items, ",")
		case nil:
		default:
			values[name] = fmt.Sprint(typed)
		}
	}
}

func configKey(name string) string {
	return strcase.ToSnake(name)
}
