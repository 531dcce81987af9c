package cmd

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pulsetv/pulsetv/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the effective configuration",
	Long: `Dump the effective configuration values in YAML format.

Redirect the output to a file to create a configuration template:

  pulsetv config dump > config.yaml

Environment variables use the PULSETV_ prefix and underscores for nesting.
Example: api.port -> PULSETV_API_PORT`,
	RunE: runConfigDump,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
}

// toMap converts a config struct to a map, formatting durations and byte
// sizes for human readability.
func toMap(v any) map[string]any {
	result := make(map[string]any)
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		key := fieldType.Tag.Get("mapstructure")
		if key == "" {
			key = strings.ToLower(fieldType.Name)
		}

		switch v := field.Interface().(type) {
		case time.Duration:
			result[key] = v.String()
		case config.ByteSize:
			result[key] = v.String()
		default:
			if field.Kind() == reflect.Struct {
				result[key] = toMap(field.Interface())
			} else {
				result[key] = field.Interface()
			}
		}
	}
	return result
}

func runConfigDump(cmd *cobra.Command, args []string) error {
	yamlData, err := yaml.Marshal(toMap(cfg))
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	fmt.Println("# pulsetv Configuration File")
	fmt.Println("# ==========================")
	fmt.Println("#")
	fmt.Println("# Duration format: 500ms, 30s, 5m")
	fmt.Println("# Size format: 512KB, 4MB")
	fmt.Println("#")
	fmt.Println("# Environment variable overrides use the PULSETV_ prefix:")
	fmt.Println("#   PULSETV_API_HOST, PULSETV_API_PORT")
	fmt.Println("#   PULSETV_LOGGING_LEVEL, PULSETV_LOGGING_FORMAT")
	fmt.Println("#   PULSETV_PLAYBACK_TICK_INTERVAL, PULSETV_PROBE_TIMEOUT")
	fmt.Println("#")
	fmt.Println("")
	fmt.Print(string(yamlData))

	return nil
}
