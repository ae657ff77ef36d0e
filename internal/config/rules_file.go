package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/spf13/viper"
)

// costCenterEntry is one item of the rules file's cost_centers list.
// A list is used instead of a map because viper lower-cases map keys.
type costCenterEntry struct {
	Dept string `mapstructure:"dept"`
	Code string `mapstructure:"code"`
}

// applyRulesFile overlays pipeline settings from a YAML file. A setting is
// taken from the file only when its environment variable is unset.
//
// Example:
//
//	fix_window: 45s
//	fix_batch_size: 10
//	artifact_format: csv
//	cost_centers:
//	  - dept: Finance
//	    code: "100"
func applyRulesFile(path string, p *PipelineConfig) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read rules file %s: %w", path, err)
	}

	rv := reflect.ValueOf(p).Elem()
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		key := field.Tag.Get("yaml")
		if key == "" || !v.IsSet(key) {
			continue
		}
		if lookupEnv(field.Tag.Get("env"), field.Tag.Get("envAlt")) != "" {
			continue
		}
		value := v.GetString(key)
		if err := setField(rv.Field(i), value); err != nil {
			return fmt.Errorf("invalid value for %s=%q in %s: %w", key, value, path, err)
		}
	}

	if v.IsSet("cost_centers") {
		var entries []costCenterEntry
		if err := v.UnmarshalKey("cost_centers", &entries); err != nil {
			return fmt.Errorf("invalid cost_centers in %s: %w", path, err)
		}
		p.CostCenters = make(map[string]string, len(entries))
		for _, e := range entries {
			dept := strings.TrimSpace(e.Dept)
			if dept == "" {
				return fmt.Errorf("invalid cost_centers in %s: entry without dept", path)
			}
			p.CostCenters[dept] = strings.TrimSpace(e.Code)
		}
	}

	return nil
}
