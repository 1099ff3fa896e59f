package builder

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/myfstd/gbatis/codec"
	"github.com/myfstd/gbatis/mapping"
)

// applySetting applies one named option. Unknown names fail bootstrap.
func applySetting(s *mapping.Settings, name, value string) error {
	switch name {
	case "cacheEnabled":
		return setBool(&s.CacheEnabled, name, value)
	case "lazyLoadingEnabled":
		return setBool(&s.LazyLoadingEnabled, name, value)
	case "aggressiveLazyLoading":
		return setBool(&s.AggressiveLazyLoading, name, value)
	case "multipleResultSetsEnabled":
		return setBool(&s.MultipleResultSetsEnabled, name, value)
	case "useColumnLabel":
		return setBool(&s.UseColumnLabel, name, value)
	case "useGeneratedKeys":
		return setBool(&s.UseGeneratedKeys, name, value)
	case "autoMappingBehavior":
		switch strings.ToUpper(value) {
		case "NONE":
			s.AutoMappingBehavior = mapping.AutoMappingNone
		case "PARTIAL":
			s.AutoMappingBehavior = mapping.AutoMappingPartial
		case "FULL":
			s.AutoMappingBehavior = mapping.AutoMappingFull
		default:
			return fmt.Errorf("bad autoMappingBehavior %q", value)
		}
	case "autoMappingUnknownColumnBehavior":
		switch strings.ToUpper(value) {
		case "NONE":
			s.AutoMappingUnknownColumn = mapping.UnknownColumnNone
		case "WARNING":
			s.AutoMappingUnknownColumn = mapping.UnknownColumnWarning
		case "FAILING":
			s.AutoMappingUnknownColumn = mapping.UnknownColumnFailing
		default:
			return fmt.Errorf("bad autoMappingUnknownColumnBehavior %q", value)
		}
	case "defaultExecutorType":
		switch strings.ToUpper(value) {
		case "SIMPLE":
			s.DefaultExecutorType = mapping.ExecutorSimple
		case "REUSE":
			s.DefaultExecutorType = mapping.ExecutorReuse
		case "BATCH":
			s.DefaultExecutorType = mapping.ExecutorBatch
		default:
			return fmt.Errorf("bad defaultExecutorType %q", value)
		}
	case "defaultStatementTimeout":
		return setInt(&s.DefaultStatementTimeout, name, value)
	case "defaultFetchSize":
		return setInt(&s.DefaultFetchSize, name, value)
	case "mapUnderscoreToCamelCase":
		return setBool(&s.MapUnderscoreToCamelCase, name, value)
	case "safeRowBoundsEnabled":
		return setBool(&s.SafeRowBoundsEnabled, name, value)
	case "localCacheScope":
		switch strings.ToUpper(value) {
		case "SESSION":
			s.LocalCacheScope = mapping.ScopeSession
		case "STATEMENT":
			s.LocalCacheScope = mapping.ScopeStatement
		default:
			return fmt.Errorf("bad localCacheScope %q", value)
		}
	case "jdbcTypeForNull":
		t, err := codec.ParseJdbcType(value)
		if err != nil {
			return err
		}
		s.JdbcTypeForNull = t
	case "lazyLoadTriggerMethods":
		s.LazyLoadTriggerMethods = strings.Split(value, ",")
		for i := range s.LazyLoadTriggerMethods {
			s.LazyLoadTriggerMethods[i] = strings.TrimSpace(s.LazyLoadTriggerMethods[i])
		}
	case "useActualParamName":
		return setBool(&s.UseActualParamName, name, value)
	case "returnInstanceForEmptyRow":
		return setBool(&s.ReturnInstanceForEmptyRow, name, value)
	case "callSettersOnNulls":
		return setBool(&s.CallSettersOnNulls, name, value)
	default:
		return fmt.Errorf("unknown setting %q", name)
	}
	return nil
}

func setBool(dst *bool, name, value string) error {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("bad %s %q", name, value)
	}
	*dst = b
	return nil
}

func setInt(dst *int, name, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("bad %s %q", name, value)
	}
	*dst = n
	return nil
}

// yamlConfig is the YAML form of the configuration document.
type yamlConfig struct {
	Settings    map[string]string `yaml:"settings"`
	Environment string            `yaml:"environment"`
	DatabaseID  string            `yaml:"databaseId"`
	Mappers     []string          `yaml:"mappers"`
}

// LoadConfigYAML applies a YAML configuration document from memory. Mapper
// paths resolve relative to the current directory.
func (b *ConfigBuilder) LoadConfigYAML(data []byte) error {
	var doc yamlConfig
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return &ConfigError{Detail: "malformed YAML configuration", Err: err}
	}
	for name, value := range doc.Settings {
		if err := applySetting(&b.cfg.Settings, name, value); err != nil {
			return &ConfigError{Detail: "bad setting", Err: err}
		}
	}
	b.cfg.Environment = doc.Environment
	b.cfg.DatabaseID = doc.DatabaseID
	for _, res := range doc.Mappers {
		if err := b.AddMapperFile(res); err != nil {
			return err
		}
	}
	return nil
}
