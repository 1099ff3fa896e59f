package builder

import (
	"os"
	"path/filepath"

	"github.com/myfstd/gbatis/mapping"
)

// ConfigBuilder drives a bootstrap: load settings, add mapper documents, then
// Build runs the pass-2 fixed point and freezes the catalog.
type ConfigBuilder struct {
	cfg   *mapping.Configuration
	state *State
}

// NewConfigBuilder starts a bootstrap with default settings.
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{cfg: mapping.NewConfiguration(), state: NewState()}
}

// Configuration exposes the catalog under construction, for alias and type
// registration before mappers load.
func (b *ConfigBuilder) Configuration() *mapping.Configuration { return b.cfg }

// AddMapper compiles one mapper document (pass 1 plus eager resolution).
func (b *ConfigBuilder) AddMapper(resource string, data []byte) error {
	return NewMapperBuilder(b.cfg, b.state, resource).Parse(data)
}

// AddMapperFile reads and compiles a mapper document from disk.
func (b *ConfigBuilder) AddMapperFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &ConfigError{Resource: path, Detail: "cannot read mapper", Err: err}
	}
	return b.AddMapper(path, data)
}

// LoadConfigXML applies a <configuration> document: settings, environment,
// and <mappers> entries with paths relative to the document.
func (b *ConfigBuilder) LoadConfigXML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &ConfigError{Resource: path, Detail: "cannot read configuration", Err: err}
	}
	root, err := ParseXML(data)
	if err != nil {
		return &ConfigError{Resource: path, Detail: "malformed configuration", Err: err}
	}
	if root == nil || root.Name != "configuration" {
		return &ConfigError{Resource: path, Detail: "configuration document must be rooted at <configuration>"}
	}
	for _, el := range root.Elements() {
		switch el.Name {
		case "settings":
			for _, s := range el.Elements() {
				if s.Name != "setting" {
					return &ConfigError{Resource: path, Detail: "unexpected <" + s.Name + "> inside <settings>"}
				}
				if err := applySetting(&b.cfg.Settings, s.Attr("name", ""), s.Attr("value", "")); err != nil {
					return &ConfigError{Resource: path, Detail: "bad setting", Err: err}
				}
			}
		case "environment":
			b.cfg.Environment = el.Attr("id", "")
			b.cfg.DatabaseID = el.Attr("databaseId", "")
		case "mappers":
			for _, mEl := range el.Elements() {
				if mEl.Name != "mapper" {
					return &ConfigError{Resource: path, Detail: "unexpected <" + mEl.Name + "> inside <mappers>"}
				}
				res := mEl.Attr("resource", "")
				if res == "" {
					return &ConfigError{Resource: path, Detail: "<mapper> requires a resource"}
				}
				if !filepath.IsAbs(res) {
					res = filepath.Join(filepath.Dir(path), res)
				}
				if err := b.AddMapperFile(res); err != nil {
					return err
				}
			}
		default:
			return &ConfigError{Resource: path, Detail: "unknown configuration element <" + el.Name + ">"}
		}
	}
	return nil
}

// Build drives the pending queue to a fixed point, validates the result, and
// freezes the catalog. Each round must shrink the queue; a steady non-empty
// state is the fatal incomplete set.
func (b *ConfigBuilder) Build() (*mapping.Configuration, error) {
	queue := b.state.pending
	b.state.pending = nil
	for len(queue) > 0 {
		var next []pendingItem
		for _, item := range queue {
			if err := item.try(); err != nil {
				if _, incomplete := err.(*IncompleteElementError); incomplete {
					next = append(next, item)
					continue
				}
				return nil, err
			}
		}
		// items deferred during retries join the next round
		next = append(next, b.state.pending...)
		b.state.pending = nil
		if len(next) >= len(queue) {
			// steady state: nothing resolved this round
			refs := make([]string, len(next))
			for i, item := range next {
				refs[i] = item.ref
			}
			return nil, &UnresolvedError{Refs: refs}
		}
		queue = next
	}
	b.cfg.Freeze()
	return b.cfg, nil
}
