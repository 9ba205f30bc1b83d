// Package schema loads column descriptors for the datasets the pipeline
// ingests. A descriptor is a JSON or YAML document named after its schema id:
//
//	{
//	  "ColName": {"empid": "INTEGER", "salary": "varchar"},
//	  "NumberOfColumns": 2
//	}
//
// Column order in ColName is significant and preserved.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrNotFound is returned when no descriptor file exists for a schema id.
	ErrNotFound = errors.New("schema not found")

	// ErrMalformed is returned when a descriptor cannot be parsed or is
	// missing required fields.
	ErrMalformed = errors.New("schema malformed")
)

const (
	keyColumns = "ColName"
	keyCount   = "NumberOfColumns"
)

// storeType restricts declared types to what can be spliced into DDL.
var storeType = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_ ]*(\([0-9, ]+\))?$`)

var schemaID = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Column is one entry of a descriptor's ordered column mapping.
type Column struct {
	Name string
	Type string
}

// Descriptor is an immutable column layout for one dataset.
type Descriptor struct {
	ID              string
	Columns         []Column
	NumberOfColumns int
}

// Names returns the column names in declaration order.
func (d *Descriptor) Names() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

// Catalog resolves schema ids to descriptor files in one directory.
type Catalog struct {
	dir string
}

// NewCatalog returns a catalog over dir.
func NewCatalog(dir string) *Catalog {
	return &Catalog{dir: dir}
}

// Load reads the descriptor for id, trying <id>.json, <id>.yaml and <id>.yml
// in that order.
func (c *Catalog) Load(id string) (*Descriptor, error) {
	if !schemaID.MatchString(id) {
		return nil, fmt.Errorf("%w: invalid schema id %q", ErrNotFound, id)
	}

	for _, ext := range []string{".json", ".yaml", ".yml"} {
		path := filepath.Join(c.dir, id+ext)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", path, err)
		}

		var d *Descriptor
		if ext == ".json" {
			d, err = parseJSON(data)
		} else {
			d, err = parseYAML(data)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, filepath.Base(path), err)
		}
		d.ID = id
		if err := d.validate(); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, filepath.Base(path), err)
		}
		return d, nil
	}

	return nil, fmt.Errorf("%w: %q in %s", ErrNotFound, id, c.dir)
}

func (d *Descriptor) validate() error {
	if len(d.Columns) == 0 {
		return fmt.Errorf("%s is empty", keyColumns)
	}
	if d.NumberOfColumns <= 0 {
		return fmt.Errorf("%s must be positive, got %d", keyCount, d.NumberOfColumns)
	}
	if d.NumberOfColumns != len(d.Columns) {
		return fmt.Errorf("%s is %d but %s declares %d columns",
			keyCount, d.NumberOfColumns, keyColumns, len(d.Columns))
	}

	seen := make(map[string]bool, len(d.Columns))
	for _, col := range d.Columns {
		if strings.TrimSpace(col.Name) == "" {
			return errors.New("empty column name")
		}
		key := strings.ToLower(col.Name)
		if seen[key] {
			return fmt.Errorf("duplicate column %q", col.Name)
		}
		seen[key] = true
		if !storeType.MatchString(col.Type) {
			return fmt.Errorf("column %q has invalid type %q", col.Name, col.Type)
		}
	}
	return nil
}

// parseJSON walks ColName with a token decoder so declaration order survives.
func parseJSON(data []byte) (*Descriptor, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, err
	}

	rawCols, ok := top[keyColumns]
	if !ok {
		return nil, fmt.Errorf("missing %s", keyColumns)
	}
	rawCount, ok := top[keyCount]
	if !ok {
		return nil, fmt.Errorf("missing %s", keyCount)
	}

	d := &Descriptor{}
	if err := json.Unmarshal(rawCount, &d.NumberOfColumns); err != nil {
		return nil, fmt.Errorf("%s: %w", keyCount, err)
	}

	dec := json.NewDecoder(bytes.NewReader(rawCols))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("%s must be an object", keyColumns)
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		var typ string
		if err := dec.Decode(&typ); err != nil {
			return nil, fmt.Errorf("%s.%v: type must be a string", keyColumns, keyTok)
		}
		d.Columns = append(d.Columns, Column{Name: keyTok.(string), Type: typ})
	}
	return d, nil
}

func parseYAML(data []byte) (*Descriptor, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, errors.New("document must be a mapping")
	}

	var colsNode, countNode *yaml.Node
	root := doc.Content[0]
	for i := 0; i+1 < len(root.Content); i += 2 {
		switch root.Content[i].Value {
		case keyColumns:
			colsNode = root.Content[i+1]
		case keyCount:
			countNode = root.Content[i+1]
		}
	}
	if colsNode == nil {
		return nil, fmt.Errorf("missing %s", keyColumns)
	}
	if countNode == nil {
		return nil, fmt.Errorf("missing %s", keyCount)
	}
	if colsNode.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%s must be a mapping", keyColumns)
	}

	d := &Descriptor{}
	if err := countNode.Decode(&d.NumberOfColumns); err != nil {
		return nil, fmt.Errorf("%s: %w", keyCount, err)
	}
	for i := 0; i+1 < len(colsNode.Content); i += 2 {
		k, v := colsNode.Content[i], colsNode.Content[i+1]
		if v.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("%s.%s: type must be a string", keyColumns, k.Value)
		}
		d.Columns = append(d.Columns, Column{Name: k.Value, Type: v.Value})
	}
	return d, nil
}
