package entities

import (
	"bytes"
	"fmt"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/shepherrrd/gonmigrate/internal/models"
)

// SchemaFile is the YAML form of a desired schema:
//
//	tables:
//	  - name: users
//	    columns:
//	      - {name: id, type: integer, auto_increment: true}
//	      - {name: email, type: string, size: 255}
//	    constraints:
//	      - {kind: primary_key, columns: [id]}
//	renames:
//	  - {table: users, from: mail, to: email}
type SchemaFile struct {
	Tables  []*models.Table `yaml:"tables"`
	Renames []RenameHint    `yaml:"renames,omitempty"`
}

// RenameHint is a rename declared in a schema file. An empty table means
// a table rename.
type RenameHint struct {
	Table string `yaml:"table,omitempty"`
	From  string `yaml:"from"`
	To    string `yaml:"to"`
}

// LoadSchemaFile reads and validates a YAML schema file. Rename hints are
// returned separately for the differ.
func LoadSchemaFile(fs afero.Fs, path string) (*models.Schema, []models.RenameCandidate, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read schema file %s: %w", path, err)
	}

	var file SchemaFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, nil, fmt.Errorf("%w: failed to parse schema file %s: %v", models.ErrInvalidSchema, path, err)
	}

	for _, t := range file.Tables {
		for _, c := range t.Columns {
			if c.Type.Valid() {
				continue
			}
			lt, err := models.ParseLogicalType(string(c.Type))
			if err != nil {
				return nil, nil, fmt.Errorf("%s.%s: %w", t.Name, c.Name, err)
			}
			c.Type = lt
		}
	}

	desired := models.NewSchema(file.Tables...)
	if err := desired.Validate(); err != nil {
		return nil, nil, err
	}

	hints := make([]models.RenameCandidate, 0, len(file.Renames))
	for _, r := range file.Renames {
		hints = append(hints, models.RenameCandidate{Table: r.Table, From: r.From, To: r.To})
	}
	return desired, hints, nil
}

// MarshalSchema renders a schema in the schema file format.
func MarshalSchema(s *models.Schema) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(SchemaFile{Tables: s.Tables}); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
