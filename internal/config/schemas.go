package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"

	"github.com/rpattn/trackchanges/internal/domain"
)

// LoadSchemas reads every yaml schema definition in the given directory.
// Each file declares one entity type:
//
//	name: page
//	fields:
//	  - name: name
//	    type: string
//	    unique: true
//	  - name: content
//	    type: html
func LoadSchemas(dir string) ([]domain.Schema, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read schemas directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	schemas := make([]domain.Schema, 0, len(names))
	for _, name := range names {
		schema, err := loadSchemaFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("schema file %s: %w", name, err)
		}
		schemas = append(schemas, schema)
	}
	return schemas, nil
}

type schemaFile struct {
	Name   string `mapstructure:"name"`
	Fields []struct {
		Name                string `mapstructure:"name"`
		Type                string `mapstructure:"type"`
		Required            bool   `mapstructure:"required"`
		Unique              bool   `mapstructure:"unique"`
		Description         string `mapstructure:"description"`
		ReferenceEntityType string `mapstructure:"referenceEntityType"`
	} `mapstructure:"fields"`
}

func loadSchemaFile(path string) (domain.Schema, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return domain.Schema{}, fmt.Errorf("read schema: %w", err)
	}

	var file schemaFile
	if err := v.Unmarshal(&file); err != nil {
		return domain.Schema{}, fmt.Errorf("parse schema: %w", err)
	}
	if strings.TrimSpace(file.Name) == "" {
		return domain.Schema{}, fmt.Errorf("schema is missing a name")
	}

	fields := make([]domain.FieldDefinition, 0, len(file.Fields))
	for _, f := range file.Fields {
		if strings.TrimSpace(f.Name) == "" {
			return domain.Schema{}, fmt.Errorf("schema %q has a field without a name", file.Name)
		}
		fieldType := domain.FieldType(strings.ToLower(strings.TrimSpace(f.Type)))
		if domain.IsAuditField(fieldType) {
			return domain.Schema{}, fmt.Errorf("schema %q declares reserved field type %q", file.Name, fieldType)
		}
		if fieldType == domain.FieldTypeReference && strings.TrimSpace(f.ReferenceEntityType) == "" {
			return domain.Schema{}, fmt.Errorf("reference field %q of %q is missing referenceEntityType", f.Name, file.Name)
		}
		fields = append(fields, domain.FieldDefinition{
			Name:                f.Name,
			Type:                fieldType,
			Required:            f.Required,
			Unique:              f.Unique,
			Description:         f.Description,
			ReferenceEntityType: f.ReferenceEntityType,
		})
	}
	return domain.NewSchema(file.Name, fields), nil
}
