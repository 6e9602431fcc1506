package handler

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"

	"roofpro-hub/internal/database/models"
	"roofpro-hub/internal/permissions"
)

//go:embed sop_catalog.yaml
var defaultCatalog []byte

var sopNumberPattern = regexp.MustCompile(`^SOP-\d{3}$`)

type Catalog struct {
	Version int          `yaml:"version"`
	SOPs    []CatalogSOP `yaml:"sops"`
}

type CatalogSOP struct {
	Number        string   `yaml:"number"`
	Title         string   `yaml:"title"`
	Summary       string   `yaml:"summary"`
	BodyURL       string   `yaml:"body_url"`
	RequiredRoles []string `yaml:"required_roles"`
}

func ParseCatalog(b []byte) (Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(b, &c); err != nil {
		return Catalog{}, err
	}
	if c.Version != 1 {
		return Catalog{}, errors.New("sop catalog: unsupported version")
	}
	seen := make(map[string]bool, len(c.SOPs))
	for _, s := range c.SOPs {
		if !sopNumberPattern.MatchString(s.Number) {
			return Catalog{}, fmt.Errorf("sop catalog: bad number %q", s.Number)
		}
		if seen[s.Number] {
			return Catalog{}, fmt.Errorf("sop catalog: duplicate number %s", s.Number)
		}
		seen[s.Number] = true
		if s.Title == "" {
			return Catalog{}, fmt.Errorf("sop catalog: %s has no title", s.Number)
		}
		for _, r := range s.RequiredRoles {
			if _, ok := permissions.ParseRole(r); !ok {
				return Catalog{}, fmt.Errorf("sop catalog: %s names unknown role %q", s.Number, r)
			}
		}
	}
	return c, nil
}

// DefaultCatalog is the catalog compiled into the binary.
func DefaultCatalog() (Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// SeedCatalog inserts catalog SOPs that are not in the table yet. Existing
// rows are left alone so edits made through UpsertSOP survive restarts. New
// rows drop the cached SOP list and every cached gate.
func (h *ComplianceHandler) SeedCatalog(ctx context.Context, c Catalog) (int, error) {
	var existing []string
	if err := h.db.WithContext(ctx).Model(&models.SOPDocument{}).Pluck("number", &existing).Error; err != nil {
		return 0, fmt.Errorf("load sop numbers: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, n := range existing {
		have[n] = true
	}

	var missing []models.SOPDocument
	for _, s := range c.SOPs {
		if have[s.Number] {
			continue
		}
		missing = append(missing, models.SOPDocument{
			Number:        s.Number,
			Title:         s.Title,
			Version:       1,
			Summary:       s.Summary,
			BodyURL:       s.BodyURL,
			RequiredRoles: models.StringArray(s.RequiredRoles),
			IsActive:      true,
		})
	}
	if len(missing) == 0 {
		return 0, nil
	}
	if err := h.db.WithContext(ctx).Create(&missing).Error; err != nil {
		return 0, fmt.Errorf("seed sops: %w", err)
	}
	h.cache.Del(ctx, SOP_LIST_CACHE_KEY)
	h.InvalidateGates(ctx)
	return len(missing), nil
}
