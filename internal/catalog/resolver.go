package catalog

import (
	"context"
	"fmt"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"storefront/exporter/internal/client"
	"storefront/exporter/internal/domain"
)

// Resolver maps display-name category paths onto department and category
// slugs using the department and facet endpoints. The department list is
// fetched once per session and memoized; failed fetches are not cached.
type Resolver struct {
	client client.StorefrontClient

	mutex       sync.Mutex
	departments []domain.Department
}

func NewResolver(client client.StorefrontClient) *Resolver {
	return &Resolver{client: client}
}

func (r *Resolver) fetchDepartments(ctx context.Context) ([]domain.Department, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.departments != nil {
		return r.departments, nil
	}
	departments, err := r.client.Departments(ctx)
	if err != nil {
		return nil, err
	}
	r.departments = departments
	return departments, nil
}

// ResolvePath resolves "Dept:Cat:SubCat" into the department and the
// category chain root to leaf. Each category is looked up with the
// previous slug as its parent, so every resolved child lists the prior
// category as parent. Unknown names are ParseErrors.
func (r *Resolver) ResolvePath(ctx context.Context, path string) (domain.Department, []domain.Category, error) {
	parts := splitPath(path)
	if len(parts) < 2 {
		return domain.Department{}, nil, &domain.ParseError{Input: path, Reason: "expected at least a department and one category"}
	}

	departments, err := r.fetchDepartments(ctx)
	if err != nil {
		return domain.Department{}, nil, fmt.Errorf("resolving %q: %w", path, err)
	}

	var department domain.Department
	found := false
	for _, d := range departments {
		if strings.EqualFold(d.Name, parts[0]) || strings.EqualFold(d.Slug, parts[0]) {
			department = d
			found = true
			break
		}
	}
	if !found {
		return domain.Department{}, nil, &domain.ParseError{Input: path, Reason: "unknown department " + parts[0]}
	}

	var chain []domain.Category
	parent := ""
	for _, name := range parts[1:] {
		categories, err := r.client.Categories(ctx, department.Slug, parent)
		if err != nil {
			return domain.Department{}, nil, fmt.Errorf("resolving %q: %w", path, err)
		}

		matched := false
		for _, c := range categories {
			if strings.EqualFold(c.Name, name) || strings.EqualFold(c.Slug, name) {
				chain = append(chain, c)
				parent = c.Slug
				matched = true
				break
			}
		}
		if !matched {
			return domain.Department{}, nil, &domain.ParseError{Input: path, Reason: "unknown category " + name}
		}
	}

	log.Debugf("Resolved %q to department %s, leaf %s", path, department.Slug, parent)
	return department, chain, nil
}

// ExpandLeaf turns a leaf category into the slugs to page. With
// exclusions the leaf fans out into its children minus the excluded
// slugs; a childless leaf, or one without exclusions, pages itself.
func (r *Resolver) ExpandLeaf(ctx context.Context, department string, leaf domain.Category, exclude []string) ([]string, error) {
	if len(exclude) == 0 {
		return []string{leaf.Slug}, nil
	}

	children, err := r.client.Categories(ctx, department, leaf.Slug)
	if err != nil {
		return nil, fmt.Errorf("expanding %s: %w", leaf.Slug, err)
	}
	if len(children) == 0 {
		return []string{leaf.Slug}, nil
	}

	excluded := make(map[string]struct{}, len(exclude))
	for _, slug := range exclude {
		excluded[strings.ToLower(slug)] = struct{}{}
	}

	var slugs []string
	for _, child := range children {
		if _, skip := excluded[strings.ToLower(child.Slug)]; skip {
			continue
		}
		slugs = append(slugs, child.Slug)
	}

	if len(slugs) == 0 {
		return nil, &domain.ParseError{Input: leaf.Slug, Reason: "all subcategories excluded"}
	}
	return slugs, nil
}

func splitPath(path string) []string {
	var parts []string
	for _, p := range strings.Split(path, ":") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
