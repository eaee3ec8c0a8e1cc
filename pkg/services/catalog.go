package services

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/coursebridge-io/equivalency-engine/pkg/apperrors"
	"github.com/coursebridge-io/equivalency-engine/pkg/models"
)

// CourseCatalog holds the target-course profiles and decision policy loaded
// from the catalog YAML file. Loaded once at startup; read-only afterwards.
type CourseCatalog struct {
	Courses []models.TargetCourseProfile `yaml:"courses"`
	Policy  models.PolicyConfig          `yaml:"policy"`
}

// LoadCourseCatalog reads and parses the catalog file.
func LoadCourseCatalog(path string) (*CourseCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read course catalog: %w", err)
	}

	var catalog CourseCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse course catalog: %w", err)
	}
	if len(catalog.Courses) == 0 {
		return nil, fmt.Errorf("course catalog %s contains no courses", path)
	}
	return &catalog, nil
}

// TargetFor looks up the profile for a requested course code. Matching is
// case-insensitive on the course code.
func (c *CourseCatalog) TargetFor(course string) (*models.TargetCourseProfile, error) {
	for i := range c.Courses {
		if strings.EqualFold(c.Courses[i].Course, course) {
			return &c.Courses[i], nil
		}
	}
	return nil, fmt.Errorf("course %q not in catalog: %w", course, apperrors.ErrNotFound)
}
