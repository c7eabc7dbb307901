package domain

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/dwsmith1983/riskreactor/pkg/types"
)

// Snapshot is a serializable copy of the domain used for fixtures and local runs.
type Snapshot struct {
	Tenants               []types.Tenant               `yaml:"tenants,omitempty"`
	WorkPackages          []types.WorkPackage          `yaml:"workPackages,omitempty"`
	Locations             []types.Location             `yaml:"locations,omitempty"`
	Activities            []types.Activity             `yaml:"activities,omitempty"`
	Tasks                 []types.Task                 `yaml:"tasks,omitempty"`
	Contractors           []types.Contractor           `yaml:"contractors,omitempty"`
	Supervisors           []types.Supervisor           `yaml:"supervisors,omitempty"`
	Crews                 []types.Crew                 `yaml:"crews,omitempty"`
	Incidents             []types.Incident             `yaml:"incidents,omitempty"`
	LibraryTasks          []types.LibraryTask          `yaml:"libraryTasks,omitempty"`
	LibrarySiteConditions []types.LibrarySiteCondition `yaml:"librarySiteConditions,omitempty"`
	SiteConditions        []LocationSiteCondition      `yaml:"siteConditions,omitempty"`
}

// LocationSiteCondition is a site condition result at a location. A zero
// Date applies to every day.
type LocationSiteCondition struct {
	LocationID uuid.UUID                 `yaml:"locationId"`
	Date       types.Date                `yaml:"date,omitempty"`
	Result     types.SiteConditionResult `yaml:"result"`
}

// LoadSnapshot reads a YAML snapshot file.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixtures: %w", err)
	}
	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parsing fixtures: %w", err)
	}
	return &snap, nil
}

// LoadMemory reads a YAML snapshot into a Memory reader.
func LoadMemory(path string) (*Memory, error) {
	snap, err := LoadSnapshot(path)
	if err != nil {
		return nil, err
	}
	return NewMemory(snap), nil
}
