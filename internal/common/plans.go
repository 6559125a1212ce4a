package common

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

type PlanConfig struct {
	Id     int    `yaml:"id"`
	Label  string `yaml:"label"`
	Amount string `yaml:"amount"`
}

type PlansFile struct {
	Plans     []PlanConfig `yaml:"plans"`
	Durations []int        `yaml:"durations"`
}

// Plan is a validated purchasable contract plan
type Plan struct {
	Id     int
	Label  string
	Amount decimal.Decimal
}

// Catalog is the set of plans and term lengths a contract may be created with
type Catalog struct {
	Plans     []Plan
	Durations []int
}

func LoadPlans(plansFile string) (*Catalog, error) {
	var plansPath string
	if filepath.IsAbs(plansFile) {
		plansPath = plansFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		plansPath = filepath.Join(wd, plansFile)
	}

	data, err := os.ReadFile(plansPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", plansFile, err)
	}

	return ParsePlans(data)
}

func ParsePlans(data []byte) (*Catalog, error) {
	var file PlansFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("unable to parse plans: %w", err)
	}

	catalog := &Catalog{Durations: file.Durations}
	seen := make(map[int]bool)
	for i, p := range file.Plans {
		if seen[p.Id] {
			return nil, fmt.Errorf("plan at index %d reuses id %d", i, p.Id)
		}
		seen[p.Id] = true

		amount, err := decimal.NewFromString(p.Amount)
		if err != nil {
			return nil, fmt.Errorf("plan at index %d has invalid amount %q: %w", i, p.Amount, err)
		}
		if !amount.IsPositive() {
			return nil, fmt.Errorf("plan at index %d must have a positive amount", i)
		}
		label := p.Label
		if label == "" {
			label = "$" + amount.String()
		}
		catalog.Plans = append(catalog.Plans, Plan{Id: p.Id, Label: label, Amount: amount})
	}

	for i, d := range file.Durations {
		if d <= 0 {
			return nil, fmt.Errorf("duration at index %d must be positive", i)
		}
	}

	if len(catalog.Plans) == 0 {
		return nil, fmt.Errorf("no plans configured")
	}
	if len(catalog.Durations) == 0 {
		return nil, fmt.Errorf("no durations configured")
	}

	return catalog, nil
}

func (c *Catalog) FindPlan(id int) (Plan, error) {
	for _, p := range c.Plans {
		if p.Id == id {
			return p, nil
		}
	}
	return Plan{}, fmt.Errorf("unknown plan %d", id)
}

func (c *Catalog) ValidDuration(days int) bool {
	for _, d := range c.Durations {
		if d == days {
			return true
		}
	}
	return false
}
