package config

import (
	"fmt"

	"github.com/mcloones/rewards/internal/models"
	"github.com/spf13/viper"
)

type seedEmployee struct {
	ID       string `mapstructure:"id"`
	FullName string `mapstructure:"full_name"`
	Role     string `mapstructure:"role"`
	IsActive *bool  `mapstructure:"is_active"`
}

// LoadSeed reads the staff directory used by the in-memory ledger. The file is YAML
// or JSON with a top-level "employees" list; is_active defaults to true.
func LoadSeed(path string) ([]models.Employee, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var raw []seedEmployee
	if err := v.UnmarshalKey("employees", &raw); err != nil {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}

	employees := make([]models.Employee, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for i, e := range raw {
		if e.ID == "" {
			return nil, fmt.Errorf("seed employee %d: id is required", i)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("seed employee %q listed twice", e.ID)
		}
		seen[e.ID] = true

		role := models.Role(e.Role)
		if !role.Valid() {
			return nil, fmt.Errorf("seed employee %q: unknown role %q", e.ID, e.Role)
		}
		active := e.IsActive == nil || *e.IsActive

		employees = append(employees, models.Employee{
			ID:       e.ID,
			FullName: e.FullName,
			Role:     role,
			IsActive: active,
		})
	}
	return employees, nil
}
