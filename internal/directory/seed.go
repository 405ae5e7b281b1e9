package directory

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SeedFile is a YAML file declaring users to create at startup.
//
// Example:
//
//	users:
//	  - id: agent_alpha
//	    tier: pro
//	  - id: agent_beta
//	    tier: free
type SeedFile struct {
	Users []SeedUser `yaml:"users"`
}

// SeedUser is one user entry in a seed file.
type SeedUser struct {
	ID   string `yaml:"id"`
	Tier string `yaml:"tier"`
}

// LoadSeedFile reads and parses a seed file.
func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("directory: failed to read seed file: %w", err)
	}

	var f SeedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("directory: failed to parse seed file %s: %w", path, err)
	}
	return &f, nil
}

// ApplySeed creates the users declared in the seed file and returns
// user ID -> plaintext API key for those newly created. Users that already
// exist are skipped; invalid entries abort the seed.
func ApplySeed(ctx context.Context, d Directory, f *SeedFile) (map[string]string, error) {
	keys := make(map[string]string)
	for _, u := range f.Users {
		created, key, err := d.CreateUser(ctx, u.ID, u.Tier)
		if errors.Is(err, ErrUserExists) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("directory: failed to seed user %q: %w", u.ID, err)
		}
		keys[created.ID] = key
	}
	return keys, nil
}
