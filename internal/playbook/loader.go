package playbook

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/chimerahq/chimera/internal/domain"
)

// LoadDir loads every *.yaml/*.yml playbook definition from dir, validating
// each as it's loaded. Adapted from the teacher's rule-file loading in
// internal/healing/l1_engine.go::loadYAMLRules — same "sort entries for
// deterministic order, skip what doesn't parse, log and continue" shape,
// but validation failures here are returned rather than merely logged since
// an invalid playbook must never silently vanish from the fleet's remediation
// set.
func LoadDir(dir string) ([]domain.Playbook, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read playbook dir %s: %w", dir, err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var playbooks []domain.Playbook
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		path := filepath.Join(dir, name)
		pb, err := LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load playbook %s: %w", name, err)
		}
		playbooks = append(playbooks, pb)
	}
	return playbooks, nil
}

// LoadFile loads and validates a single playbook definition file.
func LoadFile(path string) (domain.Playbook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Playbook{}, err
	}

	var pb domain.Playbook
	if err := yaml.Unmarshal(data, &pb); err != nil {
		return domain.Playbook{}, fmt.Errorf("parse: %w", err)
	}

	validated, err := pb.Validate()
	if err != nil {
		return domain.Playbook{}, err
	}
	return validated, nil
}
