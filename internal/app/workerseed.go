package app

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/job-scheduler/internal/domain"
)

// WorkerSeedFile is the shape of the optional static worker-fleet seed file
// (config/workers.yaml) used for local/dev bring-up, so an operator doesn't
// have to hand-roll heartbeat calls to get a usable fleet.
type WorkerSeedFile struct {
	Workers []WorkerSeed `yaml:"workers"`
}

// WorkerSeed is one pre-registered worker entry.
type WorkerSeed struct {
	ID           string   `yaml:"id"`
	BaseURL      string   `yaml:"base_url"`
	Capabilities []string `yaml:"capabilities"`
}

// LoadWorkerSeedFile reads and parses a worker-fleet seed file. A missing
// file is not an error: the seed file is optional and most deployments rely
// on workers heartbeating themselves in instead.
func LoadWorkerSeedFile(path string) (*WorkerSeedFile, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read worker seed file: %w", err)
	}
	var f WorkerSeedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse worker seed file: %w", err)
	}
	return &f, nil
}

// SeedWorkers registers every entry of a parsed seed file into a registry.
// Unknown capability strings are skipped rather than rejecting the whole
// entry, so a typo in one capability doesn't hide an otherwise-good worker.
func SeedWorkers(registry domain.WorkerRegistry, f *WorkerSeedFile) {
	if f == nil || registry == nil {
		return
	}
	for _, w := range f.Workers {
		caps := make([]domain.Capability, 0, len(w.Capabilities))
		for _, c := range w.Capabilities {
			capability := domain.Capability(c)
			if !domain.ValidCapability(capability) {
				continue
			}
			caps = append(caps, capability)
		}
		if w.ID == "" || w.BaseURL == "" || len(caps) == 0 {
			continue
		}
		registry.Register(w.ID, w.BaseURL, caps)
	}
}
