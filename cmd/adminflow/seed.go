package main

import (
	"context"
	"fmt"

	"github.com/viant/adminflow/internal/expand"
	"github.com/viant/adminflow/model"
	"github.com/viant/adminflow/service/directory"
	"github.com/viant/adminflow/service/resource"
	"github.com/viant/afs"
	"gopkg.in/yaml.v3"
)

// seed lists the resources and admins served from memory.
type seed struct {
	Resources []*model.Resource  `yaml:"resources"`
	Admins    []*directory.Admin `yaml:"admins"`
}

func loadSeed(ctx context.Context, fs afs.Service, URL string) (*seed, error) {
	data, err := fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to download seed %v: %w", URL, err)
	}
	ret := &seed{}
	if err = yaml.Unmarshal([]byte(expand.Env(string(data))), ret); err != nil {
		return nil, fmt.Errorf("failed to decode seed %v: %w", URL, err)
	}
	for i, r := range ret.Resources {
		if r == nil || !r.Type.IsValid() || r.ID == "" {
			return nil, fmt.Errorf("invalid resource #%d in %v", i, URL)
		}
	}
	return ret, nil
}

func (s *seed) lookup() *resource.Memory {
	return resource.NewMemory(s.Resources...)
}

func (s *seed) roster() *directory.MemoryRoster {
	return directory.NewMemoryRoster(s.Admins...)
}
