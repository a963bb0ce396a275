package transform

import (
	"fmt"
	"strings"

	"github.com/libforge/libforge/internal/config"
	lfs "github.com/libforge/libforge/internal/fs"
)

// FromConfig builds the configured stages in order, and the filter selecting
// the modules they apply to.
func FromConfig(cfg config.Transform) ([]Stage, *lfs.Filter, error) {
	filter, err := lfs.NewFilter(cfg.Include, cfg.Exclude)
	if err != nil {
		return nil, nil, err
	}

	stages := make([]Stage, 0, len(cfg.Stages))
	for i, sc := range cfg.Stages {
		s, err := newStage(sc)
		if err != nil {
			return nil, nil, fmt.Errorf("transform stage %d (%s): %w", i, sc.DisplayName(), err)
		}
		if sc.Name != "" {
			s = &named{Stage: s, name: sc.Name}
		}
		stages = append(stages, s)
	}
	return stages, filter, nil
}

func newStage(sc *config.Stage) (Stage, error) {
	switch sc.Kind {
	case config.StageJSX:
		var s JSX
		if err := sc.Decode(&s); err != nil {
			return nil, err
		}
		if s.Runtime != "" && s.Runtime != RuntimeAutomatic && s.Runtime != RuntimeClassic {
			return nil, fmt.Errorf("unknown jsx runtime %q", s.Runtime)
		}
		return &s, nil
	case config.StageLower:
		var s Lower
		if err := sc.Decode(&s); err != nil {
			return nil, err
		}
		if _, ok := targets[strings.ToLower(s.Target)]; s.Target != "" && !ok {
			return nil, fmt.Errorf("unknown target %q", s.Target)
		}
		return &s, nil
	case config.StageReplace:
		var opts struct {
			Values map[string]string `json:"values"`
		}
		if err := sc.Decode(&opts); err != nil {
			return nil, err
		}
		return NewReplace(opts.Values)
	}
	return nil, fmt.Errorf("unknown stage kind %q", sc.Kind)
}
