package planner

import (
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"go.viam.com/gbpplanner/config"
	"go.viam.com/gbpplanner/logging"
	"go.viam.com/gbpplanner/sdf"
)

// LoadField builds the obstacle field described by the environment section. Relative paths are
// resolved against the directory of the config file. Without an sdf or obstacle mask the world is
// clear.
func LoadField(cfg *config.Config, logger logging.Logger) (sdf.Sampler, error) {
	env := cfg.Environment
	worldSize := cfg.Simulation.WorldSize
	switch {
	case env.SDF != "":
		path := resolve(cfg.ConfigFilePath, env.SDF)
		field, err := sdf.Load(path, worldSize)
		if err != nil {
			return nil, err
		}
		logger.Debugw("loaded sdf", "path", path, "size", field.Bounds())
		return field, nil
	case env.Obstacles != "":
		path := resolve(cfg.ConfigFilePath, env.Obstacles)
		mask, err := imaging.Open(path)
		if err != nil {
			return nil, errors.Wrapf(err, "loading obstacle mask %q", path)
		}
		field, err := sdf.FromObstacles(mask, worldSize, env.SDFRadius, env.SDFBlur)
		if err != nil {
			return nil, errors.Wrapf(err, "generating sdf from %q", path)
		}
		logger.Debugw("generated sdf", "path", path, "size", field.Bounds(), "radius", env.SDFRadius)
		return field, nil
	default:
		return sdf.Clear{Size: worldSize}, nil
	}
}

func resolve(configPath, path string) string {
	if filepath.IsAbs(path) || configPath == "" {
		return path
	}
	return filepath.Join(filepath.Dir(configPath), path)
}
