package convert

import (
	"path/filepath"
	"strings"

	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"sox/config"
	"sox/state"
)

// buildOutputPath returns output file path for the source. "src" is path of
// the source relative to what was requested on command line, its directory
// part is kept on the output unless NoDirs is set. Name comes either from the
// source or from user template, template expansion may introduce
// subdirectories.
func buildOutputPath(values Values, src, dst, ext string, env *state.LocalEnv) string {
	outDir := dst
	if !env.NoDirs {
		outDir = filepath.Join(dst, filepath.Dir(src))
	}

	name := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	if tmpl := env.Cfg.Output.NameTemplate; tmpl != "" {
		expanded, err := expandTemplate(tmpl, values)
		switch {
		case err != nil:
			env.Log.Warn("Unable to prepare output filename", zap.Error(err))
		case expanded == "":
			env.Log.Warn("Output filename template expanded to nothing, using default", zap.String("template", tmpl))
		default:
			name = filepath.FromSlash(expanded)
		}
	}

	segments := splitPath(name)
	if len(segments) == 0 {
		segments = []string{""}
	}
	parts := make([]string, 0, len(segments)+1)
	parts = append(parts, outDir)
	for i, seg := range segments {
		seg = cleanPathSegment(seg, env)
		if i == len(segments)-1 {
			seg += ext
		}
		parts = append(parts, seg)
	}
	return filepath.Join(parts...)
}

func splitPath(path string) []string {
	var segments []string
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if seg != "" && seg != "." && seg != ".." {
			segments = append(segments, seg)
		}
	}
	return segments
}

func cleanPathSegment(segment string, env *state.LocalEnv) string {
	if env.Cfg.Output.SlugNames {
		segment = slug.Make(segment)
	}
	return config.CleanFileName(segment)
}
