package bundler

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// NodeCompatFlag is the compatibility flag that lets node:-prefixed imports
// pass through unresolved instead of failing the build.
const NodeCompatFlag = "nodejs_compat"

// BuildRequest describes one build invocation. Immutable once constructed.
type BuildRequest struct {
	// WorkDir is the directory relative paths in compiler output are
	// reported against.
	WorkDir string
	Target  Target
	// OutputPath is where the bundle is written.
	OutputPath string
	// WorkerBundle enables external-asset externalization and multipart
	// packaging.
	WorkerBundle bool
	// CompatibilityFlags alter module resolution (see NodeCompatFlag).
	CompatibilityFlags []string
}

// HasCompatibilityFlag reports whether the request carries the named flag.
func (r BuildRequest) HasCompatibilityFlag(flag string) bool {
	for _, f := range r.CompatibilityFlags {
		if f == flag {
			return true
		}
	}
	return false
}

// MainModuleName is the filename recorded as main_module in bundle metadata
// and used to name the compiled module part.
func (r BuildRequest) MainModuleName() string {
	name := filepath.Base(r.OutputPath)
	if !strings.HasSuffix(name, ".js") && !strings.HasSuffix(name, ".mjs") {
		name += ".js"
	}
	return name
}

// CompiledModule is the compiler's single ECMAScript-module output.
type CompiledModule struct {
	// MainModule is the module's filename inside the bundle.
	MainModule string
	Source     []byte
}

// BuildResult is the complete, validated output of one compilation.
type BuildResult struct {
	Module CompiledModule
	// Assets are externalized imports, in discovery order. Empty unless the
	// request enabled worker bundling.
	Assets []ExternalAsset
	// Metafile is the compiler's raw metafile JSON, used for the build
	// report.
	Metafile string
}

// BuildFailedError carries the compiler's error messages. Any compile-time
// failure aborts the build with no output written.
type BuildFailedError struct {
	Messages []api.Message
}

func (e *BuildFailedError) Error() string {
	lines := make([]string, 0, len(e.Messages))
	for _, msg := range e.Messages {
		if msg.Location != nil {
			lines = append(lines, fmt.Sprintf("%s:%d:%d: ERROR: %s",
				msg.Location.File, msg.Location.Line, msg.Location.Column, msg.Text))
		} else {
			lines = append(lines, "ERROR: "+msg.Text)
		}
	}
	return strings.Join(lines, "\n")
}

// nodeBuiltinsPlugin leaves node:-prefixed imports unresolved so they pass
// through verbatim into the output source.
func nodeBuiltinsPlugin() api.Plugin {
	return api.Plugin{
		Name: "node-builtins",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: `^node:`},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					return api.OnResolveResult{
						Path:     args.Path,
						External: true,
					}, nil
				})
		},
	}
}

// Build compiles the selected target into one ES-module output, bundling all
// loader-family imports inline. It does not write anything; packaging and the
// final filesystem write happen afterwards so a failed compile leaves no
// partial output behind.
func Build(req BuildRequest) (*BuildResult, error) {
	buildID := uuid.NewString()
	log.Debug().
		Str("build_id", buildID).
		Str("target", req.Target.Kind.String()).
		Str("path", req.Target.Path).
		Bool("worker_bundle", req.WorkerBundle).
		Msg("Starting build")

	absWorkDir, err := filepath.Abs(req.WorkDir)
	if err != nil {
		return nil, err
	}

	opts := api.BuildOptions{
		Bundle:        true,
		Write:         false,
		Metafile:      true,
		Format:        api.FormatESModule,
		Platform:      api.PlatformNeutral,
		Target:        api.ESNext,
		LogLevel:      api.LogLevelSilent,
		Loader:        loaderTable(),
		AbsWorkingDir: absWorkDir,
		Outfile:       filepath.Join(absWorkDir, req.MainModuleName()),
	}

	switch req.Target.Kind {
	case TargetWorker:
		opts.EntryPoints = []string{req.Target.Path}
	case TargetFunctions:
		routes, err := collectRoutes(req.WorkDir, req.Target.Path)
		if err != nil {
			return nil, fmt.Errorf("scanning functions directory: %w", err)
		}
		if len(routes) == 0 {
			return nil, ErrNoBuildTarget
		}
		log.Debug().Str("build_id", buildID).Int("routes", len(routes)).Msg("Synthesized route dispatcher")
		opts.Stdin = &api.StdinOptions{
			Contents:   synthesizeEntry(routes),
			ResolveDir: absWorkDir,
			Sourcefile: "functionsWorker.js",
			Loader:     api.LoaderJS,
		}
	}

	if req.HasCompatibilityFlag(NodeCompatFlag) {
		opts.Plugins = append(opts.Plugins, nodeBuiltinsPlugin())
	}

	var resolver *assetResolver
	if req.WorkerBundle {
		resolver = newAssetResolver()
		opts.Plugins = append(opts.Plugins, resolver.plugin())
		// The compiled module references its own map via a trailing
		// sourceMappingURL comment; inline keeps the bundle layout to
		// exactly one module part.
		opts.Sourcemap = api.SourceMapInline
	}

	result := api.Build(opts)
	if len(result.Errors) > 0 {
		return nil, &BuildFailedError{Messages: result.Errors}
	}
	if len(result.OutputFiles) != 1 {
		return nil, fmt.Errorf("expected a single compiled module, got %d output files", len(result.OutputFiles))
	}

	out := &BuildResult{
		Module: CompiledModule{
			MainModule: req.MainModuleName(),
			Source:     result.OutputFiles[0].Contents,
		},
		Metafile: result.Metafile,
	}
	if resolver != nil {
		out.Assets = resolver.Assets()
	}

	log.Debug().
		Str("build_id", buildID).
		Int("module_bytes", len(out.Module.Source)).
		Int("assets", len(out.Assets)).
		Msg("Build complete")
	return out, nil
}
