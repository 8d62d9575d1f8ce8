package bundler

import (
	"crypto/sha1"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"

	"github.com/evanw/esbuild/pkg/api"
)

// assetTokenLength is the number of hex characters of the content hash kept
// in an externalized asset's output filename.
const assetTokenLength = 10

// loaderTable maps the source extensions the compiler inlines to their
// loaders. Imports of any other extension either fail the build (default
// mode) or are externalized into sibling binary assets (worker bundle mode).
func loaderTable() map[string]api.Loader {
	return map[string]api.Loader{
		".js":   api.LoaderJS,
		".mjs":  api.LoaderJS,
		".cjs":  api.LoaderJS,
		".jsx":  api.LoaderJSX,
		".ts":   api.LoaderTS,
		".tsx":  api.LoaderTSX,
		".json": api.LoaderJSON,
	}
}

// ExternalAsset is a non-code import shipped alongside the compiled module
// instead of being inlined into it.
type ExternalAsset struct {
	// SourcePath is the import specifier as written in the source.
	SourcePath string
	// Filename is the content-derived output name, <token>-<basename>.
	Filename string
	Bytes    []byte
}

// assetToken derives the stable filename prefix from asset content. Two
// different files never collide on output filename, and an unchanged file
// keeps its token across rebuilds.
func assetToken(content []byte) string {
	sum := sha1.Sum(content)
	return hex.EncodeToString(sum[:])[:assetTokenLength]
}

// assetResolver externalizes imports that have no configured loader. It
// records assets in first-discovery order; the compiler may resolve imports
// concurrently, so the record is mutex-guarded.
type assetResolver struct {
	mu   sync.Mutex
	seen map[string]string // resolved absolute path -> output filename
	// assets preserves discovery order for deterministic container layout.
	assets []ExternalAsset
}

func newAssetResolver() *assetResolver {
	return &assetResolver{seen: make(map[string]string)}
}

// plugin intercepts imports carrying a file extension and externalizes those
// without a configured loader, rewriting the specifier to the
// content-addressed sibling filename.
func (r *assetResolver) plugin() api.Plugin {
	return api.Plugin{
		Name: "external-assets",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: `\.\w+$`},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					if _, ok := loaderTable()[filepath.Ext(args.Path)]; ok {
						// bundlable import, let the compiler inline it
						return api.OnResolveResult{}, nil
					}
					return r.resolve(args)
				})
		},
	}
}

func (r *assetResolver) resolve(args api.OnResolveArgs) (api.OnResolveResult, error) {
	abs := args.Path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(args.ResolveDir, args.Path)
	}
	abs = filepath.Clean(abs)

	r.mu.Lock()
	defer r.mu.Unlock()

	if name, ok := r.seen[abs]; ok {
		return api.OnResolveResult{Path: "./" + name, External: true}, nil
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		return api.OnResolveResult{}, err
	}

	name := assetToken(content) + "-" + filepath.Base(abs)
	r.seen[abs] = name
	r.assets = append(r.assets, ExternalAsset{
		SourcePath: args.Path,
		Filename:   name,
		Bytes:      content,
	})
	return api.OnResolveResult{Path: "./" + name, External: true}, nil
}

// Assets returns the externalized assets in discovery order.
func (r *assetResolver) Assets() []ExternalAsset {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.assets
}
