package bundler

import (
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// handlerExtensions lists the file types accepted as route handlers inside a
// functions directory.
var handlerExtensions = map[string]bool{
	".js":  true,
	".jsx": true,
	".ts":  true,
	".tsx": true,
	".mjs": true,
	".cjs": true,
}

// Route maps a URL path pattern to a handler module.
type Route struct {
	// Pattern is the URL path, with [param] segments rewritten to :param
	// and [[param]] segments to :param*.
	Pattern string
	// File is the handler source path relative to the working directory.
	File string
}

// collectRoutes walks a functions directory and derives one route per handler
// file. fnDir must be relative to workDir (or absolute); returned file paths
// are kept relative to workDir so the synthesized entry imports resolve from
// there.
func collectRoutes(workDir, fnDir string) ([]Route, error) {
	var routes []Route

	err := filepath.WalkDir(fnDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			// _shared and hidden directories hold support code, not routes
			if p != fnDir && (strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || !handlerExtensions[filepath.Ext(name)] {
			return nil
		}

		rel, err := filepath.Rel(fnDir, p)
		if err != nil {
			return err
		}
		relToWork, err := filepath.Rel(workDir, p)
		if err != nil {
			return err
		}
		routes = append(routes, Route{
			Pattern: routePattern(filepath.ToSlash(rel)),
			File:    filepath.ToSlash(relToWork),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortRoutes(routes)
	return routes, nil
}

// routePattern converts a handler file path (relative to the functions
// directory) into its URL pattern: api/users.ts -> /api/users,
// index.ts -> /, blog/[slug].ts -> /blog/:slug, [[catchall]].ts -> /:catchall*.
func routePattern(rel string) string {
	rel = strings.TrimSuffix(rel, path.Ext(rel))

	segments := strings.Split(rel, "/")
	out := make([]string, 0, len(segments))
	for i, seg := range segments {
		if seg == "index" && i == len(segments)-1 {
			continue
		}
		switch {
		case strings.HasPrefix(seg, "[[") && strings.HasSuffix(seg, "]]"):
			out = append(out, ":"+seg[2:len(seg)-2]+"*")
		case strings.HasPrefix(seg, "[") && strings.HasSuffix(seg, "]"):
			out = append(out, ":"+seg[1:len(seg)-1])
		default:
			out = append(out, seg)
		}
	}
	return "/" + strings.Join(out, "/")
}

// sortRoutes orders routes so static segments match before parameters and
// parameters before catch-alls, with a lexicographic tie-break for
// deterministic output.
func sortRoutes(routes []Route) {
	sort.SliceStable(routes, func(i, j int) bool {
		a := strings.Split(routes[i].Pattern, "/")
		b := strings.Split(routes[j].Pattern, "/")
		for k := 0; k < len(a) && k < len(b); k++ {
			ra, rb := segmentRank(a[k]), segmentRank(b[k])
			if ra != rb {
				return ra < rb
			}
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return len(a) < len(b)
	})
}

func segmentRank(seg string) int {
	switch {
	case strings.HasSuffix(seg, "*"):
		return 2
	case strings.HasPrefix(seg, ":"):
		return 1
	default:
		return 0
	}
}

// synthesizeEntry generates the router worker module for a functions
// directory build. Handlers are imported by their path relative to the
// working directory; the module itself is fed to the compiler as an in-memory
// entry so repeated builds of unchanged sources stay byte-identical.
func synthesizeEntry(routes []Route) string {
	var b strings.Builder
	b.WriteString("// Generated route dispatcher for Pages Functions.\n")
	for i, r := range routes {
		fmt.Fprintf(&b, "import * as route%d from %q;\n", i, "./"+r.File)
	}
	b.WriteString("\nconst routes = [\n")
	for i, r := range routes {
		fmt.Fprintf(&b, "  { pattern: %q, module: route%d },\n", r.Pattern, i)
	}
	b.WriteString("];\n")
	b.WriteString(routerRuntime)
	return b.String()
}

// routerRuntime is the fixed tail of every synthesized functions worker: the
// segment matcher and the default fetch export dispatching to onRequest
// handlers.
const routerRuntime = `
function matchRoute(pathname) {
  const parts = pathname.split("/").filter((p) => p !== "");
  for (const route of routes) {
    const segs = route.pattern.split("/").filter((s) => s !== "");
    const params = {};
    let matched = true;
    let i = 0;
    for (; i < segs.length; i++) {
      const seg = segs[i];
      if (seg.startsWith(":") && seg.endsWith("*")) {
        params[seg.slice(1, -1)] = parts.slice(i);
        i = parts.length;
        break;
      }
      if (i >= parts.length) {
        matched = false;
        break;
      }
      if (seg.startsWith(":")) {
        params[seg.slice(1)] = parts[i];
        continue;
      }
      if (seg !== parts[i]) {
        matched = false;
        break;
      }
    }
    if (matched && i >= parts.length) {
      return { module: route.module, params };
    }
  }
  return null;
}

export default {
  async fetch(request, env, ctx) {
    const url = new URL(request.url);
    const match = matchRoute(url.pathname);
    if (match === null) {
      return new Response("Not Found", { status: 404 });
    }
    const method = request.method.charAt(0) + request.method.slice(1).toLowerCase();
    const handler = match.module["onRequest" + method] ?? match.module.onRequest;
    if (handler === undefined) {
      return new Response("Method Not Allowed", { status: 405 });
    }
    return handler({
      request,
      env,
      params: match.params,
      waitUntil: ctx.waitUntil.bind(ctx),
    });
  },
};
`
