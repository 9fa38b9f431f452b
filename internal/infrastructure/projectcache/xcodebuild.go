package projectcache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/ericvoltolin/xc-mcp/internal/domain"
)

const xcodebuild = "xcodebuild"

// projectKind classifies path by extension.
func projectKind(path string) (domain.ProjectKind, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xcodeproj":
		return domain.ProjectKindProject, nil
	case ".xcworkspace":
		return domain.ProjectKindWorkspace, nil
	default:
		return "", domain.Invalidf("%s is not an .xcodeproj or .xcworkspace", path)
	}
}

// normalizePath makes path absolute and checks that it names a project.
func normalizePath(path string) (string, domain.ProjectKind, error) {
	if strings.TrimSpace(path) == "" {
		return "", "", domain.Invalidf("project path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", "", domain.Invalidf("cannot resolve %s: %v", path, err)
	}
	kind, err := projectKind(abs)
	if err != nil {
		return "", "", err
	}
	return abs, kind, nil
}

// modTime returns the modification time that drives invalidation: the
// pbxproj inside a project, the workspace data inside a workspace, else the
// bundle itself.
func modTime(path string, kind domain.ProjectKind) (time.Time, error) {
	inner := "project.pbxproj"
	if kind == domain.ProjectKindWorkspace {
		inner = "contents.xcworkspacedata"
	}
	if info, err := os.Stat(filepath.Join(path, inner)); err == nil {
		return info.ModTime(), nil
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return time.Time{}, domain.NotFoundf("project %s does not exist", path)
		}
		return time.Time{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return info.ModTime(), nil
}

// listProject runs `xcodebuild -list -json` for path.
func (c *Cache) listProject(ctx context.Context, path string, kind domain.ProjectKind) (domain.ProjectDescriptor, error) {
	args := []string{"-list", "-json", "-" + string(kind), path}
	command := xcodebuild + " " + strings.Join(args, " ")
	result, err := c.executor.Execute(ctx, xcodebuild, args, c.execOpts)
	if err != nil {
		return domain.ProjectDescriptor{}, fmt.Errorf("failed to run %s: %w", command, err)
	}
	if !result.Succeeded() {
		return domain.ProjectDescriptor{}, domain.NewUpstreamError(command, result)
	}
	return parseList([]byte(result.Stdout), kind)
}

// parseList reads the "project" or "workspace" object of xcodebuild -list
// output, skipping any log noise printed before the JSON.
func parseList(data []byte, kind domain.ProjectKind) (domain.ProjectDescriptor, error) {
	start := strings.IndexByte(string(data), '{')
	if start < 0 || !gjson.ValidBytes(data[start:]) {
		return domain.ProjectDescriptor{}, fmt.Errorf("xcodebuild -list output is not valid JSON: %w", domain.ErrUpstreamFailure)
	}
	body := gjson.GetBytes(data[start:], string(kind))
	if !body.IsObject() {
		return domain.ProjectDescriptor{}, fmt.Errorf("xcodebuild -list output has no %s object: %w", kind, domain.ErrUpstreamFailure)
	}
	return domain.ProjectDescriptor{
		Name:           body.Get("name").String(),
		Kind:           kind,
		Schemes:        stringArray(body.Get("schemes")),
		Targets:        stringArray(body.Get("targets")),
		Configurations: stringArray(body.Get("configurations")),
	}, nil
}

func stringArray(r gjson.Result) []string {
	var out []string
	r.ForEach(func(_, v gjson.Result) bool {
		out = append(out, v.String())
		return true
	})
	return out
}
