package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"

	"github.com/elsbrock/putioarr/internal/domain"
	"github.com/elsbrock/putioarr/internal/domain/ports"
)

// TargetPlanner expands a remote file tree into local download targets.
type TargetPlanner struct {
	Remote          ports.RemoteTransferClient
	DownloadDir     string
	SkipDirectories []string
	Logger          *slog.Logger
}

type planItem struct {
	id       domain.FileID
	node     *domain.RemoteFile
	basePath string
	topLevel bool
}

// PlanTransfer plans the targets for a transfer's root file under the
// configured download directory.
func (p TargetPlanner) PlanTransfer(ctx context.Context, t domain.Transfer) ([]domain.DownloadTarget, error) {
	if !t.Downloadable() {
		return nil, ErrNotDownloadable
	}
	return p.Plan(ctx, t.FileID, t.Hash, p.DownloadDir, true)
}

// Plan walks the remote tree rooted at fileID depth first. Skipped folders
// drop their whole subtree, and nodes that are neither folders nor videos
// contribute nothing. Any remote failure aborts the whole plan, and so does
// a planned path that would leave basePath.
func (p TargetPlanner) Plan(ctx context.Context, fileID domain.FileID, hash, basePath string, topLevel bool) ([]domain.DownloadTarget, error) {
	skip := newSkipList(p.SkipDirectories)

	targets := []domain.DownloadTarget{}
	visited := make(map[domain.FileID]struct{})
	stack := []planItem{{id: fileID, basePath: basePath, topLevel: topLevel}}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, seen := visited[item.id]; seen {
			continue
		}
		visited[item.id] = struct{}{}

		if item.node != nil && item.node.Type == domain.FileTypeFolder && skip.has(item.node.Name) {
			p.logSkip(hash, filepath.Join(item.basePath, item.node.Name))
			continue
		}

		node, children, err := p.expand(ctx, item)
		if err != nil {
			return nil, err
		}

		switch node.Type {
		case domain.FileTypeFolder:
			if skip.has(node.Name) {
				p.logSkip(hash, filepath.Join(item.basePath, node.Name))
				continue
			}
			to, err := localPath(basePath, item.basePath, node.Name)
			if err != nil {
				return nil, fmt.Errorf("folder %d: %w", node.ID, err)
			}
			targets = append(targets, domain.DownloadTarget{
				To:           to,
				Kind:         domain.TargetDirectory,
				TopLevel:     item.topLevel,
				TransferHash: hash,
			})
			for i := len(children) - 1; i >= 0; i-- {
				child := children[i]
				stack = append(stack, planItem{id: child.ID, node: &child, basePath: to})
			}
		case domain.FileTypeVideo:
			to, err := localPath(basePath, item.basePath, node.Name)
			if err != nil {
				return nil, fmt.Errorf("file %d: %w", node.ID, err)
			}
			url, err := p.Remote.DownloadURL(ctx, node.ID)
			if err != nil {
				return nil, fmt.Errorf("%w: download url for file %d: %w", domain.ErrRemoteQuery, node.ID, err)
			}
			targets = append(targets, domain.DownloadTarget{
				From:         url,
				To:           to,
				Kind:         domain.TargetFile,
				TopLevel:     item.topLevel,
				TransferHash: hash,
			})
		}
	}
	return targets, nil
}

// expand returns the node's metadata and, for folders, its children. Leaves
// already described by their parent's listing need no remote call.
func (p TargetPlanner) expand(ctx context.Context, item planItem) (domain.RemoteFile, []domain.RemoteFile, error) {
	if item.node != nil && item.node.Type != domain.FileTypeFolder {
		return *item.node, nil, nil
	}
	listing, err := p.Remote.ListFiles(ctx, item.id)
	if err != nil {
		return domain.RemoteFile{}, nil, fmt.Errorf("%w: list files %d: %w", domain.ErrRemoteQuery, item.id, err)
	}
	return listing.Parent, listing.Files, nil
}

// localPath joins a remote node name onto parent. Names that are not a
// single path element, or results outside root, fail with ErrUnsafePath.
func localPath(root, parent, name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: name %q", domain.ErrUnsafePath, name)
	}
	to := filepath.Join(parent, name)
	if !withinDir(root, to) {
		return "", fmt.Errorf("%w: %s is outside %s", domain.ErrUnsafePath, to, root)
	}
	return to, nil
}

// withinDir reports whether path lies strictly below root.
func withinDir(root, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil || rel == "." || rel == ".." || filepath.IsAbs(rel) {
		return false
	}
	return !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// skipList matches folder names under Unicode case folding. It is not safe
// for concurrent use.
type skipList struct {
	fold  cases.Caser
	names map[string]struct{}
}

func newSkipList(names []string) skipList {
	s := skipList{fold: cases.Fold(), names: make(map[string]struct{}, len(names))}
	for _, name := range names {
		if name = strings.TrimSpace(name); name != "" {
			s.names[s.fold.String(name)] = struct{}{}
		}
	}
	return s
}

func (s skipList) has(name string) bool {
	_, ok := s.names[s.fold.String(name)]
	return ok
}

func (p TargetPlanner) logSkip(hash, path string) {
	p.logger().Debug("planner: skipping directory",
		slog.String("hash", domain.ShortHash(hash)),
		slog.String("path", path),
	)
}

func (p TargetPlanner) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}
