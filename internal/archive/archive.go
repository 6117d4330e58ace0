// Package archive keeps a git-backed snapshot history of the serialized
// comment blob, one repository per context key. Every successful save is
// committed, so a corrupted or clobbered blob can be recovered from the last
// good snapshot. This is version history of the stored document, not an
// audit trail.
package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const blobFile = "blob.json"

// Snapshot describes one archived blob revision.
type Snapshot struct {
	Hash   string    `json:"hash"`
	Author string    `json:"author"`
	When   time.Time `json:"when"`
}

// Service manages the per-context snapshot repositories under baseDir.
type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// Record commits the blob text as a new snapshot and returns the commit
// hash. An unchanged blob is not committed again; the current head hash is
// returned instead.
func (s *Service) Record(contextKey, blobText, author string) (string, error) {
	lock := s.contextLock(contextKey)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.ensureRepo(contextKey)
	if err != nil {
		return "", err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("open worktree: %w", err)
	}

	path := filepath.Join(worktree.Filesystem.Root(), blobFile)
	if err := os.WriteFile(path, []byte(blobText+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("write blob snapshot: %w", err)
	}
	if _, err := worktree.Add(blobFile); err != nil {
		return "", fmt.Errorf("git add snapshot: %w", err)
	}

	status, err := worktree.Status()
	if err != nil {
		return "", fmt.Errorf("read worktree status: %w", err)
	}
	if status.IsClean() {
		head, err := repo.Head()
		if err != nil {
			return "", fmt.Errorf("read head: %w", err)
		}
		return head.Hash().String(), nil
	}

	hash, err := worktree.Commit("Comment blob snapshot", &git.CommitOptions{
		Author: signature(author),
	})
	if err != nil {
		return "", fmt.Errorf("commit snapshot: %w", err)
	}
	return hash.String(), nil
}

// LastGood returns the blob text from the newest snapshot. Used as a
// recovery source when the persisted blob fails to parse.
func (s *Service) LastGood(contextKey string) (string, error) {
	lock := s.contextLock(contextKey)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(contextKey))
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("read head: %w", err)
	}
	commitObj, err := repo.CommitObject(head.Hash())
	if err != nil {
		return "", fmt.Errorf("load head commit: %w", err)
	}
	return readBlobFromCommit(commitObj)
}

// History lists snapshots newest first, up to limit (zero means all).
func (s *Service) History(contextKey string, limit int) ([]Snapshot, error) {
	lock := s.contextLock(contextKey)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(contextKey))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("read head: %w", err)
	}
	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]Snapshot, 0, limit)
	count := 0
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, Snapshot{
			Hash:   commitObj.Hash.String(),
			Author: commitObj.Author.Name,
			When:   commitObj.Author.When,
		})
		count++
		if limit > 0 && count >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// SnapshotByHash returns the blob text from a specific snapshot.
func (s *Service) SnapshotByHash(contextKey, hash string) (string, error) {
	lock := s.contextLock(contextKey)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(contextKey))
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}
	commitObj, err := repo.CommitObject(plumbing.NewHash(hash))
	if err != nil {
		return "", fmt.Errorf("read commit %s: %w", hash, err)
	}
	return readBlobFromCommit(commitObj)
}

func (s *Service) ensureRepo(contextKey string) (*git.Repository, error) {
	path := s.repoPath(contextKey)
	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	repo, err = git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init archive: %w", err)
	}
	return repo, nil
}

func (s *Service) repoPath(contextKey string) string {
	return filepath.Join(s.baseDir, contextKey)
}

func (s *Service) contextLock(contextKey string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[contextKey]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[contextKey] = lock
	return lock
}

func signature(author string) *object.Signature {
	return &object.Signature{
		Name:  author,
		Email: fmt.Sprintf("%s@fieldnotes.local", sanitizeLocalPart(author)),
		When:  time.Now(),
	}
}

func sanitizeLocalPart(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}

func readBlobFromCommit(commitObj *object.Commit) (string, error) {
	file, err := commitObj.File(blobFile)
	if err != nil {
		return "", fmt.Errorf("load %s from commit: %w", blobFile, err)
	}
	contents, err := file.Contents()
	if err != nil {
		return "", fmt.Errorf("read snapshot contents: %w", err)
	}
	// Trailing newline added on write.
	if len(contents) > 0 && contents[len(contents)-1] == '\n' {
		contents = contents[:len(contents)-1]
	}
	return contents, nil
}
