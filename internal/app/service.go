package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"fieldnotes/api/internal/archive"
	"fieldnotes/api/internal/auth"
	"fieldnotes/api/internal/blobstore"
	"fieldnotes/api/internal/catalog"
	"fieldnotes/api/internal/comments"
	"fieldnotes/api/internal/config"
	"fieldnotes/api/internal/export"
	"fieldnotes/api/internal/identity"
	"fieldnotes/api/internal/perms"
	"fieldnotes/api/internal/search"
	"fieldnotes/api/internal/util"
)

type Session struct {
	Token     string
	UserID    string
	UserName  string
	JTI       string
	ExpiresAt time.Time
}

// CommentState is what the comment surface renders: the serialized blob, the
// resolved authors it references, and the caller's effective permissions.
type CommentState struct {
	Comments    string          `json:"comments"`
	Authors     []identity.User `json:"authors"`
	Permissions perms.Record    `json:"permissions"`
}

type userDirectory interface {
	UserByID(ctx context.Context, id string) (identity.User, error)
	UsersByIDs(ctx context.Context, ids []string) ([]identity.User, error)
	GroupsByName(ctx context.Context, name string) ([]identity.Group, error)
	SignIn(ctx context.Context, email, password string) (identity.User, error)
	CreateUser(ctx context.Context, user identity.User, password string) (string, error)
}

type modelCatalog interface {
	ListModels(ctx context.Context) ([]catalog.Model, error)
	GetExplore(ctx context.Context, modelName, exploreName string) (catalog.Explore, error)
}

// workspace is one user's live comment state: an exclusively owned blob
// snapshot wrapped by a store, plus the identities resolved for it. Gateway
// reads happen once at open; mutations run against the snapshot and write
// through.
type workspace struct {
	mu      sync.Mutex
	store   *comments.Store
	user    identity.User
	authors []identity.User
	opened  time.Time
}

type Service struct {
	cfg       config.Config
	db        *sql.DB
	directory userDirectory
	catalog   modelCatalog
	explores  *catalog.Cache
	gateway   comments.Gateway
	search    *search.Service
	archive   *archive.Service
	exporter  *export.Service

	mu         sync.Mutex
	workspaces map[string]*workspace
}

// NewService wires the comment engine. meiliSvc and archiveSvc may be nil;
// search then degrades to the blob scan and snapshot history is disabled.
func NewService(cfg config.Config, db *sql.DB, directory userDirectory, cat modelCatalog, gateway comments.Gateway, meiliSvc *search.Meili, archiveSvc *archive.Service) *Service {
	s := &Service{
		cfg:        cfg,
		db:         db,
		directory:  directory,
		catalog:    cat,
		explores:   catalog.NewCache(),
		gateway:    gateway,
		archive:    archiveSvc,
		exporter:   export.NewService(),
		workspaces: make(map[string]*workspace),
	}
	s.search = search.NewService(meiliSvc, search.NewBlobScan(s.persistedBlob))
	if meiliSvc != nil {
		meiliSvc.OnHealthy(s.reindexSearch)
	}
	return s
}

// reindexSearch mirrors persisted truth into the search index. It runs
// whenever Meilisearch becomes reachable, so comments saved before this
// process started are findable without waiting for their next edit.
func (s *Service) reindexSearch() {
	s.search.ReindexBlob(s.persistedBlob())
}

func (s *Service) Ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.PingContext(ctx)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	user, err := s.directory.SignIn(ctx, email, password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			return Session{}, domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
		}
		return Session{}, err
	}

	expires := time.Now().Add(s.cfg.AccessTTL)
	claims := auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		JTI:  util.NewID("jti"),
		Exp:  expires.Unix(),
	}
	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), claims)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		JTI:       claims.JTI,
		ExpiresAt: expires,
	}, nil
}

// SignUpInput carries a new account registration.
type SignUpInput struct {
	Email       string
	Password    string
	FirstName   string
	LastName    string
	DisplayName string
}

// SignUp creates a directory user and signs it in. This is how a fresh
// deployment gets its first users; role group membership is managed in the
// directory afterwards, so new users start at the writer baseline.
func (s *Service) SignUp(ctx context.Context, input SignUpInput) (Session, error) {
	email := strings.TrimSpace(input.Email)
	if email == "" || !strings.Contains(email, "@") {
		return Session{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "A valid email is required", nil)
	}
	if len(input.Password) < 8 {
		return Session{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Password must be at least 8 characters", nil)
	}

	display := strings.TrimSpace(input.DisplayName)
	if display == "" {
		display = strings.TrimSpace(strings.TrimSpace(input.FirstName) + " " + strings.TrimSpace(input.LastName))
	}
	if display == "" {
		display = email
	}

	user := identity.User{
		FirstName:   strings.TrimSpace(input.FirstName),
		LastName:    strings.TrimSpace(input.LastName),
		DisplayName: display,
		Email:       email,
	}
	id, err := s.directory.CreateUser(ctx, user, input.Password)
	if err != nil {
		if errors.Is(err, identity.ErrEmailTaken) {
			return Session{}, domainError(http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil)
		}
		return Session{}, err
	}

	expires := time.Now().Add(s.cfg.AccessTTL)
	claims := auth.Claims{
		Sub:  id,
		Name: display,
		JTI:  util.NewID("jti"),
		Exp:  expires.Unix(),
	}
	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), claims)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    id,
		UserName:  display,
		JTI:       claims.JTI,
		ExpiresAt: expires,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    claims.Sub,
		UserName:  claims.Name,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

// A workspace older than this is dropped on next access and reopened from
// the gateway, bounding both staleness and the size of the workspaces map.
const workspaceTTL = 30 * time.Minute

// workspaceFor returns the caller's workspace, opening one on first use.
// Expired workspaces are swept on every lookup.
func (s *Service) workspaceFor(ctx context.Context, userID string) *workspace {
	s.mu.Lock()
	for id, stale := range s.workspaces {
		if time.Since(stale.opened) > workspaceTTL {
			delete(s.workspaces, id)
		}
	}
	ws, ok := s.workspaces[userID]
	s.mu.Unlock()
	if ok {
		return ws
	}

	ws = s.openWorkspace(ctx, userID)

	s.mu.Lock()
	if existing, ok := s.workspaces[userID]; ok {
		ws = existing
	} else {
		s.workspaces[userID] = ws
	}
	s.mu.Unlock()
	return ws
}

// ResetWorkspace drops the cached snapshot so the next read reloads from the
// gateway. Used when the surface asks for a refresh.
func (s *Service) ResetWorkspace(userID string) {
	s.mu.Lock()
	delete(s.workspaces, userID)
	s.mu.Unlock()
}

// openWorkspace loads the blob and resolves identities and permissions.
// Every gateway failure degrades rather than propagates: an unreadable blob
// becomes empty (after trying the archive's last good snapshot), an
// unresolvable user keeps the writer baseline, unresolvable authors render
// as deleted.
func (s *Service) openWorkspace(ctx context.Context, userID string) *workspace {
	text, err := s.gateway.Load(ctx)
	if err != nil {
		log.Printf("workspace %s: load blob: %v", userID, err)
		text = blobstore.EmptyBlob
	}

	blob, err := comments.Parse(text)
	if err != nil {
		log.Printf("workspace %s: parse blob: %v", userID, err)
		blob = s.recoverBlob()
	}

	user, record := s.resolveCaller(ctx, userID)
	ws := &workspace{
		store:   comments.NewStore(blob, record, s.gateway),
		user:    user,
		authors: s.resolveAuthors(ctx, blob, user),
		opened:  time.Now(),
	}
	return ws
}

// recoverBlob falls back to the archive's last successfully saved snapshot,
// or an empty blob when no archive is configured or the snapshot is itself
// unreadable.
func (s *Service) recoverBlob() *comments.Blob {
	if s.archive == nil {
		return comments.NewBlob()
	}
	text, err := s.archive.LastGood(s.cfg.ContextKey)
	if err != nil {
		log.Printf("recover blob from archive: %v", err)
		return comments.NewBlob()
	}
	blob, err := comments.Parse(text)
	if err != nil {
		log.Printf("recover blob from archive: snapshot malformed: %v", err)
		return comments.NewBlob()
	}
	log.Printf("recovered comment blob from archive snapshot")
	return blob
}

func (s *Service) resolveCaller(ctx context.Context, userID string) (identity.User, perms.Record) {
	user, err := s.directory.UserByID(ctx, userID)
	if err != nil {
		log.Printf("workspace %s: resolve current user: %v", userID, err)
		user = identity.DeletedUser()
		user.ID = userID
		return user, perms.Baseline()
	}
	return user, perms.Resolve(user.GroupIDs, s.loadRoleGroups(ctx))
}

func (s *Service) loadRoleGroups(ctx context.Context) perms.RoleGroups {
	return perms.RoleGroups{
		Reader:   s.lookupRoleGroup(ctx, "reader"),
		Writer:   s.lookupRoleGroup(ctx, "writer"),
		Manager:  s.lookupRoleGroup(ctx, "manager"),
		Disabled: s.lookupRoleGroup(ctx, "disabled"),
	}
}

func (s *Service) lookupRoleGroup(ctx context.Context, role string) *perms.Group {
	name := s.cfg.RoleGroupPrefix + "_" + role
	groups, err := s.directory.GroupsByName(ctx, name)
	if err != nil {
		log.Printf("lookup role group %s: %v", name, err)
		return nil
	}
	if len(groups) == 0 {
		return nil
	}
	return &perms.Group{ID: groups[0].ID}
}

// resolveAuthors bulk-resolves every author id the blob references. Ids that
// do not come back are rendered as the caller when they match, otherwise as
// the synthetic deleted user.
func (s *Service) resolveAuthors(ctx context.Context, blob *comments.Blob, caller identity.User) []identity.User {
	ids := comments.AuthorIDs(blob)
	if len(ids) == 0 {
		return []identity.User{}
	}

	found, err := s.directory.UsersByIDs(ctx, ids)
	if err != nil {
		log.Printf("resolve comment authors: %v", err)
		found = nil
	}
	byID := make(map[string]identity.User, len(found))
	for _, u := range found {
		byID[u.ID] = u
	}

	authors := make([]identity.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			authors = append(authors, u)
			continue
		}
		if id == caller.ID {
			authors = append(authors, caller)
			continue
		}
		deleted := identity.DeletedUser()
		deleted.ID = id
		authors = append(authors, deleted)
	}
	return authors
}

// Comments returns the caller's current snapshot state. refresh forces a
// reload from the gateway first.
func (s *Service) Comments(ctx context.Context, sess Session, refresh bool) (CommentState, error) {
	if refresh {
		s.ResetWorkspace(sess.UserID)
	}
	ws := s.workspaceFor(ctx, sess.UserID)
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return s.stateLocked(ws)
}

func (s *Service) stateLocked(ws *workspace) (CommentState, error) {
	record := ws.store.Permissions()
	if !record.CanRead() {
		// Disabled users keep their permission record but see no comments.
		text, err := comments.NewBlob().Serialize()
		if err != nil {
			return CommentState{}, err
		}
		return CommentState{
			Comments:    text,
			Authors:     []identity.User{},
			Permissions: record,
		}, nil
	}

	text, err := ws.store.Snapshot()
	if err != nil {
		return CommentState{}, err
	}
	authors := make([]identity.User, len(ws.authors))
	copy(authors, ws.authors)
	return CommentState{
		Comments:    text,
		Authors:     authors,
		Permissions: record,
	}, nil
}

// AddComment appends a fresh comment authored by the caller. Only the
// content of the submitted comment is used; timestamp and primary key are
// generated server-side.
func (s *Service) AddComment(ctx context.Context, sess Session, explore, field, commentText string) (CommentState, error) {
	submitted, err := parseComment(commentText)
	if err != nil {
		return CommentState{}, err
	}
	if strings.TrimSpace(submitted.Content) == "" {
		return CommentState{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Comment content is required", nil)
	}

	ws := s.workspaceFor(ctx, sess.UserID)
	ws.mu.Lock()
	defer ws.mu.Unlock()

	added, err := ws.store.Add(ctx, explore, field, comments.AuthorID(ws.user.ID), submitted.Content)
	if err != nil {
		return CommentState{}, mutationError(err)
	}

	s.ensureCallerAuthor(ws)
	s.search.IndexComment(search.CommentRecord{
		ID:      search.RecordID(explore, field, added.PK),
		Explore: explore,
		Field:   field,
		PK:      added.PK,
		Content: added.Content,
		Author:  string(added.Author),
	})
	s.recordSnapshot(ws)
	return s.stateLocked(ws)
}

// EditComment replaces the comment matching the submitted primary key,
// keeping its original timestamp and marking it edited.
func (s *Service) EditComment(ctx context.Context, sess Session, explore, field, commentText string) (CommentState, error) {
	submitted, err := parseComment(commentText)
	if err != nil {
		return CommentState{}, err
	}
	if submitted.PK == "" {
		return CommentState{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Comment pk is required", nil)
	}

	ws := s.workspaceFor(ctx, sess.UserID)
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if err := ws.store.Edit(ctx, explore, field, submitted); err != nil {
		return CommentState{}, mutationError(err)
	}

	s.search.IndexComment(search.CommentRecord{
		ID:      search.RecordID(explore, field, submitted.PK),
		Explore: explore,
		Field:   field,
		PK:      submitted.PK,
		Content: submitted.Content,
		Author:  string(submitted.Author),
	})
	s.recordSnapshot(ws)
	return s.stateLocked(ws)
}

// DeleteComment removes the comment matching the submitted primary key.
func (s *Service) DeleteComment(ctx context.Context, sess Session, explore, field, commentText string) (CommentState, error) {
	submitted, err := parseComment(commentText)
	if err != nil {
		return CommentState{}, err
	}
	if submitted.PK == "" {
		return CommentState{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Comment pk is required", nil)
	}

	ws := s.workspaceFor(ctx, sess.UserID)
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if err := ws.store.Delete(ctx, explore, field, submitted.PK); err != nil {
		return CommentState{}, mutationError(err)
	}

	s.search.DeleteComment(search.RecordID(explore, field, submitted.PK))
	s.recordSnapshot(ws)
	return s.stateLocked(ws)
}

// ensureCallerAuthor keeps the authors list covering the caller once they
// have written their first comment.
func (s *Service) ensureCallerAuthor(ws *workspace) {
	for _, a := range ws.authors {
		if a.ID == ws.user.ID {
			return
		}
	}
	ws.authors = append(ws.authors, ws.user)
}

// recordSnapshot archives the current serialized blob. It runs synchronously
// under the workspace lock so snapshots commit in mutation order; a failure
// is logged and does not fail the mutation.
func (s *Service) recordSnapshot(ws *workspace) {
	if s.archive == nil {
		return
	}
	text, err := ws.store.Snapshot()
	if err != nil {
		log.Printf("archive snapshot: serialize: %v", err)
		return
	}
	author := ws.user.DisplayName
	if author == "" {
		author = ws.user.ID
	}
	if _, err := s.archive.Record(s.cfg.ContextKey, text, author); err != nil {
		log.Printf("archive snapshot: %v", err)
	}
}

func (s *Service) Models(ctx context.Context) ([]catalog.Model, error) {
	return s.catalog.ListModels(ctx)
}

// Explore returns one explore's dictionary entry, memoized per process.
// refresh drops the cached entry first so edited metadata shows up.
func (s *Service) Explore(ctx context.Context, modelName, exploreName string, refresh bool) (catalog.Explore, error) {
	if refresh {
		s.explores.Invalidate(modelName, exploreName)
	}
	return s.explores.Explore(ctx, modelName, exploreName, func(ctx context.Context) (catalog.Explore, error) {
		return s.catalog.GetExplore(ctx, modelName, exploreName)
	})
}

func (s *Service) Search(ctx context.Context, q search.Query) search.Response {
	return s.search.Search(q)
}

// persistedBlob is the search fallback's snapshot provider: it scans
// persisted truth, not any one workspace's in-memory copy.
func (s *Service) persistedBlob() *comments.Blob {
	text, err := s.gateway.Load(context.Background())
	if err != nil {
		log.Printf("search fallback: load blob: %v", err)
		return comments.NewBlob()
	}
	blob, err := comments.Parse(text)
	if err != nil {
		log.Printf("search fallback: parse blob: %v", err)
		return comments.NewBlob()
	}
	return blob
}

// Export renders one explore's comment threads to the requested format.
func (s *Service) Export(ctx context.Context, sess Session, exploreName string, format export.Format) (*export.Result, error) {
	ws := s.workspaceFor(ctx, sess.UserID)
	ws.mu.Lock()
	threads := exportThreads(ws, exploreName)
	ws.mu.Unlock()

	result, err := s.exporter.Export(ctx, exploreName, threads, format)
	if err != nil {
		if errors.Is(err, export.ErrPDFDependencyMissing) {
			return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "PDF rendering is not available", nil)
		}
		return nil, err
	}
	return result, nil
}

func exportThreads(ws *workspace, exploreName string) []export.FieldThread {
	names := make(map[string]string, len(ws.authors)+1)
	for _, a := range ws.authors {
		names[a.ID] = a.DisplayName
	}
	names[ws.user.ID] = ws.user.DisplayName

	ec, ok := ws.store.Blob().Explore(exploreName)
	if !ok {
		return nil
	}

	var threads []export.FieldThread
	for _, field := range ec.Fields() {
		list := ec.Comments(field)
		if len(list) == 0 {
			continue
		}
		thread := export.FieldThread{Field: field}
		for _, c := range list {
			author := names[string(c.Author)]
			if author == "" {
				author = identity.DeletedUser().DisplayName
			}
			thread.Comments = append(thread.Comments, export.ThreadComment{
				Author:      author,
				Content:     c.Content,
				Edited:      c.Edited,
				TimestampMS: c.Timestamp,
			})
		}
		threads = append(threads, thread)
	}
	return threads
}

// History lists archived blob snapshots, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]archive.Snapshot, error) {
	if s.archive == nil {
		return nil, domainError(http.StatusServiceUnavailable, "ARCHIVE_UNAVAILABLE", "Snapshot history is not configured", nil)
	}
	snapshots, err := s.archive.History(s.cfg.ContextKey, limit)
	if err != nil {
		return nil, err
	}
	if snapshots == nil {
		snapshots = []archive.Snapshot{}
	}
	return snapshots, nil
}

func parseComment(text string) (comments.Comment, error) {
	var c comments.Comment
	if err := json.Unmarshal([]byte(text), &c); err != nil {
		return comments.Comment{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "comment must be a serialized comment object", nil)
	}
	return c, nil
}

func mutationError(err error) error {
	if errors.Is(err, comments.ErrPermissionDenied) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Comment writes are not permitted for this user", nil)
	}
	return err
}
