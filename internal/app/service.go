package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"inkwell/api/internal/annotations"
	"inkwell/api/internal/archive"
	"inkwell/api/internal/auth"
	"inkwell/api/internal/authpw"
	"inkwell/api/internal/export"
	"inkwell/api/internal/history"
	"inkwell/api/internal/search"
	"inkwell/api/internal/store"
	"inkwell/api/internal/util"
)

// dataStore is the slice of the persistence layer the service uses.
type dataStore interface {
	Ping(ctx context.Context) error
	CreateContent(ctx context.Context, documentID, content, contentType string) error
	UpdateContent(ctx context.Context, documentID, content string) error
	GetDocument(ctx context.Context, documentID string) (store.Document, error)
	InsertVersionRecord(ctx context.Context, record store.VersionRecord) error
}

// archiveStore mirrors committed versions into per-document git repos.
type archiveStore interface {
	EnsureRepo(documentID, content, author string) error
	EnsureBranch(documentID, branchName, fromBranch string) error
	CommitVersion(documentID, branchName, content, author, message string) (archive.CommitInfo, error)
}

// searchIndex answers queries and accepts fire-and-forget index pushes.
type searchIndex interface {
	Search(q search.Query) search.Response
	IndexVersion(record search.VersionRecord)
}

// snapshotStore uploads tagged content to object storage.
type snapshotStore interface {
	UploadTagSnapshot(ctx context.Context, documentID, tag, content string) error
}

// Session is the authenticated caller derived from a bearer token.
type Session struct {
	UserID   string
	UserName string
}

// AuthSession is the payload returned by sign-in.
type AuthSession struct {
	Token     string
	UserID    string
	UserName  string
	ExpiresAt time.Time
}

type Service struct {
	graph     *history.Graph
	store     dataStore
	archive   archiveStore
	search    searchIndex
	snapshots snapshotStore
	exporter  *export.Service
	comments  *annotations.Store
	authpw    *authpw.Service
	jwtSecret []byte
	accessTTL time.Duration
}

type ServiceDeps struct {
	Graph     *history.Graph
	Store     dataStore
	Archive   archiveStore
	Search    searchIndex
	Snapshots snapshotStore
	Exporter  *export.Service
	Comments  *annotations.Store
	AuthPW    *authpw.Service
	JWTSecret string
	AccessTTL time.Duration
}

func NewService(deps ServiceDeps) *Service {
	return &Service{
		graph:     deps.Graph,
		store:     deps.Store,
		archive:   deps.Archive,
		search:    deps.Search,
		snapshots: deps.Snapshots,
		exporter:  deps.Exporter,
		comments:  deps.Comments,
		authpw:    deps.AuthPW,
		jwtSecret: []byte(deps.JWTSecret),
		accessTTL: deps.AccessTTL,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// CreateDocument initializes a document: persisted content, version graph,
// and the git mirror. An empty documentID gets a generated one.
func (s *Service) CreateDocument(ctx context.Context, documentID, content string, meta history.VersionMeta) (map[string]any, error) {
	if documentID == "" {
		documentID = util.NewID("doc")
	}

	version, err := s.graph.Initialize(documentID, content, meta)
	if err != nil {
		return nil, mapHistoryError(err)
	}

	if err := s.store.CreateContent(ctx, documentID, content, "text"); err != nil {
		return nil, fmt.Errorf("persist document: %w", err)
	}
	if err := s.archive.EnsureRepo(documentID, content, version.Author); err != nil {
		log.Printf("app: archive init for %s: %v", documentID, err)
	}
	s.mirrorVersion(documentID, version)

	return map[string]any{
		"documentId": documentID,
		"version":    version,
	}, nil
}

// CommitVersion appends a new version on a branch and mirrors it.
func (s *Service) CommitVersion(ctx context.Context, documentID, content string, meta history.VersionMeta) (*history.Version, error) {
	version, err := s.graph.CreateVersion(documentID, content, meta)
	if err != nil {
		return nil, mapHistoryError(err)
	}

	if version.Branch == history.DefaultBranch {
		if err := s.store.UpdateContent(ctx, documentID, content); err != nil {
			log.Printf("app: update persisted content for %s: %v", documentID, err)
		}
	}
	s.mirrorVersion(documentID, version)
	return version, nil
}

func (s *Service) History(documentID string, f history.Filter) ([]*history.Version, error) {
	versions, err := s.graph.GetHistory(documentID, f)
	if err != nil {
		return nil, mapHistoryError(err)
	}
	return versions, nil
}

func (s *Service) GetVersion(documentID, versionID string) (*history.Version, error) {
	version, err := s.graph.GetVersion(documentID, versionID)
	if err != nil {
		return nil, mapHistoryError(err)
	}
	return version, nil
}

func (s *Service) LatestVersion(documentID, branch string) (*history.Version, error) {
	if branch == "" {
		branch = history.DefaultBranch
	}
	version, err := s.graph.GetLatestVersion(documentID, branch)
	if err != nil {
		return nil, mapHistoryError(err)
	}
	return version, nil
}

func (s *Service) Compare(documentID, fromID, toID string) (*history.Comparison, error) {
	comparison, err := s.graph.CompareVersions(documentID, fromID, toID)
	if err != nil {
		return nil, mapHistoryError(err)
	}
	return comparison, nil
}

// Revert commits a new version whose content matches the target version.
func (s *Service) Revert(ctx context.Context, documentID, targetID string, meta history.VersionMeta) (*history.Version, error) {
	version, err := s.graph.RevertToVersion(documentID, targetID, meta)
	if err != nil {
		return nil, mapHistoryError(err)
	}
	if version.Branch == history.DefaultBranch {
		if err := s.store.UpdateContent(ctx, documentID, version.Content); err != nil {
			log.Printf("app: update persisted content for %s: %v", documentID, err)
		}
	}
	s.mirrorVersion(documentID, version)
	return version, nil
}

func (s *Service) CreateBranch(documentID, name, fromVersionID string) (*history.Branch, error) {
	branch, err := s.graph.CreateBranch(documentID, name, fromVersionID)
	if err != nil {
		return nil, mapHistoryError(err)
	}
	go func() {
		if err := s.archive.EnsureBranch(documentID, name, history.DefaultBranch); err != nil {
			log.Printf("app: archive branch %s for %s: %v", name, documentID, err)
		}
	}()
	return branch, nil
}

func (s *Service) ListBranches(documentID string) ([]*history.Branch, error) {
	branches, err := s.graph.ListBranches(documentID)
	if err != nil {
		return nil, mapHistoryError(err)
	}
	return branches, nil
}

func (s *Service) Merge(ctx context.Context, documentID, source, target string, meta history.VersionMeta) (*history.MergeResult, error) {
	result, err := s.graph.MergeBranches(documentID, source, target, meta)
	if err != nil {
		return nil, mapHistoryError(err)
	}
	if result.MergeVersion != nil {
		if result.MergeVersion.Branch == history.DefaultBranch {
			if err := s.store.UpdateContent(ctx, documentID, result.MergeVersion.Content); err != nil {
				log.Printf("app: update persisted content for %s: %v", documentID, err)
			}
		}
		s.mirrorVersion(documentID, result.MergeVersion)
	}
	return result, nil
}

// CreateTag labels a version. The tagged content is pushed to object storage
// when a snapshot store is configured.
func (s *Service) CreateTag(documentID, versionID, name, createdBy string) (*history.Tag, error) {
	tag, err := s.graph.CreateTag(documentID, versionID, name, createdBy)
	if err != nil {
		return nil, mapHistoryError(err)
	}

	if s.snapshots != nil {
		version, verr := s.graph.GetVersion(documentID, tag.VersionID)
		if verr == nil {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := s.snapshots.UploadTagSnapshot(ctx, documentID, tag.Name, version.Content); err != nil {
					log.Printf("app: tag snapshot %s/%s: %v", documentID, tag.Name, err)
				}
			}()
		}
	}
	return tag, nil
}

func (s *Service) ListTags(documentID string) ([]*history.Tag, error) {
	tags, err := s.graph.ListTags(documentID)
	if err != nil {
		return nil, mapHistoryError(err)
	}
	return tags, nil
}

func (s *Service) Stats(documentID string) (*history.DocumentStats, error) {
	stats := s.graph.Stats(documentID)
	if stats == nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Document history not found", nil)
	}
	return stats, nil
}

// Search runs a full-text query over the committed versions.
func (s *Service) Search(q search.Query) (search.Response, error) {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}, nil
	}
	return s.search.Search(q), nil
}

// ExportDocument renders a version or comparison as PDF or DOCX.
func (s *Service) ExportDocument(ctx context.Context, req export.Request) (*export.Result, error) {
	if s.exporter == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export service not configured", nil)
	}
	result, err := s.exporter.Export(ctx, req)
	if err != nil {
		if errors.Is(err, export.ErrPDFDependencyMissing) || errors.Is(err, export.ErrDOCXDependencyMissing) {
			return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", err.Error(), nil)
		}
		return nil, mapHistoryError(err)
	}
	return result, nil
}

// ListComments returns a document's annotations, oldest first.
func (s *Service) ListComments(documentID string) []annotations.Comment {
	if s.comments == nil {
		return []annotations.Comment{}
	}
	return s.comments.List(documentID)
}

// AuthPasswordService exposes the optional email/password auth service.
func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

// CreateSession issues an access token for a signed-in user.
func (s *Service) CreateSession(user store.User) (AuthSession, error) {
	expiresAt := time.Now().Add(s.accessTTL)
	token, err := auth.IssueToken(s.jwtSecret, auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		JTI:  util.NewID("jti"),
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return AuthSession{}, fmt.Errorf("issue token: %w", err)
	}
	return AuthSession{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		ExpiresAt: expiresAt,
	}, nil
}

// SessionFromToken validates a bearer token and returns the caller identity.
func (s *Service) SessionFromToken(token string) (Session, error) {
	claims, err := auth.ParseToken(s.jwtSecret, token)
	if err != nil {
		return Session{}, err
	}
	return Session{UserID: claims.Sub, UserName: claims.Name}, nil
}

// mirrorVersion pushes one committed version to the git mirror, the version
// record table, and the search index. Failures are logged; the in-memory
// graph already holds the version.
func (s *Service) mirrorVersion(documentID string, version *history.Version) {
	v := *version
	go func() {
		if _, err := s.archive.CommitVersion(documentID, v.Branch, v.Content, v.Author, v.Message); err != nil {
			log.Printf("app: archive commit %s for %s: %v", v.ID, documentID, err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.store.InsertVersionRecord(ctx, store.VersionRecord{
			ID:          v.ID,
			DocumentID:  documentID,
			Branch:      v.Branch,
			Sequence:    v.Sequence,
			Author:      v.Author,
			Message:     v.Message,
			ContentHash: v.ContentHash,
			Content:     v.Content,
		}); err != nil {
			log.Printf("app: mirror version %s for %s: %v", v.ID, documentID, err)
		}

		if s.search != nil {
			s.search.IndexVersion(search.VersionRecord{
				ID:          v.ID,
				DocumentID:  documentID,
				Branch:      v.Branch,
				Sequence:    v.Sequence,
				Author:      v.Author,
				Message:     v.Message,
				Content:     v.Content,
				ContentHash: v.ContentHash,
			})
		}
	}()
}

func mapHistoryError(err error) error {
	switch {
	case errors.Is(err, history.ErrDocumentExists):
		return domainError(http.StatusConflict, "ALREADY_EXISTS", "Document history already initialized", nil)
	case errors.Is(err, history.ErrNotInitialized):
		return domainError(http.StatusNotFound, "NOT_FOUND", "Document history not initialized", nil)
	case errors.Is(err, history.ErrVersionNotFound):
		return domainError(http.StatusNotFound, "NOT_FOUND", "Version not found", nil)
	case errors.Is(err, history.ErrBranchNotFound):
		return domainError(http.StatusNotFound, "NOT_FOUND", "Branch not found", nil)
	case errors.Is(err, history.ErrBranchExists):
		return domainError(http.StatusConflict, "ALREADY_EXISTS", "Branch already exists", nil)
	case errors.Is(err, history.ErrTagExists):
		return domainError(http.StatusConflict, "ALREADY_EXISTS", "Tag already exists", nil)
	}
	return err
}
