package authservice

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// DefaultPostsPerPage is the page size of the public listing.
const DefaultPostsPerPage = 10

// PostOwner is the public view of a post's author.
type PostOwner struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// PostView is a post together with its owner.
type PostView struct {
	*Post
	Owner *PostOwner `json:"owner,omitempty"`
}

// PostService implements post CRUD. Only the owner may change a post.
type PostService struct {
	Posts    PostStore
	Accounts AccountStore
	PerPage  int
	Logger   *zap.Logger
	Now      func() time.Time
}

func (s *PostService) EnsureDefaults() *PostService {
	if s.PerPage <= 0 {
		s.PerPage = DefaultPostsPerPage
	}
	if s.Logger == nil {
		s.Logger = zap.NewNop()
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	return s
}

// List returns one page of posts, newest first. Pages start at 1.
func (s *PostService) List(ctx context.Context, page int) ([]PostView, error) {
	s.EnsureDefaults()
	if page < 1 {
		page = 1
	}
	if page-1 > math.MaxInt/s.PerPage {
		return nil, NewAuthError(KindValidation, "page is out of range", "page")
	}
	posts, err := s.Posts.ListPosts(ctx, (page-1)*s.PerPage, s.PerPage)
	if err != nil {
		return nil, WrapAuthError(KindInternal, "Internal server error", "", err)
	}
	owners := map[string]*PostOwner{}
	views := make([]PostView, 0, len(posts))
	for _, p := range posts {
		views = append(views, PostView{Post: p, Owner: s.owner(ctx, owners, p.OwnerID)})
	}
	return views, nil
}

func (s *PostService) Create(ctx context.Context, ownerID string, req PostRequest) (*Post, error) {
	s.EnsureDefaults()
	if err := req.Validate().Err(); err != nil {
		return nil, err
	}
	now := s.Now()
	post := &Post{
		Title:       req.Title,
		Description: req.Description,
		OwnerID:     ownerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.Posts.CreatePost(ctx, post); err != nil {
		return nil, WrapAuthError(KindInternal, "Internal server error", "", err)
	}
	s.Logger.Info("post created", zap.String("postId", post.ID), zap.String("ownerId", ownerID))
	return post, nil
}

func (s *PostService) Get(ctx context.Context, id string) (*PostView, error) {
	s.EnsureDefaults()
	post, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return &PostView{Post: post, Owner: s.owner(ctx, map[string]*PostOwner{}, post.OwnerID)}, nil
}

func (s *PostService) Update(ctx context.Context, ownerID, id string, req PostRequest) (*Post, error) {
	s.EnsureDefaults()
	if err := req.Validate().Err(); err != nil {
		return nil, err
	}
	post, err := s.loadOwned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	post.Title = req.Title
	post.Description = req.Description
	post.UpdatedAt = s.Now()
	if err := s.Posts.SavePost(ctx, post); err != nil {
		return nil, WrapAuthError(KindInternal, "Internal server error", "", err)
	}
	return post, nil
}

func (s *PostService) Delete(ctx context.Context, ownerID, id string) error {
	s.EnsureDefaults()
	if _, err := s.loadOwned(ctx, ownerID, id); err != nil {
		return err
	}
	if err := s.Posts.DeletePost(ctx, id); err != nil {
		if errors.Is(err, ErrPostNotFound) {
			return NewAuthError(KindNotFound, "Post doesn't exist", "id")
		}
		return WrapAuthError(KindInternal, "Internal server error", "", err)
	}
	s.Logger.Info("post deleted", zap.String("postId", id), zap.String("ownerId", ownerID))
	return nil
}

func (s *PostService) load(ctx context.Context, id string) (*Post, error) {
	if id == "" {
		return nil, NewAuthError(KindValidation, "id is required", "id")
	}
	post, err := s.Posts.GetPost(ctx, id)
	if err != nil {
		if errors.Is(err, ErrPostNotFound) {
			return nil, NewAuthError(KindNotFound, "Post doesn't exist", "id")
		}
		return nil, WrapAuthError(KindInternal, "Internal server error", "", err)
	}
	return post, nil
}

func (s *PostService) loadOwned(ctx context.Context, ownerID, id string) (*Post, error) {
	post, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if post.OwnerID != ownerID {
		return nil, NewAuthError(KindForbidden, "Unauthorized", "")
	}
	return post, nil
}

// owner resolves and caches a post author. Authors that no longer exist
// are reported by id only.
func (s *PostService) owner(ctx context.Context, cache map[string]*PostOwner, id string) *PostOwner {
	if o, ok := cache[id]; ok {
		return o
	}
	o := &PostOwner{ID: id}
	if s.Accounts != nil {
		if account, err := s.Accounts.GetAccountByID(ctx, id); err == nil {
			o.Email = account.Email
		} else if !errors.Is(err, ErrAccountNotFound) {
			s.Logger.Warn("failed to load post owner", zap.String("ownerId", id), zap.Error(err))
		}
	}
	cache[id] = o
	return o
}

// PostHandlers exposes PostService over HTTP.
type PostHandlers struct {
	Posts        *PostService
	ExposeErrors bool
}

func (h *PostHandlers) HandleList(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	posts, err := h.Posts.List(r.Context(), page)
	if err != nil {
		writeError(w, err, h.ExposeErrors)
		return
	}
	writeSuccess(w, http.StatusOK, "posts", map[string]any{"data": posts, "page": page})
}

func (h *PostHandlers) HandleCreate(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, NewAuthError(KindUnauthorized, "Unauthorized", ""), false)
		return
	}
	var req PostRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, err, h.ExposeErrors)
		return
	}
	post, err := h.Posts.Create(r.Context(), claims.AccountID, req)
	if err != nil {
		writeError(w, err, h.ExposeErrors)
		return
	}
	writeSuccess(w, http.StatusCreated, "post created", map[string]any{"data": post})
}

func (h *PostHandlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	post, err := h.Posts.Get(r.Context(), r.URL.Query().Get("id"))
	if err != nil {
		writeError(w, err, h.ExposeErrors)
		return
	}
	writeSuccess(w, http.StatusOK, "single post", map[string]any{"data": post})
}

func (h *PostHandlers) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, NewAuthError(KindUnauthorized, "Unauthorized", ""), false)
		return
	}
	var req PostRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, err, h.ExposeErrors)
		return
	}
	post, err := h.Posts.Update(r.Context(), claims.AccountID, r.URL.Query().Get("id"), req)
	if err != nil {
		writeError(w, err, h.ExposeErrors)
		return
	}
	writeSuccess(w, http.StatusOK, "Updated", map[string]any{"data": post})
}

func (h *PostHandlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, NewAuthError(KindUnauthorized, "Unauthorized", ""), false)
		return
	}
	if err := h.Posts.Delete(r.Context(), claims.AccountID, r.URL.Query().Get("id")); err != nil {
		writeError(w, err, h.ExposeErrors)
		return
	}
	writeSuccess(w, http.StatusOK, "deleted", nil)
}
