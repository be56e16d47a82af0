package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/alem-hub/socialgraph/internal/application/command"
	"github.com/alem-hub/socialgraph/internal/application/query"
	"github.com/alem-hub/socialgraph/internal/domain/graph"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth is the liveness probe; it never touches dependencies.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"uptime":  s.Uptime().String(),
		"version": s.config.Version,
	})
}

// handleReady reports whether the backing stores answer.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	status := s.deps.Health.Check(r.Context())
	if !status.Healthy {
		writeJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// ══════════════════════════════════════════════════════════════════════════════
// FOLLOW HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type followRequest struct {
	FollowerID string `json:"followerId" validate:"required,id"`
	TargetID   string `json:"targetId" validate:"required,id"`
	TargetType string `json:"targetType" validate:"required,target_type"`
}

type unfollowRequest struct {
	FollowerID string `json:"followerId" validate:"required,id"`
	TargetID   string `json:"targetId" validate:"required,id"`
}

type successResponse struct {
	Success bool `json:"success"`
}

func (s *Server) handleFollow(w http.ResponseWriter, r *http.Request) {
	var req followRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.deps.Follow.Handle(r.Context(), command.FollowCommand{
		FollowerID:    req.FollowerID,
		TargetID:      req.TargetID,
		TargetType:    graph.TargetType(req.TargetType),
		CorrelationID: middleware.GetReqID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res.Follow)
}

func (s *Server) handleUnfollow(w http.ResponseWriter, r *http.Request) {
	var req unfollowRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.deps.Unfollow.Handle(r.Context(), command.UnfollowCommand{
		FollowerID:    req.FollowerID,
		TargetID:      req.TargetID,
		CorrelationID: middleware.GetReqID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: res.Removed})
}

func (s *Server) handleGetFollowers(w http.ResponseWriter, r *http.Request) {
	page, err := pageParams(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	follows, err := s.deps.GetFollowers.Handle(r.Context(), query.GetFollowersQuery{
		TargetID: chi.URLParam(r, "targetId"),
		Page:     page,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(follows))
}

func (s *Server) handleGetFollowing(w http.ResponseWriter, r *http.Request) {
	page, err := pageParams(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	follows, err := s.deps.GetFollowing.Handle(r.Context(), query.GetFollowingQuery{
		UserID: chi.URLParam(r, "userId"),
		Page:   page,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(follows))
}

func (s *Server) handleIsFollowing(w http.ResponseWriter, r *http.Request) {
	ok, err := s.deps.IsFollowing.Handle(r.Context(), query.RelationQuery{
		SourceID: r.URL.Query().Get("followerId"),
		TargetID: r.URL.Query().Get("targetId"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"isFollowing": ok})
}

// ══════════════════════════════════════════════════════════════════════════════
// LIKE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type likeRequest struct {
	UserID     string `json:"userId" validate:"required,id"`
	TargetID   string `json:"targetId" validate:"required,id"`
	TargetType string `json:"targetType" validate:"required,target_type"`
}

type unlikeRequest struct {
	UserID   string `json:"userId" validate:"required,id"`
	TargetID string `json:"targetId" validate:"required,id"`
}

func (s *Server) handleLike(w http.ResponseWriter, r *http.Request) {
	var req likeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.deps.Like.Handle(r.Context(), command.LikeCommand{
		UserID:        req.UserID,
		TargetID:      req.TargetID,
		TargetType:    graph.TargetType(req.TargetType),
		CorrelationID: middleware.GetReqID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res.Like)
}

func (s *Server) handleUnlike(w http.ResponseWriter, r *http.Request) {
	var req unlikeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.deps.Unlike.Handle(r.Context(), command.UnlikeCommand{
		UserID:        req.UserID,
		TargetID:      req.TargetID,
		CorrelationID: middleware.GetReqID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: res.Removed})
}

func (s *Server) handleIsLiked(w http.ResponseWriter, r *http.Request) {
	ok, err := s.deps.IsLiked.Handle(r.Context(), query.RelationQuery{
		SourceID: r.URL.Query().Get("userId"),
		TargetID: r.URL.Query().Get("targetId"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"isLiked": ok})
}

// ══════════════════════════════════════════════════════════════════════════════
// REVIEW HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type createReviewRequest struct {
	UserID       string `json:"userId" validate:"required,id"`
	TargetID     string `json:"targetId" validate:"required,id"`
	TargetType   string `json:"targetType" validate:"omitempty,profile_type"`
	Rating       int    `json:"rating" validate:"required,min=1,max=5"`
	Comment      string `json:"comment" validate:"max=2000"`
	AuthorName   string `json:"authorName" validate:"max=100"`
	AuthorAvatar string `json:"authorAvatar" validate:"omitempty,url"`
}

func (s *Server) handleGetReviews(w http.ResponseWriter, r *http.Request) {
	page, err := pageParams(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	reviews, err := s.deps.GetReviews.Handle(r.Context(), query.GetReviewsQuery{
		TargetID: chi.URLParam(r, "id"),
		Page:     page,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(reviews))
}

func (s *Server) handleCreateReview(w http.ResponseWriter, r *http.Request) {
	var req createReviewRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.deps.CreateReview.Handle(r.Context(), command.CreateReviewCommand{
		UserID:        req.UserID,
		TargetID:      req.TargetID,
		TargetType:    graph.TargetType(req.TargetType),
		Rating:        req.Rating,
		Comment:       req.Comment,
		AuthorName:    req.AuthorName,
		AuthorAvatar:  req.AuthorAvatar,
		CorrelationID: middleware.GetReqID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res.Review)
}

func (s *Server) handleDeleteReview(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.DeleteReview.Handle(r.Context(), command.DeleteReviewCommand{
		ReviewID:      chi.URLParam(r, "id"),
		CorrelationID: middleware.GetReqID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !res.Deleted {
		writeJSONError(w, http.StatusNotFound, "not_found", "review not found")
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// ══════════════════════════════════════════════════════════════════════════════
// MEMBERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleGetMembers(w http.ResponseWriter, r *http.Request) {
	page, err := pageParams(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	members, err := s.deps.GetMembers.Handle(r.Context(), query.GetMembersQuery{
		ProfileID: chi.URLParam(r, "profileId"),
		Page:      page,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(members))
}

// ══════════════════════════════════════════════════════════════════════════════
// ACCOUNTS & PROFILES
// ══════════════════════════════════════════════════════════════════════════════

type createAccountRequest struct {
	Username    string `json:"username" validate:"required,min=3,max=32"`
	Password    string `json:"password" validate:"required,min=8,max=72"`
	DisplayName string `json:"displayName" validate:"max=100"`
	Email       string `json:"email" validate:"omitempty,email"`
	Phone       string `json:"phone" validate:"max=32"`
	AvatarURL   string `json:"avatarUrl" validate:"omitempty,url"`
}

type createProfileRequest struct {
	Slug        string `json:"slug" validate:"required,max=64"`
	EntityType  string `json:"entityType" validate:"required,profile_type"`
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=5000"`
	Location    string `json:"location" validate:"max=200"`
	ImageURL    string `json:"imageUrl" validate:"omitempty,url"`
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.deps.CreateAccount.Handle(r.Context(), command.CreateAccountCommand{
		Username:    req.Username,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Email:       req.Email,
		Phone:       req.Phone,
		AvatarURL:   req.AvatarURL,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res.Account)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := s.deps.GetAccount.Handle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (s *Server) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	var req createProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.deps.CreateProfile.Handle(r.Context(), command.CreateProfileCommand{
		Slug:        req.Slug,
		EntityType:  graph.ProfileType(req.EntityType),
		Name:        req.Name,
		Description: req.Description,
		Location:    req.Location,
		ImageURL:    req.ImageURL,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res.Profile)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.deps.GetProfile.Handle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}
