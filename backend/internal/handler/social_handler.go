package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"social-graph-service/backend/internal/ranking"
	"social-graph-service/backend/internal/social"
	"social-graph-service/backend/internal/txn"
)

type SocialHandler struct {
	svc *social.Service
}

func NewSocialHandler(svc *social.Service) *SocialHandler {
	return &SocialHandler{svc: svc}
}

type pageQuery struct {
	Cursor string `form:"cursor"`
	Limit  int    `form:"limit" binding:"omitempty,min=0,max=200"`
	Global bool   `form:"global"`
	Status string `form:"status"`
}

// writeError InvalidArgument → 400，Conflict → 409，其余 500
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, txn.ErrInvalidArgument):
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_ARGUMENT", "error": err.Error()})
	case errors.Is(err, txn.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"code": "CONFLICT", "error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "error": err.Error()})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_ARGUMENT", "error": msg})
}

func currentUser(c *gin.Context) (string, bool) {
	userID := c.GetString("userId")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHENTICATED", "error": "unauthorized"})
		return "", false
	}
	return userID, true
}

func bindPage(c *gin.Context) (pageQuery, bool) {
	var q pageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err.Error())
		return q, false
	}
	return q, true
}

// 工厂函数：body 为 {<field>: bool}，对 (app, :param, 当前用户) 置状态
func (h *SocialHandler) makeToggleHandler(
	param string,
	bind func(c *gin.Context) (bool, error),
	fn func(ctx context.Context, app, target, user string, on bool) (any, error),
) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		on, err := bind(c)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		rec, err := fn(c.Request.Context(), c.Param("app"), c.Param(param), userID, on)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, rec)
	}
}

func bindBool(field string) func(c *gin.Context) (bool, error) {
	return func(c *gin.Context) (bool, error) {
		var body map[string]*bool
		if err := c.ShouldBindJSON(&body); err != nil {
			return false, err
		}
		v := body[field]
		if v == nil {
			return false, errors.New("missing " + field)
		}
		return *v, nil
	}
}

// 工厂函数：按 (app, :param) 分页读
func (h *SocialHandler) makeListHandler(
	param string,
	fn func(ctx context.Context, app, subject string, q pageQuery) (any, error),
) gin.HandlerFunc {
	return func(c *gin.Context) {
		q, ok := bindPage(c)
		if !ok {
			return
		}
		subject := c.Param(param)
		if param == "" {
			if subject, ok = currentUser(c); !ok {
				return
			}
		}
		out, err := fn(c.Request.Context(), c.Param("app"), subject, q)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

// ---- 点赞 ----

func (h *SocialHandler) SetLike() gin.HandlerFunc {
	return h.makeToggleHandler("content", bindBool("liked"),
		func(ctx context.Context, app, content, user string, on bool) (any, error) {
			return h.svc.SetLike(ctx, app, content, user, on)
		})
}

func (h *SocialHandler) GetLikes() gin.HandlerFunc {
	return h.makeListHandler("content", func(ctx context.Context, app, content string, q pageQuery) (any, error) {
		return h.svc.Likes(ctx, app, content, q.Cursor, q.Limit)
	})
}

// ---- 置顶 ----

func (h *SocialHandler) SetPin() gin.HandlerFunc {
	return h.makeToggleHandler("topic", bindBool("pinned"),
		func(ctx context.Context, app, topic, user string, on bool) (any, error) {
			return h.svc.SetPin(ctx, app, user, topic, on)
		})
}

func (h *SocialHandler) GetMyPins() gin.HandlerFunc {
	return h.makeListHandler("", func(ctx context.Context, app, user string, q pageQuery) (any, error) {
		return h.svc.Pins(ctx, app, user, q.Global, q.Cursor, q.Limit)
	})
}

// ---- 用户关注 ----

type followReq struct {
	Status string `json:"status" binding:"required,oneof=None Pending Follow Blocked"`
}

func (h *SocialHandler) SetFollow() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		var req followReq
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		status, _ := social.ParseFollowStatus(req.Status)
		rec, err := h.svc.SetFollow(c.Request.Context(), c.Param("app"), userID, c.Param("user"), status)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, rec)
	}
}

func followStatus(q pageQuery) (social.FollowStatus, error) {
	if q.Status == "" {
		return social.Follow, nil
	}
	st, ok := social.ParseFollowStatus(q.Status)
	if !ok {
		return "", fmt.Errorf("%w: unknown follow status %q", txn.ErrInvalidArgument, q.Status)
	}
	return st, nil
}

func (h *SocialHandler) GetFollowers() gin.HandlerFunc {
	return h.makeListHandler("user", func(ctx context.Context, app, user string, q pageQuery) (any, error) {
		st, err := followStatus(q)
		if err != nil {
			return nil, err
		}
		return h.svc.Followers(ctx, app, user, st, q.Global, q.Cursor, q.Limit)
	})
}

func (h *SocialHandler) GetFollowing() gin.HandlerFunc {
	return h.makeListHandler("user", func(ctx context.Context, app, user string, q pageQuery) (any, error) {
		st, err := followStatus(q)
		if err != nil {
			return nil, err
		}
		return h.svc.Following(ctx, app, user, st, q.Global, q.Cursor, q.Limit)
	})
}

// ---- 话题关注 ----

func (h *SocialHandler) SetTopicFollow() gin.HandlerFunc {
	return h.makeToggleHandler("topic", bindBool("follow"),
		func(ctx context.Context, app, topic, user string, on bool) (any, error) {
			return h.svc.SetTopicFollow(ctx, app, user, topic, on)
		})
}

func (h *SocialHandler) GetTopicFollowers() gin.HandlerFunc {
	return h.makeListHandler("topic", func(ctx context.Context, app, topic string, q pageQuery) (any, error) {
		return h.svc.TopicFollowers(ctx, app, topic, q.Cursor, q.Limit)
	})
}

func (h *SocialHandler) GetMyTopics() gin.HandlerFunc {
	return h.makeListHandler("", func(ctx context.Context, app, user string, q pageQuery) (any, error) {
		return h.svc.FollowedTopics(ctx, app, user, q.Cursor, q.Limit)
	})
}

// ---- 举报 ----

type reportReq struct {
	Subject string `json:"subject" binding:"required"`
	Reason  string `json:"reason" binding:"max=1024"`
}

func (h *SocialHandler) PostReport() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		var req reportReq
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		r, err := h.svc.Report(c.Request.Context(), c.Param("app"), req.Subject, userID, req.Reason)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, r)
	}
}

func (h *SocialHandler) GetReports() gin.HandlerFunc {
	return h.makeListHandler("subject", func(ctx context.Context, app, subject string, q pageQuery) (any, error) {
		return h.svc.Reports(ctx, app, subject, q.Cursor, q.Limit)
	})
}

// ---- 热门 ----

type scoreReq struct {
	Score *float64 `json:"score" binding:"required"`
}

func (h *SocialHandler) PutPopular() gin.HandlerFunc {
	return func(c *gin.Context) {
		window, err := ranking.ParseWindow(c.Param("window"))
		if err != nil {
			writeError(c, err)
			return
		}
		var req scoreReq
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		admitted, err := h.svc.UpdatePopular(c.Request.Context(), c.Param("app"), window, c.Param("item"), *req.Score)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"admitted": admitted})
	}
}

func (h *SocialHandler) GetPopular() gin.HandlerFunc {
	return h.makeListHandler("window", func(ctx context.Context, app, w string, q pageQuery) (any, error) {
		window, err := ranking.ParseWindow(w)
		if err != nil {
			return nil, err
		}
		return h.svc.Popular(ctx, app, window, q.Cursor, q.Limit)
	})
}

type pruneReq struct {
	// AsOf 缺省为当前时间
	AsOf *time.Time `json:"asOf"`
}

func (h *SocialHandler) PrunePopular() gin.HandlerFunc {
	return func(c *gin.Context) {
		window, err := ranking.ParseWindow(c.Param("window"))
		if err != nil {
			writeError(c, err)
			return
		}
		var req pruneReq
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				badRequest(c, err.Error())
				return
			}
		}
		asOf := time.Now()
		if req.AsOf != nil {
			asOf = *req.AsOf
		}
		removed, err := h.svc.PrunePopular(c.Request.Context(), c.Param("app"), window, asOf)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"removed": removed})
	}
}

// ---- 通知 ----

type notifyReq struct {
	User    string          `json:"user" binding:"required"`
	Handle  string          `json:"handle" binding:"required"`
	Kind    string          `json:"kind" binding:"required"`
	Payload json.RawMessage `json:"payload"`
}

type notificationBody struct {
	Kind    string          `json:"kind"`
	From    string          `json:"from"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (h *SocialHandler) PostNotification() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		var req notifyReq
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		body, err := json.Marshal(notificationBody{Kind: req.Kind, From: userID, Payload: req.Payload})
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		out, err := h.svc.Notify(c.Request.Context(), c.Param("app"), req.User, req.Handle, body)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"outcome": out.String()})
	}
}

func (h *SocialHandler) GetMyNotifications() gin.HandlerFunc {
	return h.makeListHandler("", func(ctx context.Context, app, user string, q pageQuery) (any, error) {
		return h.svc.Notifications(ctx, app, user, q.Cursor, q.Limit)
	})
}

// Register 挂载全部 /v1 路由；auth 为鉴权中间件
func (h *SocialHandler) Register(r gin.IRouter, auth gin.HandlerFunc) {
	v1 := r.Group("/v1/apps/:app")
	v1.Use(auth)
	{
		v1.PUT("/contents/:content/like", h.SetLike())
		v1.GET("/contents/:content/likes", h.GetLikes())

		v1.PUT("/topics/:topic/pin", h.SetPin())
		v1.GET("/me/pins", h.GetMyPins())

		v1.PUT("/users/:user/follow", h.SetFollow())
		v1.GET("/users/:user/followers", h.GetFollowers())
		v1.GET("/users/:user/following", h.GetFollowing())

		v1.PUT("/topics/:topic/follow", h.SetTopicFollow())
		v1.GET("/topics/:topic/followers", h.GetTopicFollowers())
		v1.GET("/me/topics", h.GetMyTopics())

		v1.POST("/reports", h.PostReport())
		v1.GET("/reports/:subject", h.GetReports())

		v1.PUT("/popular/:window/items/:item", h.PutPopular())
		v1.GET("/popular/:window", h.GetPopular())
		v1.POST("/popular/:window/prune", h.PrunePopular())

		v1.POST("/notifications", h.PostNotification())
		v1.GET("/me/notifications", h.GetMyNotifications())
	}
}
