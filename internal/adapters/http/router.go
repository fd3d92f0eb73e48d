package http

import (
	"context"
	"net/http"

	"github.com/dkeye/meshroom/internal/adapters/session"
	"github.com/dkeye/meshroom/internal/adapters/signal"
	"github.com/dkeye/meshroom/internal/config"
	"github.com/dkeye/meshroom/internal/core"
	"github.com/dkeye/meshroom/internal/domain"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// RoomDirectory answers room queries through the relay loop.
type RoomDirectory interface {
	RoomExists(ctx context.Context, id domain.RoomID) (bool, error)
	Rooms(ctx context.Context) ([]core.RoomInfo, error)
	MembersOf(ctx context.Context, id domain.RoomID) ([]domain.Participant, error)
}

type Deps struct {
	Rooms   RoomDirectory
	History core.History
	Signal  *signal.SignalWSController
	Session session.CookieIdentity
}

func genClientToken() string {
	return uuid.NewString()
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	if len(cfg.CORS.AllowOrigins) > 0 {
		cc := cors.DefaultConfig()
		cc.AllowOrigins = cfg.CORS.AllowOrigins
		cc.AllowCredentials = true
		cc.AllowHeaders = []string{"Content-Type", "Origin", "Accept"}
		cc.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
		r.Use(cors.New(cc))
	}

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true, SameSite: http.SameSiteLaxMode})
	r.Use(sessions.Sessions("MeshSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	h := &handlers{deps: deps}
	api := r.Group("/api")

	api.POST("/session", h.signIn)
	api.GET("/session", h.whoAmI)
	api.DELETE("/session", h.signOut)

	api.GET("/check-room", h.checkRoom)
	api.GET("/rooms", h.listRooms)
	api.POST("/rooms", deps.Session.RequireIdentity(), h.newRoom)
	api.GET("/rooms/:roomId/members", h.members)
	api.GET("/messages/:roomId", deps.Session.RequireIdentity(), h.messages)

	api.GET("/ws/signal", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("client_token", c.GetString("client_token")).Msg("ws signal endpoint hit")
		deps.Signal.HandleSignal(ctx, c)
	})

	return r
}

type handlers struct {
	deps Deps
}

type signInRequest struct {
	Username string `json:"username" binding:"required,max=64"`
}

func (h *handlers) signIn(c *gin.Context) {
	var req signInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid username"})
		return
	}
	id, err := h.deps.Session.SignIn(c, req.Username)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "username": id})
}

func (h *handlers) whoAmI(c *gin.Context) {
	id, ok := h.deps.Session.CurrentIdentity(c)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"authenticated": true, "username": id})
}

func (h *handlers) signOut(c *gin.Context) {
	if err := h.deps.Session.SignOut(c); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("sign out")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) checkRoom(c *gin.Context) {
	id, err := domain.ParseRoomID(c.Query("roomId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	exists, err := h.deps.Rooms.RoomExists(c.Request.Context(), id)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Str("room", string(id)).Msg("check room")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"exists": exists})
}

func (h *handlers) listRooms(c *gin.Context) {
	rooms, err := h.deps.Rooms.Rooms(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func (h *handlers) newRoom(c *gin.Context) {
	c.JSON(http.StatusCreated, gin.H{"roomId": domain.NewRoomID()})
}

func (h *handlers) members(c *gin.Context) {
	id, err := domain.ParseRoomID(c.Param("roomId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	members, err := h.deps.Rooms.MembersOf(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
		return
	}
	if members == nil {
		members = []domain.Participant{}
	}
	c.JSON(http.StatusOK, members)
}

func (h *handlers) messages(c *gin.Context) {
	id, err := domain.ParseRoomID(c.Param("roomId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	msgs, err := h.deps.History.FetchHistory(c.Request.Context(), id)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Str("room", string(id)).Msg("fetch messages")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
		return
	}
	if msgs == nil {
		msgs = []domain.ChatMessage{}
	}
	c.JSON(http.StatusOK, msgs)
}
